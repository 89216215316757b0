// Package production holds the in-memory scene record store: the Production
// and Scene types, the scene status state machine, and the pure mutation
// functions the editor applies. Nothing here performs I/O.
//
// Mutations are total. Unknown ids or out-of-range indices report false and
// leave the production untouched, and every structural change renumbers the
// scenes so numbers stay contiguous from 1 in list order.
package production
