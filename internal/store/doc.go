// Package store provides the durable production stores: an embedded SQLite
// database (the default), PostgreSQL through gorm, and a remote HTTP store
// speaking the /productions contract served by the sceneforge daemon.
//
// All backends allocate the production id on first Create and return
// services.ErrNotFound for unknown ids.
package store
