// Package enhance provides the optional prompt enhancement pass run before
// each generation call: an HTTP enhancement service, an LLM-backed rewriter,
// and a TTL cache in front of either.
package enhance
