// Package store defines the persistence contract of the service: the EntityStore
// adapter that backends implement, and the generic Repository that gives every
// entity kind uniform create/read/update/delete semantics on top of it.
//
// Business rules do not live here; the repository only enforces identity,
// optimistic concurrency, per-call timeouts, and the read-retry policy.
package store
