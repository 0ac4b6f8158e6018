// Package memory provides an in-process implementation of store.EntityStore.
// It is used for local development (database.driver=memory) and in tests.
package memory
