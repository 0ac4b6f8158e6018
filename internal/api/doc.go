// Package api handles incoming HTTP requests: authentication, API version
// resolution, dispatch by (resource, version) to the entity handlers, error
// mapping and the generated API documents. It translates HTTP concerns into
// Domain Service calls and never touches the store directly.
package api
