package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/bookings-api/internal/api/versioning"
)

// ErrInvalidRoute is returned when a route registration is rejected.
var ErrInvalidRoute = errors.New("invalid route registration")

type routeKey struct {
	resource string
	version  versioning.Version
}

// Route identifies one registered (resource, version) pair.
type Route struct {
	Resource string
	Version  versioning.Version
}

// Dispatcher selects a handler by resource name and resolved API version.
// Routes are registered during startup; afterwards the dispatcher is
// read-only and safe for concurrent use.
type Dispatcher struct {
	versions *versioning.Set
	routes   map[routeKey]http.Handler
}

// NewDispatcher creates an empty Dispatcher accepting versions from set.
func NewDispatcher(set *versioning.Set) *Dispatcher {
	if set == nil {
		panic("version set cannot be nil")
	}
	return &Dispatcher{versions: set, routes: map[routeKey]http.Handler{}}
}

// Register binds h to resource under version v. Each pair may be bound once
// and v must belong to the supported set.
func (d *Dispatcher) Register(resource string, v versioning.Version, h http.Handler) error {
	if resource == "" || strings.Contains(resource, "/") || h == nil {
		return fmt.Errorf("%w: resource %q", ErrInvalidRoute, resource)
	}
	if _, ok := d.versions.Lookup(v); !ok {
		return fmt.Errorf("%w: version %s is not supported", ErrInvalidRoute, v)
	}
	key := routeKey{resource: resource, version: v}
	if _, exists := d.routes[key]; exists {
		return fmt.Errorf("%w: %s is already registered for version %s", ErrInvalidRoute, resource, v)
	}
	d.routes[key] = h
	return nil
}

// Routes lists the registered pairs ordered by version, then resource.
func (d *Dispatcher) Routes() []Route {
	out := make([]Route, 0, len(d.routes))
	for k := range d.routes {
		out = append(out, Route{Resource: k.resource, Version: k.version})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version.Less(out[j].Version)
		}
		return out[i].Resource < out[j].Resource
	})
	return out
}

// ServeHTTP forwards r to the handler of its resource and resolved version.
// The handler sees the remaining path, without version segment and resource.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, ok := versioning.FromContext(r.Context())
	if !ok {
		HandleAPIError(w, r, errors.New("request reached the dispatcher without a resolved api version"))
		return
	}

	path := r.URL.Path
	if segment, rest := versioning.SplitVersionSegment(path); segment != "" {
		path = rest
	}
	resource, remainder := splitResource(path)

	h, ok := d.routes[routeKey{resource: resource, version: res.Descriptor.Version}]
	if !ok {
		HandleAPIError(w, r, fmt.Errorf("%w: %q in version %s", ErrRouteNotFound, resource, res.Descriptor.Version))
		return
	}

	rctx := chi.NewRouteContext()
	rctx.RoutePath = remainder
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	h.ServeHTTP(w, r.WithContext(ctx))
}

// splitResource returns the first segment of path and the rest, which
// always starts with "/".
func splitResource(path string) (resource, rest string) {
	resource, rest, _ = strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return resource, "/" + rest
}
