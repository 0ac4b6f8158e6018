package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/bookings-api/internal/api/shared"
	"github.com/phrazzld/bookings-api/internal/domain"
	"github.com/phrazzld/bookings-api/internal/service"
)

// ListStyle selects the response shape of a list endpoint.
type ListStyle int

const (
	// ListArray returns a bare JSON array and ignores ?limit=.
	ListArray ListStyle = iota
	// ListEnvelope returns {"items": [...], "count": n} and honours ?limit=.
	ListEnvelope
)

type listEnvelope[E any] struct {
	Items []E `json:"items"`
	Count int `json:"count"`
}

// ResourceHandler serves CRUD endpoints for one entity kind on top of its
// Domain Service.
type ResourceHandler[E service.Entity] struct {
	registration service.Registration
	svc          *service.Service[E]
	style        ListStyle
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler[E service.Entity](
	registration service.Registration,
	svc *service.Service[E],
	style ListStyle,
) *ResourceHandler[E] {
	if svc == nil {
		panic("service cannot be nil")
	}
	return &ResourceHandler[E]{registration: registration, svc: svc, style: style}
}

// Routes returns a router for paths relative to the resource root.
func (h *ResourceHandler[E]) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HandleAPIError(w, r, ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		HandleAPIError(w, r, ErrMethodNotAllowed)
	})

	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	return r
}

func (h *ResourceHandler[E]) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query(), h.registration.Filterable, h.style == ListEnvelope)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	items := make([]E, 0)
	for e, err := range h.svc.List(r.Context(), q) {
		if err != nil {
			HandleAPIError(w, r, err)
			return
		}
		items = append(items, e)
	}

	if h.style == ListEnvelope {
		shared.RespondWithJSON(w, r, http.StatusOK, listEnvelope[E]{Items: items, Count: len(items)})
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, items)
}

func (h *ResourceHandler[E]) get(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, e)
}

func (h *ResourceHandler[E]) create(w http.ResponseWriter, r *http.Request) {
	e := h.svc.New()
	if err := shared.DecodeJSON(w, r, e); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	created, err := h.svc.Create(r.Context(), e)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+created.Key().String())
	shared.RespondWithJSON(w, r, http.StatusCreated, created)
}

func (h *ResourceHandler[E]) update(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	e := h.svc.New()
	if err := shared.DecodeJSON(w, r, e); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if key := e.Key(); key != uuid.Nil && key != id {
		HandleAPIError(w, r, domain.NewValidationError("id", "does not match the path", domain.ErrInvalidID))
		return
	}

	updated, err := h.svc.Update(r.Context(), id, e)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, updated)
}

func (h *ResourceHandler[E]) delete(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
