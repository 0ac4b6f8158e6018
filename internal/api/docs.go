package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/bookings-api/internal/api/shared"
	"github.com/phrazzld/bookings-api/internal/api/versioning"
	"github.com/phrazzld/bookings-api/internal/service"
)

// DocTitle is the title of every generated API document.
const DocTitle = "Bookings API"

// DocResource describes one resource for the generated documents. Sample is
// an empty entity used to derive the schema.
type DocResource struct {
	Registration service.Registration
	Sample       any
}

// DocGroup is one entry of the documentation index.
type DocGroup struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Deprecated bool   `json:"deprecated,omitempty"`
}

// Docs serves one OpenAPI document per supported API version, keyed by
// group name, plus an index of the groups. Documents are built once.
type Docs struct {
	groups    []DocGroup
	documents map[string][]byte
}

// NewDocs builds the documents for every version in set. Group names come
// from the same set the version resolver uses.
func NewDocs(set *versioning.Set, resources []DocResource) (*Docs, error) {
	d := &Docs{documents: map[string][]byte{}}

	for _, desc := range set.Descriptors() {
		doc, err := BuildDocument(desc, resources, ListStyleFor(desc.Version))
		if err != nil {
			return nil, fmt.Errorf("failed to build api document for %s: %w", desc.GroupName(), err)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode api document for %s: %w", desc.GroupName(), err)
		}

		group := desc.GroupName()
		d.documents[group] = raw
		d.groups = append(d.groups, DocGroup{
			Name:       strings.ToUpper(group),
			URL:        "/swagger/" + group + "/swagger.json",
			Deprecated: desc.Deprecated,
		})
	}
	return d, nil
}

// Routes serves GET / (the group index) and GET /{group}/swagger.json.
func (d *Docs) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HandleAPIError(w, r, ErrRouteNotFound)
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, d.groups)
	})
	r.Get("/{group}/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		raw, ok := d.documents[strings.ToLower(chi.URLParam(r, "group"))]
		if !ok {
			HandleAPIError(w, r, fmt.Errorf("%w: no api document for group %q", ErrRouteNotFound, chi.URLParam(r, "group")))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	})
	return r
}

// Groups returns the documentation index.
func (d *Docs) Groups() []DocGroup {
	return append([]DocGroup(nil), d.groups...)
}

// BuildDocument generates the OpenAPI document for one API version.
func BuildDocument(desc versioning.Descriptor, resources []DocResource, style ListStyle) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   DocTitle,
			Version: desc.String(),
		},
		Paths: openapi3.NewPaths(),
	}
	if desc.Deprecated {
		doc.Info.Description = "This API version is deprecated."
	}

	sorted := append([]DocResource(nil), resources...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Registration.Resource < sorted[j].Registration.Resource
	})

	errorSchema := openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewStringSchema()).
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("trace_id", openapi3.NewStringSchema())

	for _, res := range sorted {
		entity, err := openapi3gen.NewSchemaRefForValue(res.Sample, nil, openapi3gen.SchemaCustomizer(customizeSchema))
		if err != nil {
			return nil, fmt.Errorf("failed to derive schema for %s: %w", res.Registration.Resource, err)
		}

		base := "/" + desc.GroupName() + "/" + res.Registration.Resource
		tag := res.Registration.Resource

		list := operation(tag, "list"+title(tag), "List "+tag)
		for _, field := range res.Registration.Filterable {
			list.Parameters = append(list.Parameters, &openapi3.ParameterRef{
				Value: openapi3.NewQueryParameter(field).WithSchema(openapi3.NewStringSchema()),
			})
		}
		listSchema := openapi3.NewArraySchema().WithItems(entity.Value)
		if style == ListEnvelope {
			list.Parameters = append(list.Parameters, &openapi3.ParameterRef{
				Value: openapi3.NewQueryParameter(limitParam).WithSchema(openapi3.NewIntegerSchema()),
			})
			listSchema = openapi3.NewObjectSchema().
				WithProperty("items", listSchema).
				WithProperty("count", openapi3.NewIntegerSchema())
		}
		respond(list, http.StatusOK, "The matching entities", listSchema)

		create := operation(tag, "create"+title(tag), "Create a "+singular(tag))
		create.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(entity.Value),
		}
		respond(create, http.StatusCreated, "The created entity", entity.Value)
		respond(create, http.StatusUnprocessableEntity, "The entity is invalid", errorSchema)

		get := operation(tag, "get"+title(tag), "Get a "+singular(tag))
		respond(get, http.StatusOK, "The entity", entity.Value)
		respond(get, http.StatusNotFound, "The entity does not exist", errorSchema)

		update := operation(tag, "update"+title(tag), "Replace a "+singular(tag))
		update.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(entity.Value),
		}
		respond(update, http.StatusOK, "The updated entity", entity.Value)
		respond(update, http.StatusConflict, "The entity was changed concurrently", errorSchema)

		del := operation(tag, "delete"+title(tag), "Delete a "+singular(tag))
		respond(del, http.StatusNoContent, "The entity was deleted", nil)
		respond(del, http.StatusNotFound, "The entity does not exist", errorSchema)

		idParam := &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewUUIDSchema()),
		}
		doc.Paths.Set(base, &openapi3.PathItem{Get: list, Post: create})
		doc.Paths.Set(base+"/{id}", &openapi3.PathItem{
			Parameters: openapi3.Parameters{idParam},
			Get:        get,
			Put:        update,
			Delete:     del,
		})
	}
	return doc, nil
}

func operation(tag, id, summary string) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.Tags = []string{tag}
	op.OperationID = id
	op.Summary = summary
	return op
}

func respond(op *openapi3.Operation, status int, description string, schema *openapi3.Schema) {
	resp := openapi3.NewResponse().WithDescription(description)
	if schema != nil {
		resp = resp.WithJSONSchema(schema)
	}
	op.AddResponse(status, resp)
}

var uuidType = reflect.TypeOf(uuid.UUID{})

// customizeSchema renders UUIDs as strings instead of byte arrays.
func customizeSchema(_ string, t reflect.Type, _ reflect.StructTag, schema *openapi3.Schema) error {
	if t == uuidType {
		*schema = *openapi3.NewUUIDSchema()
	}
	return nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func singular(resource string) string {
	return strings.TrimSuffix(resource, "s")
}
