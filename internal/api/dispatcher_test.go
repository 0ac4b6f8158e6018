package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/bookings-api/internal/api/versioning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVersions(t *testing.T) *versioning.Set {
	t.Helper()
	set, err := versioning.NewSet([]string{"1.0", "2.0"}, nil, "1.0")
	require.NoError(t, err)
	return set
}

func mustVersion(t *testing.T, raw string) versioning.Version {
	t.Helper()
	v, err := versioning.Parse(raw)
	require.NoError(t, err)
	return v
}

// echoHandler writes its name and the id path parameter.
func echoHandler(name string) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(name))
	})
	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(name + ":" + chi.URLParam(r, "id")))
	})
	return r
}

func dispatch(t *testing.T, d *Dispatcher, version, path string) *httptest.ResponseRecorder {
	t.Helper()
	desc, ok := d.versions.Lookup(mustVersion(t, version))
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(versioning.WithResolution(req.Context(), versioning.Resolution{Descriptor: desc}))
	rr := httptest.NewRecorder()
	d.ServeHTTP(rr, req)
	return rr
}

func TestDispatcherSelectsByResourceAndVersion(t *testing.T) {
	d := NewDispatcher(testVersions(t))
	require.NoError(t, d.Register("bookings", mustVersion(t, "1.0"), echoHandler("bookings-v1")))
	require.NoError(t, d.Register("bookings", mustVersion(t, "2.0"), echoHandler("bookings-v2")))
	require.NoError(t, d.Register("repairs", mustVersion(t, "1.0"), echoHandler("repairs-v1")))

	tests := []struct {
		version string
		path    string
		want    string
	}{
		{"1.0", "/bookings", "bookings-v1"},
		{"1.0", "/v1.0/bookings", "bookings-v1"},
		{"2.0", "/v2/bookings/", "bookings-v2"},
		{"2.0", "/bookings/abc", "bookings-v2:abc"},
		{"1.0", "/repairs/42", "repairs-v1:42"},
	}
	for _, tc := range tests {
		t.Run(tc.version+tc.path, func(t *testing.T) {
			rr := dispatch(t, d, tc.version, tc.path)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tc.want, rr.Body.String())
		})
	}
}

func TestDispatcherRouteNotFound(t *testing.T) {
	d := NewDispatcher(testVersions(t))
	require.NoError(t, d.Register("repairs", mustVersion(t, "1.0"), echoHandler("repairs-v1")))

	for _, tc := range []struct{ version, path string }{
		{"2.0", "/repairs"},  // resource exists, but not in this version
		{"1.0", "/invoices"}, // resource never registered
		{"1.0", "/"},         // no resource at all
	} {
		rr := dispatch(t, d, tc.version, tc.path)
		assert.Equal(t, http.StatusNotFound, rr.Code, tc.path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, CodeRouteNotFound, body["code"])
	}
}

func TestDispatcherRegister(t *testing.T) {
	d := NewDispatcher(testVersions(t))
	v1 := mustVersion(t, "1.0")

	require.NoError(t, d.Register("bookings", v1, echoHandler("a")))
	assert.ErrorIs(t, d.Register("bookings", v1, echoHandler("b")), ErrInvalidRoute, "duplicate pair")
	assert.ErrorIs(t, d.Register("bookings", mustVersion(t, "3.0"), echoHandler("c")), ErrInvalidRoute, "unsupported version")
	assert.ErrorIs(t, d.Register("", v1, echoHandler("d")), ErrInvalidRoute)
	assert.ErrorIs(t, d.Register("a/b", v1, echoHandler("e")), ErrInvalidRoute)

	require.NoError(t, d.Register("customers", mustVersion(t, "2.0"), echoHandler("f")))
	require.NoError(t, d.Register("apples", v1, echoHandler("g")))
	assert.Equal(t, []Route{
		{Resource: "apples", Version: v1},
		{Resource: "bookings", Version: v1},
		{Resource: "customers", Version: mustVersion(t, "2.0")},
	}, d.Routes())
}

func TestDispatcherWithoutResolution(t *testing.T) {
	d := NewDispatcher(testVersions(t))
	rr := httptest.NewRecorder()
	d.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/bookings", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
