package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/registry"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/storage"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/thingspeak"
)

const testReadKey = "ABCDEF0123456789"

var testDefaults = []registry.Location{
	{ID: "library", Name: "Library", ChannelID: "111111", ReadKey: testReadKey},
	{ID: "gym", Name: "Gymnasium"},
}

// newTestRouter builds the v1 router over an in-memory registry and a stub
// ThingSpeak endpoint.
func newTestRouter(t *testing.T, tsHandler http.HandlerFunc) http.Handler {
	t.Helper()

	svc, err := registry.New(context.Background(), storage.NewMemoryStore(),
		registry.WithDefaults(testDefaults))
	require.NoError(t, err)

	if tsHandler == nil {
		tsHandler = func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"channel":{"id":111111},"feeds":[{"created_at":"2026-03-01T08:30:00Z","entry_id":7,"field1":"580","field2":"51.2"}]}`))
		}
	}
	ts := httptest.NewServer(tsHandler)
	t.Cleanup(ts.Close)

	probe := thingspeak.NewClient(thingspeak.WithBaseURL(ts.URL), thingspeak.WithMaxRetries(1))
	return Router(svc, probe)
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeLocations(t *testing.T, w *httptest.ResponseRecorder) []registry.Location {
	t.Helper()
	var locs []registry.Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &locs))
	return locs
}

func TestListLocations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantIDs    []string
	}{
		{name: "all", path: "/locations", wantStatus: http.StatusOK, wantIDs: []string{"library", "gym"}},
		{name: "search", path: "/locations?q=LIB", wantStatus: http.StatusOK, wantIDs: []string{"library"}},
		{name: "search_no_match", path: "/locations?q=pool", wantStatus: http.StatusOK, wantIDs: []string{}},
		{name: "configured", path: "/locations?configured=true", wantStatus: http.StatusOK, wantIDs: []string{"library"}},
		{name: "unconfigured", path: "/locations?configured=false", wantStatus: http.StatusOK, wantIDs: []string{"gym"}},
		{name: "bad_configured_value", path: "/locations?configured=maybe", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router := newTestRouter(t, nil)

			w := doRequest(t, router, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			locs := decodeLocations(t, w)
			ids := make([]string, 0, len(locs))
			for _, loc := range locs {
				ids = append(ids, loc.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestCreateLocation(t *testing.T) {
	t.Parallel()

	t.Run("created", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodPost, "/locations",
			registry.CreateRequest{Name: "Swimming Pool", ChannelID: "333333", ReadKey: testReadKey})
		require.Equal(t, http.StatusCreated, w.Code)

		var loc registry.Location
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
		assert.Equal(t, "Swimming Pool", loc.Name)
		assert.NotEmpty(t, loc.ID)
		assert.Nil(t, loc.LastUpdate)
	})

	t.Run("duplicate_id_conflicts", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodPost, "/locations",
			registry.CreateRequest{ID: "library", Name: "Duplicate"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid_body", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/locations", bytes.NewReader([]byte("not json")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetLocation(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	w := doRequest(t, router, http.MethodGet, "/locations/library", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var loc registry.Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
	assert.Equal(t, "Library", loc.Name)

	w = doRequest(t, router, http.MethodGet, "/locations/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateLocation(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	w := doRequest(t, router, http.MethodPut, "/locations/gym",
		map[string]string{"channelId": "222222", "readKey": testReadKey})
	require.Equal(t, http.StatusOK, w.Code)

	var loc registry.Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
	assert.Equal(t, "222222", loc.ChannelID)
	assert.Equal(t, "Gymnasium", loc.Name)

	w = doRequest(t, router, http.MethodPut, "/locations/nope", map[string]string{"name": "Renamed"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteLocation(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	w := doRequest(t, router, http.MethodDelete, "/locations/gym", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var removed registry.Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &removed))
	assert.Equal(t, "Gymnasium", removed.Name)

	w = doRequest(t, router, http.MethodGet, "/locations", nil)
	assert.Len(t, decodeLocations(t, w), 1)

	w = doRequest(t, router, http.MethodDelete, "/locations/gym", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBatch(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	w := doRequest(t, router, http.MethodPost, "/locations/batch", []registry.CreateRequest{
		{Name: "Swimming Pool", ChannelID: "333333", ReadKey: testReadKey},
		{Name: "", ChannelID: "444444"},
		{Name: "Cafeteria"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Created, 2)
	assert.Equal(t, "Swimming Pool", resp.Created[0].Name)
	assert.Equal(t, "Cafeteria", resp.Created[1].Name)
}

func TestExportImport(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	w := doRequest(t, router, http.MethodGet, "/locations/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "locations.json")

	exported := decodeLocations(t, w)
	require.Len(t, exported, 2)

	// Feed the export straight back through import.
	req := httptest.NewRequest(http.MethodPost, "/locations/import", bytes.NewReader(w.Body.Bytes()))
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestImportRejectsNonArray(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	for _, payload := range []string{`{"a":1}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/locations/import", bytes.NewReader([]byte(payload)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %q", payload)
	}

	// Collection is untouched.
	w := doRequest(t, router, http.MethodGet, "/locations", nil)
	assert.Len(t, decodeLocations(t, w), 2)
}

func TestResetLocations(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	w := doRequest(t, router, http.MethodDelete, "/locations/library", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodPost, "/locations/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeLocations(t, w), 2)
}

func TestValidateLocation(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t, nil)

	w := doRequest(t, router, http.MethodPost, "/locations/validate",
		registry.CreateRequest{Name: "Library", ChannelID: "123456", ReadKey: testReadKey})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Errors)

	w = doRequest(t, router, http.MethodPost, "/locations/validate",
		registry.CreateRequest{ChannelID: "chan-1", ReadKey: "abc"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Len(t, resp.Errors, 3)
}

func TestTestLocation(t *testing.T) {
	t.Parallel()

	t.Run("configured_location_probed", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodPost, "/locations/library/test", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var result thingspeak.ProbeResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Success)
		assert.True(t, result.HasData)
	})

	t.Run("probe_failure_still_200", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		w := doRequest(t, router, http.MethodPost, "/locations/library/test", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var result thingspeak.ProbeResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.False(t, result.Success)
	})

	t.Run("unconfigured_location_rejected", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodPost, "/locations/gym/test", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown_location", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodPost, "/locations/nope/test", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	t.Run("ad_hoc_probe", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodPost, "/test-connection",
			TestConnectionRequest{ChannelID: "999999", ReadKey: testReadKey})
		require.Equal(t, http.StatusOK, w.Code)

		var result thingspeak.ProbeResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Success)
	})

	t.Run("missing_channel_id", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodPost, "/test-connection",
			TestConnectionRequest{ReadKey: testReadKey})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLatestFeed(t *testing.T) {
	t.Parallel()

	t.Run("returns_feed_and_stamps_location", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodGet, "/locations/library/latest", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp LatestResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Feed)
		assert.Equal(t, "580", resp.Feed.Field1)
		require.NotNil(t, resp.Location)
		assert.NotNil(t, resp.Location.LastUpdate)
	})

	t.Run("empty_channel_is_404", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"channel":{"id":111111},"feeds":[]}`))
		})

		w := doRequest(t, router, http.MethodGet, "/locations/library/latest", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("upstream_failure_is_502", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		w := doRequest(t, router, http.MethodGet, "/locations/library/latest", nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unconfigured_location_rejected", func(t *testing.T) {
		t.Parallel()
		router := newTestRouter(t, nil)

		w := doRequest(t, router, http.MethodGet, "/locations/gym/latest", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthRouter(t *testing.T) {
	t.Parallel()
	router := HealthRouter()

	for _, tt := range []struct {
		path string
		want string
	}{
		{path: "/health", want: `"healthy"`},
		{path: "/readiness", want: `"ready"`},
		{path: "/version", want: `"version"`},
	} {
		w := doRequest(t, router, http.MethodGet, tt.path, nil)
		require.Equal(t, http.StatusOK, w.Code, tt.path)
		assert.Contains(t, w.Body.String(), tt.want, tt.path)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	}
}

func TestStoreWriteFailureIs500(t *testing.T) {
	t.Parallel()

	// A store that accepts the initial load but fails every write.
	svc, err := registry.New(context.Background(), failingStore{},
		registry.WithDefaults(testDefaults))
	require.NoError(t, err)

	router := Router(svc, thingspeak.NewClient())

	w := doRequest(t, router, http.MethodPost, "/locations", registry.CreateRequest{Name: "Swimming Pool"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// The mutation survives the failed persist.
	w = doRequest(t, router, http.MethodGet, "/locations", nil)
	assert.Len(t, decodeLocations(t, w), 3)
}

type failingStore struct{}

func (failingStore) Get(_ context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", storage.ErrKeyNotFound, key)
}

func (failingStore) Set(context.Context, string, []byte) error {
	return fmt.Errorf("write rejected")
}
