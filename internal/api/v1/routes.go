// Package v1 provides the REST API handlers for the location registry.
package v1

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/registry"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/thingspeak"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/versions"
)

// maxBodySize bounds request bodies; import payloads are the largest. (4MB)
const maxBodySize = 4 * 1024 * 1024

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// BatchResponse is the result of a batch create: the records actually
// created, failures omitted.
type BatchResponse struct {
	Created []registry.Location `json:"created"`
	Count   int                 `json:"count"`
}

// ValidateResponse reports the advisory validation outcome for a request.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ImportResponse reports the collection size after a successful import.
type ImportResponse struct {
	Count int `json:"count"`
}

// TestConnectionRequest carries an ad-hoc channel/key pair to probe.
type TestConnectionRequest struct {
	ChannelID string `json:"channelId"`
	ReadKey   string `json:"readKey"`
}

// LatestResponse pairs the freshest feed entry with the stamped location.
type LatestResponse struct {
	Location *registry.Location `json:"location"`
	Feed     *thingspeak.Feed   `json:"feed"`
}

// Routes defines the routes for the location registry API
type Routes struct {
	service registry.Service
	probe   *thingspeak.Client
}

// NewRoutes creates a new Routes instance with the provided service and
// probe client.
func NewRoutes(svc registry.Service, probe *thingspeak.Client) *Routes {
	return &Routes{
		service: svc,
		probe:   probe,
	}
}

// Router creates a new router for the location registry API
func Router(svc registry.Service, probe *thingspeak.Client) http.Handler {
	routes := NewRoutes(svc, probe)

	r := chi.NewRouter()

	r.Route("/locations", func(r chi.Router) {
		r.Get("/", routes.listLocations)
		r.Post("/", routes.createLocation)
		r.Post("/batch", routes.createBatch)
		r.Get("/export", routes.exportLocations)
		r.Post("/import", routes.importLocations)
		r.Post("/reset", routes.resetLocations)
		r.Post("/validate", routes.validateLocation)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", routes.getLocation)
			r.Put("/", routes.updateLocation)
			r.Delete("/", routes.deleteLocation)
			r.Get("/latest", routes.latestFeed)
			r.Post("/test", routes.testLocation)
		})
	})

	r.Post("/test-connection", routes.testConnection)

	return r
}

// listLocations handles GET /api/v1/locations.
// ?q= runs a case-insensitive search on name and id; ?configured=true|false
// returns one side of the configured partition.
func (rr *Routes) listLocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if q := r.URL.Query().Get("q"); q != "" {
		rr.writeJSONResponse(w, rr.service.Search(ctx, q))
		return
	}

	switch r.URL.Query().Get("configured") {
	case "true":
		rr.writeJSONResponse(w, rr.service.Configured(ctx))
	case "false":
		rr.writeJSONResponse(w, rr.service.Unconfigured(ctx))
	case "":
		rr.writeJSONResponse(w, rr.service.All(ctx))
	default:
		rr.writeErrorResponse(w, "configured must be true or false", http.StatusBadRequest)
	}
}

// createLocation handles POST /api/v1/locations
func (rr *Routes) createLocation(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateRequest
	if !rr.decodeBody(w, r, &req) {
		return
	}

	loc, err := rr.service.Create(r.Context(), req)
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	rr.encode(w, loc)
}

// createBatch handles POST /api/v1/locations/batch
func (rr *Routes) createBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []registry.CreateRequest
	if !rr.decodeBody(w, r, &reqs) {
		return
	}

	created := rr.service.CreateMany(r.Context(), reqs)
	rr.writeJSONResponse(w, BatchResponse{Created: created, Count: len(created)})
}

// getLocation handles GET /api/v1/locations/{id}
func (rr *Routes) getLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := rr.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, loc)
}

// updateLocation handles PUT /api/v1/locations/{id}
func (rr *Routes) updateLocation(w http.ResponseWriter, r *http.Request) {
	var req registry.UpdateRequest
	if !rr.decodeBody(w, r, &req) {
		return
	}

	loc, err := rr.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, loc)
}

// deleteLocation handles DELETE /api/v1/locations/{id} and returns the
// removed record.
func (rr *Routes) deleteLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := rr.service.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, loc)
}

// exportLocations handles GET /api/v1/locations/export
func (rr *Routes) exportLocations(w http.ResponseWriter, r *http.Request) {
	data := rr.service.ExportJSON(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="locations.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write export response", "error", err)
	}
}

// importLocations handles POST /api/v1/locations/import
func (rr *Routes) importLocations(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		rr.writeErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if err := rr.service.ImportJSON(r.Context(), payload); err != nil {
		rr.writeServiceError(w, err)
		return
	}

	rr.writeJSONResponse(w, ImportResponse{Count: len(rr.service.All(r.Context()))})
}

// resetLocations handles POST /api/v1/locations/reset
func (rr *Routes) resetLocations(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.ResetToDefaults(r.Context()); err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, rr.service.All(r.Context()))
}

// validateLocation handles POST /api/v1/locations/validate.
// Validation is advisory: it never blocks a create, it just reports.
func (rr *Routes) validateLocation(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateRequest
	if !rr.decodeBody(w, r, &req) {
		return
	}

	msgs := registry.Validate(req)
	if msgs == nil {
		msgs = []string{}
	}
	rr.writeJSONResponse(w, ValidateResponse{Valid: len(msgs) == 0, Errors: msgs})
}

// testLocation handles POST /api/v1/locations/{id}/test
func (rr *Routes) testLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := rr.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}

	if !loc.Configured() {
		rr.writeErrorResponse(w, "Location has no channel id or read key configured", http.StatusBadRequest)
		return
	}

	// Probe failures are data, not transport errors: always 200.
	result := rr.probe.TestConnection(r.Context(), loc.ChannelID, loc.ReadKey)
	rr.writeJSONResponse(w, result)
}

// testConnection handles POST /api/v1/test-connection for an ad-hoc
// channel/key pair.
func (rr *Routes) testConnection(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if !rr.decodeBody(w, r, &req) {
		return
	}

	if req.ChannelID == "" {
		rr.writeErrorResponse(w, "channelId is required", http.StatusBadRequest)
		return
	}

	result := rr.probe.TestConnection(r.Context(), req.ChannelID, req.ReadKey)
	rr.writeJSONResponse(w, result)
}

// latestFeed handles GET /api/v1/locations/{id}/latest. A successful fetch
// stamps the location's lastUpdate.
func (rr *Routes) latestFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	loc, err := rr.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		rr.writeServiceError(w, err)
		return
	}

	if !loc.Configured() {
		rr.writeErrorResponse(w, "Location has no channel id or read key configured", http.StatusBadRequest)
		return
	}

	feed, err := rr.probe.LatestFeed(ctx, loc.ChannelID, loc.ReadKey)
	if err != nil {
		if errors.Is(err, thingspeak.ErrNoData) {
			rr.writeErrorResponse(w, "Channel has no feed entries", http.StatusNotFound)
			return
		}
		rr.writeErrorResponse(w, "Failed to fetch feed: "+err.Error(), http.StatusBadGateway)
		return
	}

	stamped, err := rr.service.RecordUpdate(ctx, loc.ID)
	if err != nil {
		// Feed data is still worth returning; the stamp is best-effort.
		slog.Warn("Failed to record location update", "id", loc.ID, "error", err)
		stamped = loc
	}

	rr.writeJSONResponse(w, LatestResponse{Location: stamped, Feed: feed})
}

// HealthRouter creates a router for health check endpoints
func HealthRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler)
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests. The registry loads at
// construction, so a serving process is always ready.
func readinessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		slog.Error("Failed to encode version info", "error", err)
	}
}

// decodeBody decodes a JSON request body into dst, writing a 400 on failure.
func (rr *Routes) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(dst); err != nil {
		rr.writeErrorResponse(w, "Invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSONResponse writes a JSON response with the given data
func (rr *Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	rr.encode(w, data)
}

func (*Routes) encode(w http.ResponseWriter, data any) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// writeServiceError maps registry errors onto HTTP status codes.
// A store-write failure keeps the in-memory mutation; the 500 tells the
// caller only the durable copy is stale.
func (rr *Routes) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrLocationNotFound):
		rr.writeErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, registry.ErrLocationExists):
		rr.writeErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, registry.ErrInvalidImport):
		rr.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, registry.ErrStoreWrite):
		rr.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
	default:
		rr.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}
