package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/storage"
	"github.com/SCYip/BIPH-Air-Monitoring-System/internal/telemetry"
)

// locationRegistry implements the Service interface over a storage provider.
type locationRegistry struct {
	mu    sync.RWMutex // Protects locations
	store storage.Store

	storageKey string
	defaults   []Location
	locations  []Location

	now func() time.Time
}

var _ Service = (*locationRegistry)(nil)

// Option is a functional option for configuring the registry.
type Option func(*locationRegistry)

// WithStorageKey overrides the storage key the collection is persisted under.
func WithStorageKey(key string) Option {
	return func(r *locationRegistry) {
		r.storageKey = key
	}
}

// WithDefaults sets the default location set used when storage is empty or
// unreadable and by ResetToDefaults.
func WithDefaults(defaults []Location) Option {
	return func(r *locationRegistry) {
		r.defaults = defaults
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *locationRegistry) {
		r.now = now
	}
}

// New creates a location registry backed by the given store and loads the
// collection once. An absent, corrupt, or unreadable blob degrades to the
// default set with a logged warning; it is not an error.
func New(ctx context.Context, store storage.Store, opts ...Option) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("storage provider is required")
	}

	r := &locationRegistry{
		store:      store,
		storageKey: DefaultStorageKey,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.load(ctx)
	return r, nil
}

// load reads the persisted collection, falling back to the default set.
func (r *locationRegistry) load(ctx context.Context) {
	r.locations = cloneAll(r.defaults)

	data, err := r.store.Get(ctx, r.storageKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			slog.InfoContext(ctx, "No stored locations found, using defaults",
				"key", r.storageKey, "default_count", len(r.defaults))
		} else {
			slog.WarnContext(ctx, "Failed to read stored locations, using defaults",
				"key", r.storageKey, "error", err)
		}
		return
	}

	var locations []Location
	if err := json.Unmarshal(data, &locations); err != nil {
		slog.WarnContext(ctx, "Stored locations are corrupt, using defaults",
			"key", r.storageKey, "error", err)
		return
	}

	r.locations = locations
	slog.InfoContext(ctx, "Loaded locations", "key", r.storageKey, "count", len(locations))
}

// save persists the full collection. Caller must hold r.mu.
// A failure is logged and reported as a wrapped ErrStoreWrite; the in-memory
// collection already reflects the mutation and is kept.
func (r *locationRegistry) save(ctx context.Context) error {
	data, err := json.MarshalIndent(r.locations, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	if err := r.store.Set(ctx, r.storageKey, data); err != nil {
		slog.WarnContext(ctx, "Failed to persist locations, in-memory state retained",
			"key", r.storageKey, "error", err)
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	return nil
}

// All implements Service.All.
func (r *locationRegistry) All(_ context.Context) []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.locations)
}

// Get implements Service.Get.
func (r *locationRegistry) Get(_ context.Context, id string) (*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		loc := r.locations[i].clone()
		return &loc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
}

// Search implements Service.Search.
func (r *locationRegistry) Search(_ context.Context, query string) []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	matches := make([]Location, 0)
	for i := range r.locations {
		loc := &r.locations[i]
		if strings.Contains(strings.ToLower(loc.Name), q) ||
			strings.Contains(strings.ToLower(loc.ID), q) {
			matches = append(matches, loc.clone())
		}
	}
	return matches
}

// Configured implements Service.Configured.
func (r *locationRegistry) Configured(_ context.Context) []Location {
	return r.filter(func(l *Location) bool { return l.Configured() })
}

// Unconfigured implements Service.Unconfigured.
func (r *locationRegistry) Unconfigured(_ context.Context) []Location {
	return r.filter(func(l *Location) bool { return !l.Configured() })
}

func (r *locationRegistry) filter(keep func(*Location) bool) []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Location, 0)
	for i := range r.locations {
		if keep(&r.locations[i]) {
			out = append(out, r.locations[i].clone())
		}
	}
	return out
}

// Create implements Service.Create.
func (r *locationRegistry) Create(ctx context.Context, req CreateRequest) (*Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, err := r.createLocked(ctx, req)
	telemetry.RecordRegistryOp("create", err)
	return loc, err
}

// createLocked builds the new record, appends it, and persists.
// Caller must hold r.mu.
func (r *locationRegistry) createLocked(ctx context.Context, req CreateRequest) (*Location, error) {
	id := req.ID
	if id == "" {
		id = r.generateIDLocked()
	} else if r.indexOf(id) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrLocationExists, id)
	}

	name := req.Name
	if strings.TrimSpace(name) == "" {
		name = "Unnamed Location"
	}

	loc := Location{
		ID:         id,
		Name:       name,
		ChannelID:  req.ChannelID,
		ReadKey:    req.ReadKey,
		LastUpdate: nil,
	}
	r.locations = append(r.locations, loc)

	slog.InfoContext(ctx, "Created location", "id", loc.ID, "name", loc.Name)

	if err := r.save(ctx); err != nil {
		// The record is in the collection; only the durable copy is stale.
		created := loc.clone()
		return &created, err
	}

	created := loc.clone()
	return &created, nil
}

// generateIDLocked returns a fresh id of the form "loc_<unix-millis>",
// disambiguated when several locations are created within one millisecond.
// Caller must hold r.mu.
func (r *locationRegistry) generateIDLocked() string {
	base := fmt.Sprintf("loc_%d", r.now().UnixMilli())
	id := base
	for n := 2; r.indexOf(id) >= 0; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	return id
}

// Update implements Service.Update.
func (r *locationRegistry) Update(ctx context.Context, id string, req UpdateRequest) (*Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		telemetry.RecordRegistryOp("update", ErrLocationNotFound)
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}

	loc := &r.locations[i]
	if req.Name != nil {
		loc.Name = *req.Name
	}
	if req.ChannelID != nil {
		loc.ChannelID = *req.ChannelID
	}
	if req.ReadKey != nil {
		loc.ReadKey = *req.ReadKey
	}

	slog.InfoContext(ctx, "Updated location", "id", id)

	err := r.save(ctx)
	telemetry.RecordRegistryOp("update", err)
	updated := loc.clone()
	return &updated, err
}

// Delete implements Service.Delete.
func (r *locationRegistry) Delete(ctx context.Context, id string) (*Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		telemetry.RecordRegistryOp("delete", ErrLocationNotFound)
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}

	removed := r.locations[i].clone()
	r.locations = append(r.locations[:i], r.locations[i+1:]...)

	slog.InfoContext(ctx, "Deleted location", "id", id, "name", removed.Name)

	err := r.save(ctx)
	telemetry.RecordRegistryOp("delete", err)
	return &removed, err
}

// ResetToDefaults implements Service.ResetToDefaults.
func (r *locationRegistry) ResetToDefaults(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.locations = cloneAll(r.defaults)
	slog.InfoContext(ctx, "Reset locations to defaults", "count", len(r.defaults))

	err := r.save(ctx)
	telemetry.RecordRegistryOp("reset", err)
	return err
}

// ImportJSON implements Service.ImportJSON.
func (r *locationRegistry) ImportJSON(ctx context.Context, payload []byte) error {
	var locations []Location
	if err := json.Unmarshal(payload, &locations); err != nil {
		telemetry.RecordRegistryOp("import", ErrInvalidImport)
		slog.WarnContext(ctx, "Rejected import payload", "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}
	if locations == nil {
		// "null" unmarshals cleanly but is not an array.
		telemetry.RecordRegistryOp("import", ErrInvalidImport)
		return ErrInvalidImport
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.locations = locations
	slog.InfoContext(ctx, "Imported locations", "count", len(locations))

	err := r.save(ctx)
	telemetry.RecordRegistryOp("import", err)
	return err
}

// ExportJSON implements Service.ExportJSON.
func (r *locationRegistry) ExportJSON(_ context.Context) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Marshaling a slice of plain structs cannot fail.
	data, _ := json.MarshalIndent(r.locations, "", "  ")
	return data
}

// CreateMany implements Service.CreateMany.
func (r *locationRegistry) CreateMany(ctx context.Context, reqs []CreateRequest) []Location {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := make([]Location, 0, len(reqs))
	for i, req := range reqs {
		if msgs := Validate(req); len(msgs) > 0 {
			slog.WarnContext(ctx, "Skipping invalid location in batch",
				"index", i, "name", req.Name, "errors", strings.Join(msgs, "; "))
			continue
		}

		loc, err := r.createLocked(ctx, req)
		telemetry.RecordRegistryOp("create", err)
		if loc == nil {
			slog.WarnContext(ctx, "Skipping location in batch", "index", i, "error", err)
			continue
		}
		created = append(created, *loc)
	}
	return created
}

// RecordUpdate implements Service.RecordUpdate.
func (r *locationRegistry) RecordUpdate(ctx context.Context, id string) (*Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}

	t := r.now()
	r.locations[i].LastUpdate = &t

	err := r.save(ctx)
	stamped := r.locations[i].clone()
	return &stamped, err
}

// indexOf returns the index of the first location with the given id, or -1.
// Caller must hold r.mu.
func (r *locationRegistry) indexOf(id string) int {
	for i := range r.locations {
		if r.locations[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(locations []Location) []Location {
	out := make([]Location, 0, len(locations))
	for i := range locations {
		out = append(out, locations[i].clone())
	}
	return out
}
