// Package registry provides the location registry for the campus air-quality
// dashboard: an ordered collection of monitoring locations persisted through
// a storage provider.
package registry

import (
	"context"
	"errors"
)

// DefaultStorageKey is the storage key locations are persisted under when no
// other key is configured.
const DefaultStorageKey = "campus_locations"

var (
	// ErrLocationNotFound is returned when no location matches the given id.
	ErrLocationNotFound = errors.New("location not found")
	// ErrLocationExists is returned when creating a location with an id that
	// is already registered.
	ErrLocationExists = errors.New("location already exists")
	// ErrInvalidImport is returned when an import payload is not a JSON
	// array of locations. The registry state is left untouched.
	ErrInvalidImport = errors.New("import payload must be a JSON array of locations")
	// ErrStoreWrite is returned when persisting the collection failed after
	// an in-memory mutation was applied. The mutation is retained; only the
	// durable copy is stale.
	ErrStoreWrite = errors.New("failed to persist locations")
)

// Service defines the operations of the location registry.
//
// Every mutating operation re-serializes the full collection to the storage
// provider. A persistence failure is reported as an error wrapping
// ErrStoreWrite but does not roll back the in-memory mutation; callers can
// distinguish it from a not-found or validation failure with errors.Is.
type Service interface {
	// All returns a copy of the ordered collection.
	All(ctx context.Context) []Location

	// Get returns the location with the given id, or ErrLocationNotFound.
	Get(ctx context.Context, id string) (*Location, error)

	// Search returns all locations whose name or id contains the query,
	// case-insensitively, in insertion order.
	Search(ctx context.Context, query string) []Location

	// Configured returns the locations that have both a channel id and a
	// read key.
	Configured(ctx context.Context) []Location

	// Unconfigured returns the locations missing a channel id or read key.
	// Together with Configured it partitions the collection.
	Unconfigured(ctx context.Context) []Location

	// Create appends a new location, applying field defaults, and persists.
	// A caller-supplied id that is already registered fails with
	// ErrLocationExists and no mutation.
	Create(ctx context.Context, req CreateRequest) (*Location, error)

	// Update merges the non-nil fields of req over the location with the
	// given id and persists. Not-found performs no mutation and no persist.
	Update(ctx context.Context, id string, req UpdateRequest) (*Location, error)

	// Delete removes the location with the given id and persists, returning
	// the removed record. Not-found performs no mutation and no persist.
	Delete(ctx context.Context, id string) (*Location, error)

	// ResetToDefaults replaces the collection with the configured default
	// set and persists.
	ResetToDefaults(ctx context.Context) error

	// ImportJSON replaces the collection with the locations parsed from the
	// payload and persists. Anything but a top-level JSON array fails with
	// ErrInvalidImport and leaves the collection untouched. Records are
	// taken verbatim; no per-record validation is applied.
	ImportJSON(ctx context.Context, payload []byte) error

	// ExportJSON returns the full collection as a pretty-printed JSON array.
	ExportJSON(ctx context.Context) []byte

	// CreateMany creates the valid records through the single-create path,
	// skipping records that fail validation. Returns the created records in
	// input order. The batch is not atomic: each successful create persists
	// immediately.
	CreateMany(ctx context.Context, reqs []CreateRequest) []Location

	// RecordUpdate stamps the location's lastUpdate field and persists.
	// Used by the feed fetch path when fresh data is observed.
	RecordUpdate(ctx context.Context, id string) (*Location, error)
}
