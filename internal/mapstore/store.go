// Package mapstore persists position mappings and recently-closed records.
//
// Implementations must be safe for concurrent use. Writes to a single mapping
// are already serialized by the per-source copy trader, so no transactions are
// required; multi-key deletes are best-effort, mapping record first.
package mapstore

import (
	"context"
	"fmt"
	"time"

	"github.com/mirrorfx/router/internal/models"
)

// DefaultClosedTTL is how long a recently-closed record suppresses re-opens.
const DefaultClosedTTL = 15 * time.Minute

// Store is the contract for mapping persistence. Mappings are keyed by
// (source account, source position, destination account): one leg per
// destination route.
type Store interface {
	// CreateMapping stores m keyed by its composite key. Idempotent: if a
	// mapping already exists for the key, the call is a no-op and must not
	// overwrite the existing destination position ID.
	CreateMapping(ctx context.Context, m models.Mapping) error

	// GetMapping returns the mapping for the key, or nil when absent.
	GetMapping(ctx context.Context, sourceAccountID, sourcePositionID, destAccountID string) (*models.Mapping, error)

	// GetPositionMappings returns every leg of one source position.
	GetPositionMappings(ctx context.Context, sourceAccountID, sourcePositionID string) ([]models.Mapping, error)

	// GetAccountMappings returns every mapping for a source account.
	GetAccountMappings(ctx context.Context, sourceAccountID string) ([]models.Mapping, error)

	// FindByDestPosition locates the mapping that owns a destination
	// position, scanning the hinted source accounts first. Returns nil when
	// no mapping references the destination position.
	FindByDestPosition(ctx context.Context, destAccountID, destPositionID string, hintSourceAccountIDs []string) (*models.Mapping, error)

	// DeleteMapping removes the mapping from store and cache.
	DeleteMapping(ctx context.Context, sourceAccountID, sourcePositionID, destAccountID string) error

	// RecordClose writes a recently-closed record with a TTL. Records are
	// keyed by (source account, source position): the close decision covers
	// all destination legs.
	RecordClose(ctx context.Context, info models.CloseInfo) error

	// WasRecentlyClosed reports whether a close record is still inside its
	// TTL window.
	WasRecentlyClosed(ctx context.Context, sourceAccountID, sourcePositionID string) (bool, error)

	// Warm preloads the in-process cache for the given source accounts.
	Warm(ctx context.Context, sourceAccountIDs []string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

func mappingKey(sourceAccountID, sourcePositionID, destAccountID string) string {
	return fmt.Sprintf("map/%s/%s/%s", sourceAccountID, sourcePositionID, destAccountID)
}

func indexKey(sourceAccountID string) string {
	return fmt.Sprintf("map_idx/%s", sourceAccountID)
}

// indexMember encodes the non-source part of the key inside the per-account
// index set.
func indexMember(sourcePositionID, destAccountID string) string {
	return sourcePositionID + "/" + destAccountID
}

func closedKey(sourceAccountID, sourcePositionID string) string {
	return fmt.Sprintf("closed/%s/%s", sourceAccountID, sourcePositionID)
}
