// Package reconciler is the safety net under the copy traders: it finds
// destination positions that no mapping owns and closes them, and it nudges
// traders to redrive closes that got stuck. It never opens positions.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mirrorfx/router/internal/config"
	"github.com/mirrorfx/router/internal/mapstore"
	"github.com/mirrorfx/router/internal/models"
	"github.com/mirrorfx/router/internal/pool"
	"github.com/mirrorfx/router/internal/telemetry"
)

// DefaultOrphanGrace is the minimum age of an orphan candidate before it is
// closed. Two independent sightings at least this far apart are required, so
// an in-flight open whose mapping write is racing the scan is left alone.
const DefaultOrphanGrace = 30 * time.Second

type destKey struct {
	accountID  string
	positionID string
}

// Reconciler cross-checks live destination positions against the mapping
// store on a slow cadence.
type Reconciler struct {
	pool     pool.API
	store    mapstore.Store
	routes   *config.Provider
	notifier telemetry.Notifier
	logger   *logrus.Entry
	grace    time.Duration
	// redrive asks the source's trader to re-run close replication. The
	// trader owns its mapping space, so the reconciler never closes mapped
	// legs itself.
	redrive func(sourceAccountID string)

	pending map[destKey]time.Time
	now     func() time.Time
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithOrphanGrace overrides the candidate confirmation window.
func WithOrphanGrace(d time.Duration) Option {
	return func(r *Reconciler) { r.grace = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a reconciler.
func New(p pool.API, store mapstore.Store, routes *config.Provider, notifier telemetry.Notifier,
	redrive func(sourceAccountID string), logger *logrus.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		pool:     p,
		store:    store,
		routes:   routes,
		notifier: notifier,
		logger:   logger.WithField("component", "reconciler"),
		grace:    DefaultOrphanGrace,
		redrive:  redrive,
		pending:  make(map[destKey]time.Time),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RunOnce executes one reconciliation sweep. Scheduled by the service; also
// callable from tests.
func (r *Reconciler) RunOnce(ctx context.Context) {
	table := r.routes.Current()

	mappings, err := r.loadMappings(ctx, table)
	if err != nil {
		r.logger.WithError(err).Warn("mapping store unavailable, skipping sweep")
		return
	}

	r.sweepOrphans(ctx, table, mappings)
	r.redriveStuckCloses(ctx, table, mappings)
}

func (r *Reconciler) loadMappings(ctx context.Context, table *config.RoutingTable) ([]models.Mapping, error) {
	var all []models.Mapping
	for i := range table.Sources {
		mappings, err := r.store.GetAccountMappings(ctx, table.Sources[i].SourceAccountID)
		if err != nil {
			return nil, err
		}
		all = append(all, mappings...)
	}
	return all, nil
}

// sweepOrphans closes destination positions that no mapping owns. A candidate
// must be sighted unmapped twice, at least grace apart, before it is closed.
func (r *Reconciler) sweepOrphans(ctx context.Context, table *config.RoutingTable, mappings []models.Mapping) {
	owned := make(map[destKey]bool, len(mappings))
	for i := range mappings {
		owned[destKey{mappings[i].DestAccountID, mappings[i].DestPositionID}] = true
	}

	seen := make(map[destKey]bool)
	for _, dest := range destinationAccounts(table) {
		positions, err := r.pool.Positions(ctx, dest.accountID, dest.region)
		if err != nil {
			// Transport failure is not an empty account. Leave the pending
			// entries for this account untouched.
			r.logger.WithError(err).WithField("dest", dest.accountID).Warn("destination snapshot unavailable")
			r.keepPendingFor(dest.accountID, seen)
			continue
		}

		for i := range positions {
			key := destKey{dest.accountID, positions[i].ID}
			seen[key] = true
			if owned[key] {
				delete(r.pending, key)
				continue
			}
			firstSeen, known := r.pending[key]
			if !known {
				r.pending[key] = r.now()
				r.logger.WithFields(logrus.Fields{
					"dest":          dest.accountID,
					"dest_position": positions[i].ID,
					"symbol":        positions[i].Symbol,
				}).Info("orphan candidate sighted")
				continue
			}
			if r.now().Sub(firstSeen) < r.grace {
				continue
			}
			r.closeOrphan(ctx, dest, &positions[i], key)
		}
	}

	for key := range r.pending {
		if !seen[key] {
			delete(r.pending, key)
		}
	}
}

func (r *Reconciler) closeOrphan(ctx context.Context, dest destAccount, position *models.Position, key destKey) {
	_, err := r.pool.ClosePosition(ctx, dest.accountID, dest.region, position.ID)
	if err != nil && !pool.IsUnknownPosition(err) {
		// Keep the candidate; the next sweep retries.
		r.logger.WithError(err).WithFields(logrus.Fields{
			"dest":          dest.accountID,
			"dest_position": position.ID,
		}).Error("failed to close orphan")
		return
	}
	delete(r.pending, key)
	r.logger.WithFields(logrus.Fields{
		"dest":          dest.accountID,
		"dest_position": position.ID,
		"symbol":        position.Symbol,
		"profit":        position.Profit,
	}).Warn("orphan position closed")
	r.notifier.Notify(ctx, telemetry.SeverityWarning,
		fmt.Sprintf("orphan closed on %s", r.routes.Nickname(dest.accountID)),
		fmt.Sprintf("position %s (%s %.2f lots) had no mapping and was closed",
			position.ID, position.Symbol, position.Volume))
}

// keepPendingFor marks every pending candidate of an unreachable account as
// seen so the end-of-sweep prune does not drop them.
func (r *Reconciler) keepPendingFor(accountID string, seen map[destKey]bool) {
	for key := range r.pending {
		if key.accountID == accountID {
			seen[key] = true
		}
	}
}

// redriveStuckCloses asks traders to re-run close replication for sources
// whose mappings reference positions the source no longer holds.
func (r *Reconciler) redriveStuckCloses(ctx context.Context, table *config.RoutingTable, mappings []models.Mapping) {
	bySource := make(map[string][]models.Mapping)
	for i := range mappings {
		bySource[mappings[i].SourceAccountID] = append(bySource[mappings[i].SourceAccountID], mappings[i])
	}

	for i := range table.Sources {
		src := &table.Sources[i]
		legs := bySource[src.SourceAccountID]
		if len(legs) == 0 {
			continue
		}
		positions, err := r.pool.Positions(ctx, src.SourceAccountID, src.Region)
		if err != nil {
			r.logger.WithError(err).WithField("source", src.SourceAccountID).Warn("source snapshot unavailable")
			continue
		}
		open := make(map[string]bool, len(positions))
		for j := range positions {
			open[positions[j].ID] = true
		}
		for j := range legs {
			if !open[legs[j].SourcePositionID] {
				r.logger.WithFields(logrus.Fields{
					"source":   src.SourceAccountID,
					"position": legs[j].SourcePositionID,
				}).Info("stuck close detected, redriving")
				r.redrive(src.SourceAccountID)
				break
			}
		}
	}
}

type destAccount struct {
	accountID string
	region    string
}

// destinationAccounts returns the distinct destination accounts of the table.
func destinationAccounts(table *config.RoutingTable) []destAccount {
	seen := make(map[string]bool)
	var out []destAccount
	for i := range table.Sources {
		for j := range table.Sources[i].Destinations {
			d := &table.Sources[i].Destinations[j]
			if seen[d.AccountID] {
				continue
			}
			seen[d.AccountID] = true
			out = append(out, destAccount{accountID: d.AccountID, region: d.Region})
		}
	}
	return out
}
