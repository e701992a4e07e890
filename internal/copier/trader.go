// Package copier replicates position lifecycles from source accounts to their
// configured destinations. One Trader goroutine per source account owns every
// mapping of that source, so replication decisions never race.
package copier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mirrorfx/router/internal/config"
	"github.com/mirrorfx/router/internal/mapstore"
	"github.com/mirrorfx/router/internal/models"
	"github.com/mirrorfx/router/internal/pool"
	"github.com/mirrorfx/router/internal/retry"
	"github.com/mirrorfx/router/internal/sizing"
	"github.com/mirrorfx/router/internal/telemetry"
)

// Close results recorded in the store.
const (
	closeResultClosed        = "closed"
	closeResultAlreadyClosed = "already_closed"
	closeResultManual        = "manual"
)

// Terminal skip memos. Legs carrying these are never re-attempted while the
// source position stays open; everything else re-evaluates on the next tick.
const (
	reasonBrokerRejected = "broker rejected"
	reasonUnmanaged      = "mapping write failed"
)

// closeAlertCooldown caps how often one unresolved leg may page the operator.
const closeAlertCooldown = 5 * time.Minute

// storePolicy retries mapping writes that race a store hiccup right after a
// fill. Short and local: the alternative is an unmanaged destination position.
var storePolicy = retry.Policy{MaxAttempts: 3, Min: time.Second, Max: 5 * time.Second, Factor: 2}

// EventKind classifies control events delivered to a trader.
type EventKind int

const (
	// EventResync forgets skip memos and runs a tick immediately. Posted on
	// pool reconnection callbacks and operator request.
	EventResync EventKind = iota
	// EventForceExit closes every destination leg of one source position
	// regardless of whether the source still holds it.
	EventForceExit
	// EventRedriveCloses re-runs close replication only. Posted by the
	// reconciler when it spots mappings whose source position is gone.
	EventRedriveCloses
)

// Event is a control message for a trader.
type Event struct {
	Kind       EventKind
	PositionID string
}

// TraderParams wires a Trader's dependencies.
type TraderParams struct {
	SourceAccountID string
	Pool            pool.API
	Store           mapstore.Store
	Routes          *config.Provider
	Exits           *ExitCopier
	Notifier        telemetry.Notifier
	Stats           *models.SourceStats
	Logger          *logrus.Logger
	TickInterval    time.Duration
	EventQueueSize  int
	ShutdownGrace   time.Duration
	OpenPolicy      *retry.Policy
}

// Trader polls one source account and keeps its destinations in sync: opens
// are replicated with retry, stop changes are mirrored, and disappearances
// drive destination closes. A tick that cannot fetch the source snapshot does
// nothing at all.
type Trader struct {
	sourceID  string
	pool      pool.API
	store     mapstore.Store
	routes    *config.Provider
	exits     *ExitCopier
	notifier  telemetry.Notifier
	stats     *models.SourceStats
	logger    *logrus.Entry
	lifecycle *Lifecycle

	tick       time.Duration
	grace      time.Duration
	events     chan Event
	openPolicy retry.Policy

	// Tick-loop state, owned by the Run goroutine. decided remembers the last
	// skip reason per leg so re-evaluating filters every snapshot does not
	// re-log, and marks legs that must never be re-attempted.
	lastSeen map[string]models.Position
	decided  map[legKey]string

	alertMu       sync.Mutex
	legAlerts     map[legKey]time.Time
	lastDropAlert time.Time

	now func() time.Time
}

// NewTrader creates a trader for one source account.
func NewTrader(p TraderParams) *Trader {
	queue := p.EventQueueSize
	if queue <= 0 {
		queue = 64
	}
	tick := p.TickInterval
	if tick <= 0 {
		tick = 2 * time.Second
	}
	grace := p.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	openPolicy := retry.TradePolicy
	if p.OpenPolicy != nil {
		openPolicy = *p.OpenPolicy
	}
	openPolicy.Retryable = pool.IsRetryable

	return &Trader{
		sourceID:   p.SourceAccountID,
		pool:       p.Pool,
		store:      p.Store,
		routes:     p.Routes,
		exits:      p.Exits,
		notifier:   p.Notifier,
		stats:      p.Stats,
		logger:     p.Logger.WithField("source", p.SourceAccountID),
		lifecycle:  NewLifecycle(),
		tick:       tick,
		grace:      grace,
		events:     make(chan Event, queue),
		openPolicy: openPolicy,
		lastSeen:   make(map[string]models.Position),
		decided:    make(map[legKey]string),
		legAlerts:  make(map[legKey]time.Time),
		now:        time.Now,
	}
}

// SourceAccountID returns the source this trader observes.
func (t *Trader) SourceAccountID() string { return t.sourceID }

// Post delivers a control event without blocking. A full queue drops the
// event, counts it, and alerts the operator at most once a minute.
func (t *Trader) Post(ev Event) bool {
	select {
	case t.events <- ev:
		return true
	default:
	}

	t.stats.Dropped.Add(1)
	t.logger.WithField("kind", ev.Kind).Warn("event queue full, dropping event")

	t.alertMu.Lock()
	alert := t.now().Sub(t.lastDropAlert) >= time.Minute
	if alert {
		t.lastDropAlert = t.now()
	}
	t.alertMu.Unlock()
	if alert {
		t.notifier.Notify(context.Background(), telemetry.SeverityWarning,
			fmt.Sprintf("event queue full for %s", t.nickname(t.sourceID)),
			"control events are being dropped; the next tick will resync state")
	}
	return false
}

// Run drives the tick loop until ctx is canceled. Work in flight when the
// cancel arrives is given the shutdown grace to finish: abandoning a mid-air
// executeTrade would leave a destination position of unknown ownership.
func (t *Trader) Run(ctx context.Context) error {
	t.logger.WithField("tick", t.tick.String()).Info("copy trader started")

	// Stagger startup so traders do not hit the pool in lockstep.
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(time.Duration(rand.Int63n(int64(t.tick)))):
	}

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	work, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	go func() {
		<-ctx.Done()
		timer := time.NewTimer(t.grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelWork()
		case <-work.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("copy trader stopped")
			return nil
		case ev := <-t.events:
			t.handleEvent(work, ev)
		case <-ticker.C:
			t.tickOnce(work)
		}
	}
}

func (t *Trader) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventResync:
		t.logger.Info("resync requested, clearing skip memos")
		t.decided = make(map[legKey]string)
		t.tickOnce(ctx)
	case EventForceExit:
		t.forceExit(ctx, ev.PositionID)
	case EventRedriveCloses:
		t.redriveCloses(ctx)
	}
}

// redriveCloses runs only the close half of a tick. Opens and filters are left
// alone so this cannot spuriously re-enter skipped legs.
func (t *Trader) redriveCloses(ctx context.Context) {
	route := t.routes.SourceByID(t.sourceID)
	if route == nil {
		return
	}
	positions, err := t.pool.Positions(ctx, t.sourceID, route.Region)
	if err != nil {
		t.logger.WithError(err).Warn("source snapshot unavailable, cannot redrive closes")
		return
	}
	snapshot := make(map[string]models.Position, len(positions))
	for i := range positions {
		snapshot[positions[i].ID] = positions[i]
	}
	mappings, err := t.store.GetAccountMappings(ctx, t.sourceID)
	if err != nil {
		t.logger.WithError(err).Warn("mapping store unavailable, cannot redrive closes")
		return
	}
	t.replicateCloses(ctx, snapshot, mappings)
}

// forceExit closes every destination leg of one source position, recording the
// closes as manual.
func (t *Trader) forceExit(ctx context.Context, positionID string) {
	legs, err := t.store.GetPositionMappings(ctx, t.sourceID, positionID)
	if err != nil {
		t.logger.WithError(err).WithField("position", positionID).Error("force exit: cannot load mappings")
		return
	}
	if len(legs) == 0 {
		t.logger.WithField("position", positionID).Warn("force exit: no mappings for position")
		return
	}
	for i := range legs {
		t.closeLeg(ctx, &legs[i], closeResultManual)
	}
	// The source may still hold the position; remember the close so the next
	// tick does not immediately re-open the legs.
	delete(t.lastSeen, positionID)
}

// tickOnce runs one observe/replicate cycle. Both the source snapshot and the
// mapping list must load, otherwise the tick is skipped whole: acting on half
// a picture is how positions get closed by accident.
func (t *Trader) tickOnce(ctx context.Context) {
	route := t.routes.SourceByID(t.sourceID)
	if route == nil {
		t.logger.Warn("source missing from routing table, skipping tick")
		return
	}

	positions, err := t.pool.Positions(ctx, t.sourceID, route.Region)
	if err != nil {
		t.logger.WithError(err).Warn("source snapshot unavailable, skipping tick")
		return
	}
	snapshot := make(map[string]models.Position, len(positions))
	for i := range positions {
		snapshot[positions[i].ID] = positions[i]
	}

	mappings, err := t.store.GetAccountMappings(ctx, t.sourceID)
	if err != nil {
		t.logger.WithError(err).Warn("mapping store unavailable, skipping tick")
		return
	}

	t.replicateCloses(ctx, snapshot, mappings)
	t.replicateOpens(ctx, route, positions, snapshot, mappings)
	t.replicateModifies(ctx, route, snapshot, mappings)

	t.lastSeen = snapshot
	t.pruneMemos(snapshot, mappings)
}

// replicateCloses exits every mapped leg whose source position is gone. The
// candidates come from the store, not from an in-memory diff, so a restart
// picks up closes that happened while the router was down.
func (t *Trader) replicateCloses(ctx context.Context, snapshot map[string]models.Position, mappings []models.Mapping) {
	for i := range mappings {
		m := &mappings[i]
		if _, open := snapshot[m.SourcePositionID]; open {
			continue
		}
		t.closeLeg(ctx, m, closeResultClosed)
	}
}

func (t *Trader) closeLeg(ctx context.Context, m *models.Mapping, result string) {
	if t.lifecycle.State(m.SourcePositionID, m.DestAccountID) == StateUnseen {
		// Rehydrated from the store after a restart.
		t.lifecycle.Force(m.SourcePositionID, m.DestAccountID, StateOpen)
	}
	if err := t.lifecycle.Transition(m.SourcePositionID, m.DestAccountID, StateClosing); err != nil {
		t.logger.WithError(err).Debug("close already in flight")
		return
	}

	outcome, res, err := t.exits.CopyExit(ctx, m)
	switch outcome {
	case ExitClosed, ExitAlreadyClosed:
		if outcome == ExitAlreadyClosed && result == closeResultClosed {
			result = closeResultAlreadyClosed
		}
		info := models.CloseInfo{
			SourceAccountID:  m.SourceAccountID,
			SourcePositionID: m.SourcePositionID,
			DestAccountID:    m.DestAccountID,
			DestPositionID:   m.DestPositionID,
			Result:           result,
			ClosedAt:         t.now(),
		}
		if res != nil {
			info.Profit = res.Profit
			info.OrderID = res.OrderID
		}
		if err := t.store.RecordClose(ctx, info); err != nil {
			t.logger.WithError(err).Warn("failed to record close")
		}
		if err := t.store.DeleteMapping(ctx, m.SourceAccountID, m.SourcePositionID, m.DestAccountID); err != nil {
			// Mapping survives; the next tick resolves it as already closed.
			t.logger.WithError(err).Error("failed to delete mapping after close")
			_ = t.lifecycle.Transition(m.SourcePositionID, m.DestAccountID, StateOpen)
			return
		}
		_ = t.lifecycle.Transition(m.SourcePositionID, m.DestAccountID, StateClosed)
		t.stats.Closes.Add(1)
		t.logger.WithFields(logrus.Fields{
			"position":      m.SourcePositionID,
			"dest":          m.DestAccountID,
			"dest_position": m.DestPositionID,
			"result":        result,
			"profit":        info.Profit,
		}).Info("destination position closed")

	case ExitUnresolved:
		_ = t.lifecycle.Transition(m.SourcePositionID, m.DestAccountID, StateOpen)
		t.alertUnresolvedClose(ctx, m, err)
	}
}

// legAlert fires the notification unless the leg alerted within the cooldown.
func (t *Trader) legAlert(ctx context.Context, key legKey, severity telemetry.Severity, subject, body string) {
	t.alertMu.Lock()
	last := t.legAlerts[key]
	alert := t.now().Sub(last) >= closeAlertCooldown
	if alert {
		t.legAlerts[key] = t.now()
	}
	t.alertMu.Unlock()
	if alert {
		t.notifier.Notify(ctx, severity, subject, body)
	}
}

func (t *Trader) alertUnresolvedClose(ctx context.Context, m *models.Mapping, cause error) {
	key := legKey{m.SourcePositionID, m.DestAccountID}
	t.legAlert(ctx, key, telemetry.SeverityCritical,
		fmt.Sprintf("close unresolved on %s", t.nickname(m.DestAccountID)),
		fmt.Sprintf("position %s (%s) could not be closed, will keep retrying: %v",
			m.DestPositionID, m.DestSymbol, cause))
}

// replicateOpens fans every unmapped source position out to its destinations.
// Skip decisions are remembered per leg until the source position goes away.
func (t *Trader) replicateOpens(ctx context.Context, route *config.SourceRoutes, positions []models.Position, snapshot map[string]models.Position, mappings []models.Mapping) {
	mapped := make(map[legKey]bool, len(mappings))
	openOnSymbol := make(map[string]int)
	for i := range mappings {
		m := &mappings[i]
		mapped[legKey{m.SourcePositionID, m.DestAccountID}] = true
		if _, open := snapshot[m.SourcePositionID]; open {
			openOnSymbol[m.DestAccountID+"/"+m.DestSymbol]++
		}
	}

	equities := newEquityCache(t.pool)

	for i := range positions {
		src := &positions[i]
		for j := range route.Destinations {
			dest := &route.Destinations[j]
			key := legKey{src.ID, dest.AccountID}
			if mapped[key] {
				continue
			}
			if reason := t.decided[key]; reason == reasonBrokerRejected || reason == reasonUnmanaged {
				continue
			}

			recentlyClosed, err := t.store.WasRecentlyClosed(ctx, t.sourceID, src.ID)
			if err != nil {
				t.logger.WithError(err).Warn("cannot check recently-closed record")
				continue
			}
			if recentlyClosed {
				t.skipLeg(key, src, dest, "recently closed")
				continue
			}

			sctx := sizing.Context{OpenOnSymbol: openOnSymbol[dest.AccountID+"/"+dest.RewriteSymbol(src.Symbol)]}
			if dest.Sizing.Mode == config.SizingEquityRatio {
				srcEq, err := equities.equity(ctx, t.sourceID, route.Region)
				if err != nil {
					t.logger.WithError(err).Warn("source equity unavailable, deferring open")
					continue
				}
				destEq, err := equities.equity(ctx, dest.AccountID, dest.Region)
				if err != nil {
					t.logger.WithError(err).Warn("destination equity unavailable, deferring open")
					continue
				}
				sctx.SourceEquity = srcEq
				sctx.DestEquity = destEq
			}

			decision := sizing.Decide(src, dest, sctx)
			if decision.Kind == sizing.KindSkip {
				t.skipLeg(key, src, dest, decision.Reason)
				continue
			}
			delete(t.decided, key)
			if t.openLeg(ctx, src, dest, decision) {
				openOnSymbol[dest.AccountID+"/"+decision.Symbol]++
			}
		}
	}
}

// skipLeg records a skip. Counted and logged only when the reason changes,
// because filters re-evaluate on every snapshot.
func (t *Trader) skipLeg(key legKey, src *models.Position, dest *config.Destination, reason string) {
	if t.decided[key] == reason {
		return
	}
	t.decided[key] = reason
	t.stats.Skips.Add(1)
	t.logger.WithFields(logrus.Fields{
		"position": src.ID,
		"symbol":   src.Symbol,
		"dest":     dest.AccountID,
		"reason":   reason,
	}).Info("skipping copy")
}

// openLeg places the destination order with retry, persists the mapping, and
// applies route-default stops to the fill price.
func (t *Trader) openLeg(ctx context.Context, src *models.Position, dest *config.Destination, d sizing.Decision) bool {
	key := legKey{src.ID, dest.AccountID}
	if err := t.lifecycle.Transition(src.ID, dest.AccountID, StateOpening); err != nil {
		t.logger.WithError(err).Debug("open already in flight")
		return false
	}

	req := pool.ExecuteRequest{
		AccountID:  dest.AccountID,
		Region:     dest.Region,
		Symbol:     d.Symbol,
		Action:     d.Side,
		Volume:     d.Volume,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		Comment:    clientTag(t.sourceID, src.ID, dest.AccountID),
	}

	var result *pool.ExecuteResult
	err := retry.Do(ctx, t.openPolicy, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			t.stats.Retries.Add(1)
		}
		res, err := t.pool.ExecuteTrade(ctx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		t.lifecycle.Forget(src.ID, dest.AccountID)
		if pool.IsBrokerRejected(err) {
			// Definitive rejection. No point re-sending the same order.
			t.decided[key] = reasonBrokerRejected
		}
		t.logger.WithError(err).WithFields(logrus.Fields{
			"position": src.ID,
			"symbol":   d.Symbol,
			"dest":     dest.AccountID,
		}).Error("open replication failed")
		t.legAlert(ctx, key, telemetry.SeverityCritical,
			fmt.Sprintf("open failed on %s", t.nickname(dest.AccountID)),
			fmt.Sprintf("%s %s %.2f lots not copied: %v", d.Side, d.Symbol, d.Volume, err))
		return false
	}

	mapping := models.Mapping{
		SourceAccountID:  t.sourceID,
		SourcePositionID: src.ID,
		DestAccountID:    dest.AccountID,
		DestPositionID:   result.PositionID,
		SourceSymbol:     src.Symbol,
		DestSymbol:       d.Symbol,
		SourceVolume:     src.Volume,
		DestVolume:       d.Volume,
		SourceOpenPrice:  src.OpenPrice,
		DestOpenPrice:    result.OpenPrice,
		OpenTime:         src.OpenTime,
		MappedAt:         t.now(),
	}
	err = retry.Do(ctx, storePolicy, func(ctx context.Context, _ int) error {
		return t.store.CreateMapping(ctx, mapping)
	})
	if err != nil {
		// The destination position exists but is unmanaged; the reconciler
		// will find it as an orphan and close it.
		t.lifecycle.Forget(src.ID, dest.AccountID)
		t.decided[key] = reasonUnmanaged
		t.logger.WithError(err).WithFields(logrus.Fields{
			"position":      src.ID,
			"dest":          dest.AccountID,
			"dest_position": result.PositionID,
		}).Error("mapping write failed after fill")
		t.notifier.Notify(ctx, telemetry.SeverityCritical,
			fmt.Sprintf("unmanaged position on %s", t.nickname(dest.AccountID)),
			fmt.Sprintf("filled %s %s %.2f lots as %s but could not persist the mapping: %v",
				d.Side, d.Symbol, d.Volume, result.PositionID, err))
		return false
	}

	_ = t.lifecycle.Transition(src.ID, dest.AccountID, StateOpen)
	t.stats.Opens.Add(1)
	t.logger.WithFields(logrus.Fields{
		"position":      src.ID,
		"symbol":        d.Symbol,
		"side":          d.Side,
		"volume":        d.Volume,
		"dest":          dest.AccountID,
		"dest_position": result.PositionID,
		"open_price":    result.OpenPrice,
	}).Info("position copied")

	t.applyDefaultStops(ctx, dest, result, d)
	return true
}

// applyDefaultStops sets route-default SL/TP distances against the actual fill
// price. Mirrored absolute stops were already sent with the order.
func (t *Trader) applyDefaultStops(ctx context.Context, dest *config.Destination, result *pool.ExecuteResult, d sizing.Decision) {
	if d.SLPips == nil && d.TPPips == nil {
		return
	}
	sl := d.StopLoss
	tp := d.TakeProfit
	pip := dest.EffectivePipSize()
	if d.SLPips != nil {
		sl = models.Float64Ptr(sizing.StopFromPips(result.OpenPrice, *d.SLPips, pip, d.Side, false))
	}
	if d.TPPips != nil {
		tp = models.Float64Ptr(sizing.StopFromPips(result.OpenPrice, *d.TPPips, pip, d.Side, true))
	}
	if err := t.pool.ModifyPosition(ctx, dest.AccountID, dest.Region, result.PositionID, sl, tp); err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"dest":          dest.AccountID,
			"dest_position": result.PositionID,
		}).Warn("failed to apply default stops")
	}
}

// replicateModifies mirrors source SL/TP changes to destinations that opted
// in. Best effort: a failed modify is retried by the next stop change.
func (t *Trader) replicateModifies(ctx context.Context, route *config.SourceRoutes, snapshot map[string]models.Position, mappings []models.Mapping) {
	byPosition := make(map[string][]*models.Mapping)
	for i := range mappings {
		m := &mappings[i]
		byPosition[m.SourcePositionID] = append(byPosition[m.SourcePositionID], m)
	}

	for id, prev := range t.lastSeen {
		cur, open := snapshot[id]
		if !open || models.StopsEqual(&prev, &cur) {
			continue
		}
		for _, m := range byPosition[id] {
			dest := destinationByID(route, m.DestAccountID)
			if dest == nil || !dest.MirrorsStops() {
				continue
			}
			err := t.pool.ModifyPosition(ctx, m.DestAccountID, dest.Region, m.DestPositionID, cur.StopLoss, cur.TakeProfit)
			if err != nil {
				t.logger.WithError(err).WithFields(logrus.Fields{
					"position":      id,
					"dest":          m.DestAccountID,
					"dest_position": m.DestPositionID,
				}).Warn("failed to mirror stop change")
				continue
			}
			t.stats.Modifies.Add(1)
			t.logger.WithFields(logrus.Fields{
				"position":      id,
				"dest":          m.DestAccountID,
				"dest_position": m.DestPositionID,
			}).Info("stop change mirrored")
		}
	}
}

// pruneMemos drops skip memos and alert timers for legs that are fully gone:
// source position closed and no mapping left. Alert timers for stuck closes
// must survive the source position's disappearance or they would re-page every
// tick.
func (t *Trader) pruneMemos(snapshot map[string]models.Position, mappings []models.Mapping) {
	mapped := make(map[legKey]bool, len(mappings))
	for i := range mappings {
		mapped[legKey{mappings[i].SourcePositionID, mappings[i].DestAccountID}] = true
	}
	gone := func(key legKey) bool {
		_, open := snapshot[key.positionID]
		return !open && !mapped[key]
	}

	for key := range t.decided {
		if gone(key) {
			delete(t.decided, key)
		}
	}
	t.alertMu.Lock()
	for key := range t.legAlerts {
		if gone(key) {
			delete(t.legAlerts, key)
		}
	}
	t.alertMu.Unlock()
}

func (t *Trader) nickname(accountID string) string {
	return t.routes.Nickname(accountID)
}

func destinationByID(route *config.SourceRoutes, accountID string) *config.Destination {
	for i := range route.Destinations {
		if route.Destinations[i].AccountID == accountID {
			return &route.Destinations[i]
		}
	}
	return nil
}

// clientTag derives the deterministic order comment that ties a destination
// position back to its source leg.
func clientTag(sourceAccountID, positionID, destAccountID string) string {
	sum := sha256.Sum256([]byte(sourceAccountID + "|" + positionID + "|" + destAccountID))
	return hex.EncodeToString(sum[:])[:16]
}

// equityCache memoizes AccountInfo lookups within one tick.
type equityCache struct {
	pool pool.API
	m    map[string]float64
}

func newEquityCache(p pool.API) *equityCache {
	return &equityCache{pool: p, m: make(map[string]float64)}
}

func (c *equityCache) equity(ctx context.Context, accountID, region string) (float64, error) {
	if eq, ok := c.m[accountID]; ok {
		return eq, nil
	}
	info, err := c.pool.AccountInfo(ctx, accountID, region)
	if err != nil {
		return 0, err
	}
	c.m[accountID] = info.Equity
	return info.Equity, nil
}
