// Package service assembles and supervises the router: pool client, mapping
// store, one copy trader per source, the orphan reconciler and the control
// API. It owns startup validation, hot reload and graceful shutdown.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorfx/router/internal/api"
	"github.com/mirrorfx/router/internal/config"
	"github.com/mirrorfx/router/internal/copier"
	"github.com/mirrorfx/router/internal/mapstore"
	"github.com/mirrorfx/router/internal/models"
	"github.com/mirrorfx/router/internal/pool"
	"github.com/mirrorfx/router/internal/reconciler"
	"github.com/mirrorfx/router/internal/telemetry"
)

// Startup failure classes, mapped to exit codes by the caller.
var (
	// ErrConfigInvalid means the routing table failed to load or validate.
	ErrConfigInvalid = errors.New("config invalid")
	// ErrPoolUnreachable means a routed account could not be verified.
	ErrPoolUnreachable = errors.New("pool unreachable")
	// ErrStoreUnreachable means the mapping store did not answer.
	ErrStoreUnreachable = errors.New("mapping store unreachable")
)

// Service is the assembled router process.
type Service struct {
	cfg        *config.Config
	logger     *logrus.Logger
	routes     *config.Provider
	store      mapstore.Store
	poolClient pool.API
	breaker    *pool.BreakerSet
	notifier   telemetry.Notifier
	stats      *models.StatsRegistry
	traders    map[string]*copier.Trader
	recon      *reconciler.Reconciler
	apiServer  *api.Server
	cron       *cron.Cron
	instanceID string
}

// New builds the service from validated app config. Errors wrap one of the
// startup failure classes.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Service, error) {
	table, err := config.LoadRoutes(cfg.RoutesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	routes := config.NewProvider(table)

	var notifier telemetry.Notifier = telemetry.Nop{}
	if cfg.Telegram.BotToken != "" {
		notifier = telemetry.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	}

	breaker := pool.NewBreakerSet(notifier, routes.Nickname)
	poolClient := pool.NewClient(cfg.Pool.URL, breaker, logger, pool.WithTimeout(cfg.PoolTimeout()))

	if err := verifyAccounts(ctx, poolClient, table, logger); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolUnreachable, err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	sourceIDs := make([]string, 0, len(table.Sources))
	for i := range table.Sources {
		sourceIDs = append(sourceIDs, table.Sources[i].SourceAccountID)
	}
	if err := store.Warm(ctx, sourceIDs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	s := &Service{
		cfg:        cfg,
		logger:     logger,
		routes:     routes,
		store:      store,
		poolClient: poolClient,
		breaker:    breaker,
		notifier:   notifier,
		stats:      models.NewStatsRegistry(),
		traders:    make(map[string]*copier.Trader),
		cron:       cron.New(),
		instanceID: uuid.NewString(),
	}

	exits := copier.NewExitCopier(poolClient, routes.RegionOf, logger)
	for _, sourceID := range sourceIDs {
		s.traders[sourceID] = copier.NewTrader(copier.TraderParams{
			SourceAccountID: sourceID,
			Pool:            poolClient,
			Store:           store,
			Routes:          routes,
			Exits:           exits,
			Notifier:        notifier,
			Stats:           s.stats.Get(sourceID),
			Logger:          logger,
			TickInterval:    cfg.TickInterval(),
			EventQueueSize:  cfg.Copier.EventQueueSize,
			ShutdownGrace:   cfg.ShutdownGrace(),
		})
	}

	s.recon = reconciler.New(poolClient, store, routes, notifier,
		func(sourceID string) { s.Post(sourceID, copier.Event{Kind: copier.EventRedriveCloses}) },
		logger, reconciler.WithOrphanGrace(cfg.OrphanGrace()))

	s.apiServer = api.NewServer(api.Config{Port: cfg.Control.Port, InstanceID: s.instanceID},
		store, routes, breaker, s.stats, s, logger)

	return s, nil
}

// verifyAccounts checks every routed account answers accountInfo.
func verifyAccounts(ctx context.Context, p pool.API, table *config.RoutingTable, logger *logrus.Logger) error {
	for _, acct := range table.AccountIDs() {
		info, err := p.AccountInfo(ctx, acct.AccountID, acct.Region)
		if err != nil {
			return fmt.Errorf("account %s: %w", acct.AccountID, err)
		}
		logger.WithFields(logrus.Fields{
			"account":  acct.AccountID,
			"equity":   info.Equity,
			"currency": info.Currency,
			"platform": info.Platform,
		}).Info("account verified")
	}
	return nil
}

func openStore(cfg *config.Config, logger *logrus.Logger) (mapstore.Store, error) {
	if cfg.Store.URL == "memory" {
		logger.Warn("using in-memory mapping store, mappings will not survive restarts")
		return mapstore.NewMemoryStore(mapstore.WithMemoryClosedTTL(cfg.ClosedTTL())), nil
	}
	return mapstore.NewRedisStore(cfg.Store.URL, logger, mapstore.WithClosedTTL(cfg.ClosedTTL()))
}

// Post implements api.TraderHub.
func (s *Service) Post(sourceAccountID string, ev copier.Event) bool {
	t, ok := s.traders[sourceAccountID]
	if !ok {
		return false
	}
	return t.Post(ev)
}

// Sources implements api.TraderHub.
func (s *Service) Sources() []string {
	out := make([]string, 0, len(s.traders))
	for id := range s.traders {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Run starts every task and blocks until ctx is canceled or a task fails.
func (s *Service) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"instance": s.instanceID,
		"sources":  len(s.traders),
	}).Info("router starting")

	g, ctx := errgroup.WithContext(ctx)

	for _, t := range s.traders {
		t := t
		g.Go(func() error { return t.Run(ctx) })
	}

	g.Go(func() error { return s.runControlAPI(ctx) })
	g.Go(func() error { return s.runReconciler(ctx) })
	g.Go(func() error { return s.watchReload(ctx) })

	s.registerCallback(ctx)

	err := g.Wait()
	if cerr := s.store.Close(); cerr != nil {
		s.logger.WithError(cerr).Warn("failed to close mapping store")
	}
	s.logger.Info("router stopped")
	return err
}

func (s *Service) runControlAPI(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.apiServer.Start() }()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace())
		defer cancel()
		return s.apiServer.Shutdown(shCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API: %w", err)
		}
		return nil
	}
}

func (s *Service) runReconciler(ctx context.Context) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.ReconcilerInterval()), func() {
		s.recon.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling reconciler: %w", err)
	}
	s.cron.Start()
	<-ctx.Done()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(s.cfg.ShutdownGrace()):
		s.logger.Warn("reconciler did not stop within the shutdown grace")
	}
	return nil
}

// watchReload swaps the routing table on SIGHUP. A table that fails to load
// or validate is rejected and the old one stays active.
func (s *Service) watchReload(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			s.reloadRoutes(ctx)
		}
	}
}

func (s *Service) reloadRoutes(ctx context.Context) {
	table, err := config.LoadRoutes(s.cfg.RoutesPath)
	if err != nil {
		s.logger.WithError(err).Error("routing table reload rejected, keeping current table")
		s.notifier.Notify(ctx, telemetry.SeverityWarning,
			"routing table reload rejected", err.Error())
		return
	}

	current := make(map[string]bool, len(s.traders))
	for id := range s.traders {
		current[id] = true
	}
	for i := range table.Sources {
		if !current[table.Sources[i].SourceAccountID] {
			s.logger.WithField("source", table.Sources[i].SourceAccountID).
				Warn("new source in reloaded table, restart required to trade it")
		}
	}

	s.routes.Swap(table)
	s.logger.WithField("sources", len(table.Sources)).Info("routing table reloaded")
	for id := range s.traders {
		s.Post(id, copier.Event{Kind: copier.EventResync})
	}
}

// registerCallback tells the pool where to announce broker stream resyncs.
func (s *Service) registerCallback(ctx context.Context) {
	if s.cfg.Control.CallbackURL == "" {
		return
	}
	url := s.cfg.Control.CallbackURL + "/callbacks/pool-reconnect"
	if err := s.poolClient.RegisterReconnectionCallback(ctx, url); err != nil {
		s.logger.WithError(err).Warn("failed to register reconnection callback")
		return
	}
	s.logger.WithField("url", url).Info("reconnection callback registered")
}
