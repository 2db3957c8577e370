package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/madschristensen99/rushTrade/internal/crypto"
	"github.com/madschristensen99/rushTrade/internal/pipeline"
	"github.com/madschristensen99/rushTrade/internal/server"
	"github.com/madschristensen99/rushTrade/internal/server/handler"
	"github.com/madschristensen99/rushTrade/internal/server/ws"
	"github.com/madschristensen99/rushTrade/internal/service"
)

// runFull serves HTTP and websockets and runs the settlement pipeline in one
// process. Disabling the server section leaves just the pipeline.
func (a *App) runFull(ctx context.Context, deps *Dependencies) error {
	orderSvc, marketSvc := a.buildServices(deps)
	orch := a.buildPipeline(deps, orderSvc, marketSvc)

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Enabled {
		srv, hub := a.buildServer(deps, orderSvc, marketSvc)
		g.Go(quiet(ctx, hub.Run))
		g.Go(quiet(ctx, srv.Start))
	}
	g.Go(quiet(ctx, orch.Run))
	return g.Wait()
}

// runAPI serves HTTP and websockets only. Settlement, expiry and archival are
// left to a settle-mode peer sharing the same postgres and redis.
func (a *App) runAPI(ctx context.Context, deps *Dependencies) error {
	orderSvc, marketSvc := a.buildServices(deps)
	srv, hub := a.buildServer(deps, orderSvc, marketSvc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(quiet(ctx, hub.Run))
	g.Go(quiet(ctx, srv.Start))
	return g.Wait()
}

// runSettle runs the background pipeline without any serving surface.
func (a *App) runSettle(ctx context.Context, deps *Dependencies) error {
	orderSvc, marketSvc := a.buildServices(deps)
	orch := a.buildPipeline(deps, orderSvc, marketSvc)
	return quiet(ctx, orch.Run)()
}

// quiet wraps a long-running component so a context-driven shutdown reads as
// a clean nil exit while real failures propagate to the group.
func quiet(ctx context.Context, fn func(context.Context) error) func() error {
	return func() error {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
}

func (a *App) buildServices(deps *Dependencies) (*service.OrderService, *service.MarketService) {
	orderSvc := service.NewOrderService(
		deps.Orders,
		deps.Fills,
		deps.Markets,
		deps.Audit,
		deps.Locks,
		deps.Limiter,
		deps.Bus,
		deps.Books,
		deps.Signer,
		deps.Signer,
		service.OrderConfig{
			ProtocolFeeBps: a.cfg.Exchange.ProtocolFeeBps,
			MaxFeeRateBps:  a.cfg.Exchange.MaxFeeRateBps,
			BookDepth:      a.cfg.Exchange.BookDepth,
		},
		a.logger,
	).WithChainExecutor(deps.Chain)
	if deps.FillStream != nil {
		orderSvc = orderSvc.WithFillStream(deps.FillStream)
	}

	marketSvc := service.NewMarketService(deps.Markets, deps.Stats, deps.Chain, deps.Audit, deps.Notifier, a.logger)
	return orderSvc, marketSvc
}

func (a *App) buildServer(deps *Dependencies, orderSvc *service.OrderService, marketSvc *service.MarketService) (*server.Server, *ws.Hub) {
	checks := map[string]handler.HealthCheck{
		"postgres": deps.PG.Ping,
		"redis":    deps.Redis.Ping,
		"chain":    deps.Chain.Health,
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(checks, a.logger),
		Orders:    handler.NewOrderHandler(orderSvc, a.logger),
		Fills:     handler.NewFillHandler(orderSvc, a.logger),
		Books:     handler.NewBookHandler(orderSvc, a.logger),
		Markets:   handler.NewMarketHandler(marketSvc, a.logger),
		Positions: handler.NewPositionHandler(marketSvc, a.logger),
		Exchange:  handler.NewExchangeHandler(deps.Signer.Info(), a.cfg.Exchange.ProtocolFeeBps, a.cfg.Exchange.MaxFeeRateBps),
	}

	var auth *crypto.APIAuth
	if a.cfg.API.Key != "" && a.cfg.API.Secret != "" {
		auth = &crypto.APIAuth{Key: a.cfg.API.Key, Secret: a.cfg.API.Secret}
	}

	hub := ws.NewHub(deps.Bus, a.cfg.Server.CORSOrigins, a.logger)
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		handlers,
		hub,
		auth,
		deps.Limiter,
		a.logger,
	)
	return srv, hub
}

func (a *App) buildPipeline(deps *Dependencies, orderSvc *service.OrderService, marketSvc *service.MarketService) *pipeline.Orchestrator {
	set := a.cfg.Settlement

	settler := pipeline.NewSettler(
		deps.Fills,
		deps.Orders,
		deps.Chain,
		deps.Bus,
		deps.Audit,
		deps.Notifier,
		set.Interval.Duration,
		set.BatchSize,
		a.logger,
	)
	sweeper := pipeline.NewSweeper(deps.Orders, deps.Books, deps.Bus, deps.Audit, set.ExpiryInterval.Duration, a.logger)
	syncer := pipeline.NewSyncer(marketSvc, set.SyncInterval.Duration, a.logger)
	stats := pipeline.NewStatsUpdater(
		deps.Markets,
		deps.Fills,
		orderSvc,
		deps.Stats,
		deps.Bus,
		set.StatsInterval.Duration,
		a.logger,
	)

	var archive *pipeline.ArchiveRunner
	if deps.Archiver != nil {
		archive = pipeline.NewArchiveRunner(deps.Archiver, a.cfg.Archive.Interval.Duration, a.cfg.Archive.RetentionDays, a.logger)
	}

	return pipeline.NewOrchestrator(settler, sweeper, syncer, stats, archive, a.logger)
}
