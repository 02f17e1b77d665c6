package bootstrap

import (
	"github.com/gin-gonic/gin"

	"github.com/commercetrack/attribution/internal/analytics"
	"github.com/commercetrack/attribution/internal/api"
	"github.com/commercetrack/attribution/internal/collab"
	"github.com/commercetrack/attribution/internal/config"
	"github.com/commercetrack/attribution/internal/database"
	"github.com/commercetrack/attribution/internal/events"
	"github.com/commercetrack/attribution/internal/handlers"
	"github.com/commercetrack/attribution/internal/httpserver"
	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/repository"
	"github.com/commercetrack/attribution/internal/session"
	"github.com/commercetrack/attribution/internal/store"
	"github.com/commercetrack/attribution/internal/telemetry"
	"github.com/commercetrack/attribution/internal/token"
)

// App holds the assembled domain services.
type App struct {
	Manager    *session.Manager
	Aggregator *analytics.Aggregator
	Carts      collab.CartService
	Orders     collab.OrderService
}

// SetupServices wires the repository, coordinator, collaborator clients,
// session manager and aggregator.
func SetupServices(
	cfg *config.Config,
	db *database.DB,
	tiers *CacheTiers,
	publisher *events.Publisher,
	metrics *telemetry.Metrics,
	log logger.Logger,
) *App {
	repo := repository.NewSessionRepository(db.DB(), log)
	coordinator := store.NewCoordinator(tiers.Fast(), repo, log, metrics)

	carts := collab.NewHTTPCartService(cfg.Collab.CartServiceURL, cfg.Collab.RequestTimeout)
	orders := collab.NewHTTPOrderService(cfg.Collab.OrderServiceURL, cfg.Collab.RequestTimeout)

	manager := session.NewManager(
		coordinator,
		token.NewIssuer(),
		publisher,
		metrics,
		log,
		cfg.Session.InactivityHorizon,
	)

	aggregator := analytics.NewAggregator(coordinator, carts, metrics, log)

	return &App{
		Manager:    manager,
		Aggregator: aggregator,
		Carts:      carts,
		Orders:     orders,
	}
}

// SetupHTTPServer builds the router and wraps it in the lifecycle-managed
// server.
func SetupHTTPServer(cfg *config.Config, app *App, log logger.Logger) *httpserver.Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(api.Deps{
		Sessions:    handlers.NewSessionHandler(app.Manager, app.Carts, app.Orders, log),
		Funnel:      handlers.NewFunnelHandler(app.Aggregator, log),
		Logger:      log,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	return httpserver.New(httpserver.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, router, log)
}
