package app

import (
	"fmt"

	corebootstrap "github.com/voltrent/energybot/core/bootstrap"
	coretelegram "github.com/voltrent/energybot/core/telegram"
	"github.com/voltrent/energybot/core/telegram/router"
	"github.com/voltrent/energybot/internal/bot"
	"github.com/voltrent/energybot/internal/conversation"
	"github.com/voltrent/energybot/internal/ledger"
	"github.com/voltrent/energybot/internal/platform"
	"github.com/voltrent/energybot/internal/service"
)

// App is the assembled bot, ready to produce Telegram run options.
type App struct {
	cfg      *Config
	handlers *bot.Handlers
	dialog   *bot.Dialog
	registry *coretelegram.Registry
}

// New bootstraps infrastructure per the configuration and wires the service
// stack on top of it.
func New(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}

	boot, err := corebootstrap.Run(corebootstrap.Options{
		Config:      cfg.CoreConfig(),
		Database:    cfg.Database,
		UseDatabase: cfg.Ledger.Backend == BackendPostgres,
	})
	if err != nil {
		return nil, err
	}

	var store ledger.Store
	switch cfg.Ledger.Backend {
	case BackendPostgres:
		store = ledger.NewPostgresStore(boot.DB)
	default:
		store = ledger.NewMemoryStore()
	}

	var remote platform.Client
	if cfg.Platform.Enabled {
		remote = platform.NewHTTPClient(cfg.Platform)
	}

	unitPrice, err := cfg.UnitPrice()
	if err != nil {
		return nil, err
	}

	conv := conversation.NewMachine(conversation.TronDestination)
	svc := service.New(store, conv, remote, unitPrice)
	handlers := bot.NewHandlers(svc)

	return &App{
		cfg:      cfg,
		handlers: handlers,
		dialog:   bot.NewDialog(handlers),
		registry: bot.BuildRegistry(handlers),
	}, nil
}

// TelegramRunOptions builds the routes and middleware chain for the core
// Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(a.dialog, a.registry, router.TextOptions{
		UnknownText:     a.handlers.UnknownText(),
		UnknownDocument: a.handlers.UnknownDocument(),
	})...)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{
		NotFound: a.handlers.UnknownCallback(),
	}))

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(core, nil),
		Routes:      routes,
	}, nil
}
