package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/botkit/internal/api"
	"github.com/keepmind9/botkit/internal/builtin"
	"github.com/keepmind9/botkit/internal/dispatch"
	"github.com/keepmind9/botkit/internal/groups"
	"github.com/keepmind9/botkit/internal/inbound"
	"github.com/keepmind9/botkit/internal/limit"
	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/keepmind9/botkit/internal/settings"
	"github.com/keepmind9/botkit/internal/transport"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// shutdownTimeout bounds how long Stop waits for running handlers
const shutdownTimeout = 30 * time.Second

// App wires transports, the inbound router and the dispatch engine together
type App struct {
	config   *Config
	registry *plugin.Registry
	engine   *dispatch.Engine
	router   *inbound.Router
	settings *settings.Store
	groups   *groups.Directory
	store    *limit.MemoryStore

	mu       sync.Mutex
	adapters []transport.Adapter
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// NewApp builds every component from config and performs the initial
// handler load. Transports are created for each enabled bot but not started.
func NewApp(ctx context.Context, config *Config) (*App, error) {
	settingsStore, err := settings.Open(ctx, config.Settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	registry, err := NewRegistry(config)
	if err != nil {
		settingsStore.Close()
		return nil, err
	}

	store := limit.NewMemoryStore()
	cooldown := limit.NewCooldown(store)
	directory := groups.NewDirectory(config.Groups.TTL())

	pipeline := dispatch.NewPipeline(dispatch.PipelineConfig{
		Cooldown:            cooldown,
		Usage:               limit.NewUsage(store),
		Groups:              directory,
		ExperimentalEnabled: config.Bot.ExperimentalEnabled(),
	})
	engine := dispatch.NewEngine(registry, pipeline,
		dispatch.NewExecutor(cooldown, config.Dispatch.Timeout()),
		dispatch.Options{MaxQueueDepth: config.Dispatch.MaxQueueDepth})

	if err := builtin.Register(registry.Catalog(), builtin.Deps{
		Registry: registry,
		Queues:   engine,
		Settings: settingsStore,
	}); err != nil {
		settingsStore.Close()
		return nil, err
	}

	if _, err := registry.Load(ctx); err != nil {
		settingsStore.Close()
		return nil, fmt.Errorf("failed to load handlers: %w", err)
	}

	app := &App{
		config:   config,
		registry: registry,
		engine:   engine,
		router:   inbound.NewRouter(config.Bot.Prefixes, config, engine, settingsStore),
		settings: settingsStore,
		groups:   directory,
		store:    store,
	}

	for _, name := range config.EnabledBots() {
		adapter, err := NewAdapter(name, config.Bots[name])
		if err != nil {
			settingsStore.Close()
			return nil, err
		}
		app.AddAdapter(adapter)
	}
	return app, nil
}

// NewRegistry builds the handler registry over the builtin handlers and the
// configured plugin directories. Builtin functions are not yet bound.
func NewRegistry(config *Config) (*plugin.Registry, error) {
	builtins, err := builtin.Source()
	if err != nil {
		return nil, err
	}
	source := plugin.MultiSource{builtins}
	if len(config.Plugins.Dirs) > 0 {
		source = append(source, plugin.NewDirSource(config.Plugins.Dirs...))
	}
	return plugin.NewRegistry(source, plugin.NewCatalog()), nil
}

// LoadHandlers loads the configured handler set without starting anything.
// Builtin bodies are bound without collaborators.
func LoadHandlers(ctx context.Context, config *Config) ([]*plugin.Handler, error) {
	registry, err := NewRegistry(config)
	if err != nil {
		return nil, err
	}
	if err := builtin.Register(registry.Catalog(), builtin.Deps{}); err != nil {
		return nil, err
	}
	if _, err := registry.Load(ctx); err != nil {
		return nil, err
	}
	return registry.List(), nil
}

// NewAdapter creates the transport for a bot type
func NewAdapter(name string, cfg BotConfig) (transport.Adapter, error) {
	switch name {
	case transport.PlatformTelegram:
		return transport.NewTelegramBot(cfg.Token), nil
	case transport.PlatformDiscord:
		return transport.NewDiscordBot(cfg.Token, cfg.ChannelID), nil
	case transport.PlatformFeishu:
		bot := transport.NewFeishuBot(cfg.AppID, cfg.AppSecret)
		bot.EncryptKey = cfg.EncryptKey
		bot.VerificationToken = cfg.VerificationToken
		return bot, nil
	case transport.PlatformDingTalk:
		return transport.NewDingTalkBot(cfg.AppID, cfg.AppSecret), nil
	default:
		return nil, fmt.Errorf("unsupported bot type: %s", name)
	}
}

// AddAdapter registers a transport. Adapters that can describe groups are
// also registered as group metadata providers.
func (a *App) AddAdapter(adapter transport.Adapter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adapters = append(a.adapters, adapter)
	if p, ok := adapter.(groups.Provider); ok {
		a.groups.Register(adapter.Name(), p)
	}
}

// Registry returns the handler registry
func (a *App) Registry() *plugin.Registry { return a.registry }

// Engine returns the dispatch engine
func (a *App) Engine() *dispatch.Engine { return a.engine }

// Run starts background workers, transports and the admin API, then blocks
// until ctx is cancelled and the app has stopped.
func (a *App) Run(ctx context.Context) error {
	logger.Info("starting-botkit")

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	adapters := append([]transport.Adapter(nil), a.adapters...)
	a.mu.Unlock()

	a.goWorker(func() { a.store.Run(ctx, constants.StoreSweepInterval) })

	if a.config.Plugins.WatchEnabled() && len(a.config.Plugins.Dirs) > 0 {
		watcher := plugin.NewWatcher(a.registry,
			a.config.Plugins.Interval(), a.config.Plugins.DebounceWindow(), nil)
		a.goWorker(func() { watcher.Run(ctx) })
	}

	if a.config.API.Enabled {
		server := api.New(api.Config{Listen: a.config.API.Listen, Token: a.config.API.Token}, a.registry, a.engine)
		a.goWorker(func() {
			if err := server.Start(ctx); err != nil {
				logger.WithField("error", err).Error("api-server-failed")
			}
		})
	}

	for _, adapter := range adapters {
		a.startAdapter(ctx, adapter)
	}

	<-ctx.Done()
	return a.Stop()
}

func (a *App) startAdapter(ctx context.Context, adapter transport.Adapter) {
	name := adapter.Name()
	logger.WithField("bot_type", name).Info("starting-bot")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"bot_type": name,
					"panic":    r,
				}).Error("bot-start-panic-recovered")
			}
		}()
		err := adapter.Start(func(batch inbound.Batch) {
			a.router.Process(ctx, adapter, batch)
		})
		if err != nil {
			logger.WithFields(logrus.Fields{
				"bot_type": name,
				"error":    err,
			}).Error("failed-to-start-bot")
		}
	}()
}

func (a *App) goWorker(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Stop disconnects transports, drains the queues and closes the settings
// store. It is safe to call more than once.
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		logger.Info("stopping-botkit")

		a.mu.Lock()
		cancel := a.cancel
		adapters := append([]transport.Adapter(nil), a.adapters...)
		a.mu.Unlock()

		var errs []error
		for _, adapter := range adapters {
			logger.WithField("bot_type", adapter.Name()).Info("stopping-bot")
			if err := adapter.Stop(); err != nil {
				logger.WithFields(logrus.Fields{
					"bot_type": adapter.Name(),
					"error":    err,
				}).Error("failed-to-stop-bot")
			}
		}

		ctx, cancelWait := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelWait()
		if err := a.engine.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain queues: %w", err))
		}

		if cancel != nil {
			cancel()
		}
		a.wg.Wait()

		if err := a.settings.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close settings: %w", err))
		}
		a.stopErr = errors.Join(errs...)
		logger.Info("botkit-stopped")
	})
	return a.stopErr
}
