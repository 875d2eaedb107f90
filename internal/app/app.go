package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Thetimii/dashboard-sub001/internal/config"
	"github.com/Thetimii/dashboard-sub001/internal/conversion"
	"github.com/Thetimii/dashboard-sub001/internal/db"
	"github.com/Thetimii/dashboard-sub001/internal/dispatcher"
	"github.com/Thetimii/dashboard-sub001/internal/render"
	"github.com/Thetimii/dashboard-sub001/internal/router"
)

// App holds the dispatch pipeline shared by the serve, worker and send commands.
type App struct {
	Redis      *redis.Client          // nil when disabled
	Dispatcher *dispatcher.Dispatcher
	Reporter   *conversion.Reporter   // nil when conversion reporting is disabled
	Router     *router.Router
}

func New(ctx context.Context, cfg config.Config, secrets config.Secrets, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if secrets == nil {
		secrets = config.EnvSecrets{}
	}

	a := &App{}

	if cfg.Redis.Enabled {
		rdb, err := db.NewRedisClient(ctx, db.RedisOptsFromConfig(cfg.Redis))
		if err != nil {
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		a.Redis = rdb
	}

	provs, err := Providers(cfg.Email, secrets, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := dispatcher.Options{
		OpsInbox:       strings.TrimSpace(cfg.Email.OpsInbox),
		AttemptTimeout: cfg.Email.AttemptTimeout,
		DedupTTL:       cfg.Email.DedupTTL,
		PendingTTL:     cfg.Email.PendingTTL,
		Logger:         log,
	}
	if a.Redis != nil {
		opts.Dedup = dispatcher.NewRedisDedupGuard(a.Redis, "onboard:")
	}
	a.Dispatcher = dispatcher.NewDispatcher(provs, opts)

	renderer, err := render.New()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	deps := router.Deps{
		Renderer: renderer,
		Email:    a.Dispatcher,
		Builder:  Builder(cfg.Conversion),
		Logger:   log,
	}
	if cfg.Conversion.Enabled {
		a.Reporter = Reporter(cfg.Conversion, secrets, log)
		deps.Reporter = a.Reporter
	}

	a.Router = router.New(deps, router.Options{
		DispatchTimeout: cfg.Router.DispatchTimeout,
		Parallel:        cfg.Router.Parallel,
	})

	if a.Reporter != nil && !a.Reporter.Configured() {
		log.Warn("conversion reporting enabled but pixel id or access token missing")
	}
	for _, st := range a.Dispatcher.Status() {
		if !st.Configured {
			log.Warn("email provider not configured, will be skipped", zap.String("provider", st.Name))
		}
	}

	return a, nil
}

// Providers builds the ordered email chain. Disabled entries are left out;
// entries whose credential cannot be resolved stay in the chain unconfigured.
func Providers(c config.EmailConfig, secrets config.Secrets, log *zap.Logger) ([]dispatcher.Provider, error) {
	var provs []dispatcher.Provider
	for _, pc := range c.Providers {
		if !pc.Enabled {
			continue
		}

		key, _ := secrets.Lookup(pc.APIKey, pc.APIKeyEnv)
		opts := dispatcher.HTTPOptions{
			Name:          pc.Name,
			BaseURL:       pc.BaseURL,
			APIKey:        key,
			From:          c.From,
			TimeoutMs:     pc.TimeoutMs,
			FailThreshold: pc.Breaker.FailThreshold,
			OpenForMs:     pc.Breaker.OpenForMs,
		}

		switch strings.ToLower(pc.Kind) {
		case "resend":
			provs = append(provs, dispatcher.NewResendProvider(opts))
		case "sendgrid":
			provs = append(provs, dispatcher.NewSendGridProvider(opts))
		case "log":
			provs = append(provs, dispatcher.NewLogProvider(pc.Name, log))
		default:
			return nil, fmt.Errorf("email provider %q: unknown kind %q", pc.Name, pc.Kind)
		}
	}
	return provs, nil
}

func Builder(c config.ConversionConfig) *conversion.Builder {
	return conversion.NewBuilder(conversion.BuilderOptions{
		Mapping:        conversion.Mapping{PurchaseEventName: c.PurchaseEventName},
		DefaultCountry: c.DefaultCountry,
		ActionSource:   c.ActionSource,
		EventSourceURL: c.EventSourceURL,
		TestEventCode:  c.TestEventCode,
	})
}

func Reporter(c config.ConversionConfig, secrets config.Secrets, log *zap.Logger) *conversion.Reporter {
	token, _ := secrets.Lookup(c.AccessToken, c.AccessTokenEnv)
	return conversion.NewReporter(conversion.ReporterOptions{
		BaseURL:     c.BaseURL,
		APIVersion:  c.APIVersion,
		PixelID:     c.PixelID,
		AccessToken: token,
		TimeoutMs:   c.TimeoutMs,
		RatePerSec:  c.RatePerSec,
		Burst:       c.Burst,
		Logger:      log,
	})
}

func (a *App) Close() error {
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}
