package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nannyagent/authcore/core"
	"github.com/nannyagent/authcore/modules/deviceauth"
	"github.com/nannyagent/authcore/modules/mfa"
	"github.com/nannyagent/authcore/modules/password"
	"github.com/nannyagent/authcore/pkg/config"
	"github.com/nannyagent/authcore/pkg/httpserver"
	"github.com/nannyagent/authcore/pkg/identity"
	"github.com/nannyagent/authcore/pkg/lockout"
	"github.com/nannyagent/authcore/pkg/logger"
	"github.com/nannyagent/authcore/pkg/mailer"
	"github.com/nannyagent/authcore/pkg/pg"
	"github.com/nannyagent/authcore/pkg/ratelimit"
	"github.com/nannyagent/authcore/pkg/sysconfig"
	"github.com/nannyagent/authcore/storage/postgres"
)

type appConfig struct {
	Env             string `env:"APP_ENV" envDefault:"production"`
	VerificationURI string `env:"DEVICE_VERIFICATION_URI" envDefault:"https://app.nannyagent.dev/device/verify"`
	MFAIssuer       string `env:"MFA_ISSUER" envDefault:"NannyAgent"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	DB       pg.Config
	HTTP     httpserver.Config
	Identity identity.Config
	Mail     mailer.Config
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(logger.WithEnvironment(cfg.Env, "authcore"))
	logger.SetAsDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("fatal", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, postgres.Migrations, cfg.DB, log); err != nil {
		return err
	}

	sysCfg := sysconfig.NewReader(postgres.NewConfigStore(pool))
	lockouts := lockout.NewEngine(postgres.NewLockoutStore(pool), sysCfg, lockout.WithLogger(log))

	provider, err := identity.NewService(cfg.Identity, postgres.NewIdentityStorage(pool))
	if err != nil {
		return err
	}

	var sender mailer.Sender
	if cfg.Mail.PostmarkServerToken != "" {
		sender, err = mailer.NewPostmarkSender(cfg.Mail)
		if err != nil {
			return err
		}
	} else {
		log.Warn("postmark token not set, emails go to the log")
		sender = mailer.NewLogSender(log)
	}

	deviceSvc := deviceauth.NewService(
		postgres.NewDeviceAuthStore(pool), lockouts, sysCfg, provider,
		deviceauth.WithMailer(sender),
		deviceauth.WithLogger(log),
		deviceauth.WithVerificationURI(cfg.VerificationURI),
	)
	mfaSvc := mfa.NewService(
		postgres.NewMFAStore(pool), lockouts, sysCfg,
		mfa.WithIssuer(cfg.MFAIssuer),
		mfa.WithLogger(log),
	)
	passwordSvc := password.NewService(
		postgres.NewPasswordStore(pool), lockouts, sysCfg,
		password.WithLogger(log),
	)

	limiter, err := ratelimit.NewSlidingWindow(cfg.RateLimitRequests, cfg.RateLimitWindow)
	if err != nil {
		return err
	}

	authn := identity.Middleware(provider)
	healthcheck := pg.Healthcheck(pool)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(ratelimit.Middleware(limiter, ratelimit.ByIP()))

	// Each module router matches its own absolute paths.
	deviceRouter := deviceSvc.Router(authn)
	r.Handle("/device/*", deviceRouter)
	r.Handle("/token", deviceRouter)
	r.Handle("/mfa", mfaSvc.Router(authn))
	r.Handle("/password/*", passwordSvc.Router(authn))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := healthcheck(req.Context()); err != nil {
			core.Error(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}
