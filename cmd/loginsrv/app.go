package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	login "github.com/goliatone/go-login"
	"github.com/goliatone/go-login/activitymap"
	"github.com/goliatone/go-login/metrics"
	"github.com/goliatone/go-login/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// App holds the wired services for one process.
type App struct {
	config   *appConfig
	logger   *glog.BaseLogger
	db       *bun.DB
	repo     *repository.Manager
	registry *prometheus.Registry

	nonces       *login.NonceService
	rememberMe   *login.RememberMe
	auth         *login.SessionAuthenticator
	activation   *login.ActivationService
	registration *login.RegistrationWorkflow
	sessions     *login.SessionTokens
	controller   *login.Controller
}

func newLogger(cfg *appConfig) *glog.BaseLogger {
	if cfg.Server.Verbose {
		return glog.NewLogger(
			glog.WithLoggerTypePretty(),
			glog.WithLevel(glog.Trace),
			glog.WithName("loginsrv"),
			glog.WithAddSource(false),
			glog.WithRichErrorHandler(errors.ToSlogAttributes),
		)
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("loginsrv"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

// WithPersistence opens the database and applies pending migrations.
func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.config.Server.DSN)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)

	app.db = bun.NewDB(db, sqlitedialect.New())

	if _, err := app.db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return err
	}

	applied, err := repository.Migrate(ctx, app.db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if len(applied) > 0 {
		app.GetLogger("persistence").Info("applied migrations", "migrations", applied)
	}

	app.repo = repository.NewManager(app.db)
	app.repo.MustValidate()

	return nil
}

// WithServices builds the login services from the configuration.
func WithServices(_ context.Context, app *App) error {
	cfg := &app.config.Login
	logger := app.GetLogger("login")

	if cfg.Session.SigningKey == "" {
		cfg.Session.SigningKey = randomSecret()
		logger.Warn("session.signing_key not configured, using a random key; sessions will not survive a restart")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	app.registry = prometheus.NewRegistry()
	counters, err := metrics.NewSink(app.registry)
	if err != nil {
		return err
	}

	activityLogger := app.GetLogger("activity")
	sink := login.MultiSink{
		counters,
		activitymap.Sink(func(_ context.Context, n activitymap.Normalized) error {
			activityLogger.Info(n.Verb, "actor", n.ActorID, "object", n.ObjectID, "metadata", n.Metadata)
			return nil
		}),
	}

	users := app.repo.Users()

	app.nonces = login.NewNonceService([]byte(cfg.Nonce.Secret), login.WithNonceWindow(cfg.Nonce.Window))

	app.auth = login.NewSessionAuthenticator(users, app.nonces).
		WithLogger(logger).
		WithActivitySink(sink)

	if cfg.RememberMe.Enabled {
		app.rememberMe = login.NewRememberMe(app.repo.RememberMe(),
			login.WithRememberMeTTL(cfg.RememberMe.TTL),
			login.WithRevokeAllOnTheft(cfg.RememberMe.RevokeAllOnTheft),
			login.WithRememberMeLogger(app.GetLogger("rememberme")),
		)
		app.auth.WithRememberMe(app.rememberMe)
	}

	notifier := login.NewNotifier(newLogMailer(app.GetLogger("mailer")), cfg.Email.From, cfg.Site.Title).
		WithLogger(app.GetLogger("notifier"))

	opts := cfg.Registration.Options

	activationOpts := []login.ActivationOption{
		login.WithActivationTTL(cfg.Activation.TTL),
		login.WithActivationRoute(cfg.Site.BaseURL, cfg.Routes.Activate),
		login.WithActivationNotifier(notifier),
		login.WithActivationFollowUp(opts.SendWelcomeEmail, opts.SendNotificationEmail),
		login.WithActivationLogger(app.GetLogger("activation")),
		login.WithActivationActivitySink(sink),
	}
	if opts.LoginAfterRegistration {
		activationOpts = append(activationOpts, login.WithLoginAfterActivation(app.auth))
	}
	app.activation = login.NewActivationService(users, app.nonces, activationOpts...)

	app.registration = login.NewRegistrationWorkflow(users, cfg.Registration,
		login.WithRegistrationNonces(app.nonces),
		login.WithRegistrationActivation(app.activation),
		login.WithRegistrationNotifier(notifier),
		login.WithRegistrationAuthenticator(app.auth),
		login.WithRegistrationLogger(app.GetLogger("registration")),
		login.WithRegistrationActivitySink(sink),
	)

	app.sessions = login.NewSessionTokens([]byte(cfg.Session.SigningKey), cfg.Session.TTL).
		WithLogger(app.GetLogger("sessions"))

	app.controller = login.NewController(
		login.WithControllerLogger(app.GetLogger("controller")),
		login.WithControllerStore(users),
		login.WithControllerServices(app.nonces, app.auth, app.activation, app.registration),
		login.WithControllerSessions(app.sessions),
		login.WithControllerConfig(*cfg),
		login.WithControllerActivitySink(sink),
	)

	return nil
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
