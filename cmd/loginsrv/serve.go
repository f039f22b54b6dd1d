package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	login "github.com/goliatone/go-login"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

//go:embed views
var viewsFS embed.FS

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("metrics-addr", "", "Prometheus listen address, disabled when empty")
	cmd.Flags().String("base-url", "", "public base URL used in activation links")

	return cmd
}

func runServe(ctx context.Context, cfg *appConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app := &App{
		config: cfg,
		logger: newLogger(cfg),
	}
	defer app.Close()

	logger := app.GetLogger("serve")
	logger.Debug("configuration", "config", print.MaybePrettyJSON(cfg))

	if err := WithPersistence(ctx, app); err != nil {
		return err
	}

	if err := WithServices(ctx, app); err != nil {
		return err
	}

	srv, err := newHTTPServer(app)
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsSrv = newMetricsServer(app, cfg.Server.MetricsAddr)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.Serve(cfg.Server.Addr); err != nil {
			logger.Error("http server failed", "error", err)
		}
	}()

	logger.Info("listening", "addr", cfg.Server.Addr)

	sig := WaitExitSignal()
	logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	return srv.Shutdown(shutdownCtx)
}

func newHTTPServer(app *App) (router.Server[*fiber.App], error) {
	templates, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}

	engine := django.NewFileSystem(http.FS(templates), ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	r := srv.Router()
	r.Use(mflash.New(mflash.ConfigDefault))
	r.Use(app.controller.SessionMiddleware())

	login.RegisterRoutes(r, app.controller)

	r.Get(app.config.Login.Routes.Home, homePage(app)).
		SetName("home")

	r.Get("/account", accountPage(app), app.controller.Protect(login.AccessRules{
		login.CapabilitySiteLogin: true,
	})).SetName("account")

	r.Get("/admin", accountPage(app), app.controller.Protect(login.AccessRules{
		"admin.super": true,
	})).SetName("admin")

	return srv, nil
}

func newMetricsServer(app *App, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func homePage(app *App) router.HandlerFunc {
	return func(ctx router.Context) error {
		return render(app, ctx, "home", router.ViewContext{
			"title": app.config.Login.Site.Title,
		})
	}
}

func accountPage(app *App) router.HandlerFunc {
	return func(ctx router.Context) error {
		return render(app, ctx, "account", router.ViewContext{
			"title": app.config.Login.Site.Title,
		})
	}
}

func render(app *App, ctx router.Context, name string, data router.ViewContext) error {
	view := login.TemplateHelpers(app.nonces, login.GetRouterSession(ctx))
	view["route_login"] = app.config.Login.Routes.Login
	view["route_register"] = app.config.Login.Routes.Register
	maps.Copy(view, data)
	return ctx.Render(name, view)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
