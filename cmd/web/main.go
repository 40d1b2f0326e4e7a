package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cohort-dashboard/internal/cohort"
	"cohort-dashboard/internal/config"
	"cohort-dashboard/internal/middleware"
	"cohort-dashboard/internal/observability"
	"cohort-dashboard/internal/server"
	"cohort-dashboard/internal/services"
	"cohort-dashboard/internal/ui/templates"
)

const (
	version        = "1.0.0"
	renderTimeout  = 10 * time.Second
	csvLoadTimeout = 5 * time.Minute
	cacheMaxAge    = "public, max-age=300"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "cohort-dashboard",
		Short:        "Customer retention by acquisition cohort",
		Long:         "Cleans a retail transaction log, groups customers into monthly acquisition cohorts and serves a retention heatmap per country.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default $CONFIG_FILE)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "debug mode: verbose text logs")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Load the transaction log and serve the dashboard",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd, opts)
			},
		},
		newReportCmd(opts),
	)

	return root
}

// setup loads the configuration and installs the default logger writing
// to w.
func (o *rootOptions) setup(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return nil, nil, err
	}
	if o.debug {
		cfg.EnableDebug()
	}

	logger := observability.NewLoggerTo(w, cfg.Logger)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// loadAnalytics cleans the configured transaction log. Any load failure is
// fatal to the caller.
func loadAnalytics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services.Analytics, error) {
	analytics := services.NewAnalytics(services.Options{
		Clean: cohort.Options{
			SkipInvalidDates: cfg.Cohort.SkipInvalidDates,
			Workers:          cfg.Cohort.ParseWorkers,
		},
		CacheDir:      cfg.Cache.Dir,
		DisableCache:  cfg.Cache.Disabled,
		RetentionSize: cfg.Cache.RetentionSize,
		Logger:        logger,
	})

	ctx, cancel := context.WithTimeout(ctx, csvLoadTimeout)
	defer cancel()

	start := time.Now()
	if err := analytics.LoadFromCSV(ctx, cfg.Database.CSVFile); err != nil {
		logger.Error("failed to load CSV data", "error", err)
		return nil, err
	}
	logger.Info("CSV data loaded successfully", "duration", time.Since(start))

	return analytics, nil
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.setup(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	logger.Info("starting application",
		"version", version,
		"debug", cfg.Debug,
		"csv_file", cfg.Database.CSVFile,
		"addr", cfg.Address(),
	)

	var spanOut io.Writer
	if cfg.Debug {
		spanOut = cmd.ErrOrStderr()
	}
	tracerProvider, err := observability.NewTracerProvider(spanOut, version)
	if err != nil {
		logger.Error("failed to start tracing", "error", err)
		return err
	}
	observability.InstallTracerProvider(tracerProvider)

	analytics, err := loadAnalytics(cmd.Context(), cfg, logger)
	if err != nil {
		_ = tracerProvider.Shutdown(context.Background())
		return err
	}

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(analytics, logger),
	}

	srv := server.NewServer(analytics, logger, templateHandlers)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(srv, cfg, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	gracefulServer.RegisterShutdownHook("analytics", func(ctx context.Context) error {
		logger.Info("shutting down analytics service", "stats", analytics.Stats())
		return nil
	})

	gracefulServer.RegisterShutdownHook("tracing", tracerProvider.Shutdown)

	if err := gracefulServer.ListenAndServe(cmd.Context()); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}

	logger.Info("application stopped gracefully")
	return nil
}

// newHandler wraps h in the middleware chain. Metrics sits innermost so it
// sees the route pattern chosen by the mux.
func newHandler(h http.Handler, cfg *config.Config, logger *slog.Logger) http.Handler {
	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	return middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.Logger(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.Metrics(),
	)(h)
}

// dashboardHandler renders the full page for ?country=, defaulting to the
// first country in the dataset.
func dashboardHandler(analytics *services.Analytics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		countries := analytics.Countries()
		selected := r.URL.Query().Get("country")
		if selected == "" && len(countries) > 0 {
			selected = countries[0]
		}

		page := templates.Dashboard(templates.DashboardData{
			Countries: countries,
			Selected:  selected,
			Matrix:    analytics.Retention(ctx, selected),
			Summary:   analytics.Summary(selected),
		})

		var buf bytes.Buffer
		if err := page.Render(ctx, &buf); err != nil {
			logger.Error("render dashboard", "error", err)
			http.Error(w, "render error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		buf.WriteTo(w)
	}
}
