package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	api "github.com/mind-engage/mindengage-lessons/internal/api/http"
	authmw "github.com/mind-engage/mindengage-lessons/internal/auth/middleware"
	"github.com/mind-engage/mindengage-lessons/internal/config"
	"github.com/mind-engage/mindengage-lessons/internal/db"
	"github.com/mind-engage/mindengage-lessons/internal/gradesync"
	"github.com/mind-engage/mindengage-lessons/internal/lesson"
	"github.com/mind-engage/mindengage-lessons/internal/observability"
	"github.com/mind-engage/mindengage-lessons/internal/ratelimit"
	syncx "github.com/mind-engage/mindengage-lessons/internal/sync"
	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/agshttp"
	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/gradebook"
	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/sqlstore"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	_ = v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	dbh, driver, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbh.Close()

	store := lesson.NewSQLStore(dbh, string(driver))
	opts := []lesson.EngineOption{
		lesson.WithLogger(logger),
		lesson.WithEvents(syncx.NewEventRepo(dbh, cfg.SiteID)),
		lesson.WithPublishConcurrency(cfg.Gradebook.Concurrency),
	}
	if cfg.Gradebook.Enabled {
		if err := gradebook.Migrate(ctx, dbh, string(driver)); err != nil {
			return errors.Wrap(err, "gradebook schema")
		}
		ags := agshttp.New(agshttp.Config{
			TokenURL:     cfg.Gradebook.TokenURL,
			ClientID:     cfg.Gradebook.ClientID,
			ClientSecret: cfg.Gradebook.ClientSecret,
			Scopes:       cfg.Gradebook.Scopes,
			Timeout:      15 * time.Second,
		})
		syncer := gradebook.New(&sqlstore.Store{DB: dbh}, ags, cfg.Gradebook.LineItemsURL, cfg.SiteID, nil)
		opts = append(opts, lesson.WithPublisher(gradesync.NewPublisher(syncer, store)))
	}
	eng := lesson.NewEngine(store, opts...)

	handler := api.NewRouter(api.Deps{
		Engine:      eng,
		Auth:        authmw.NewAuthService(cfg.AuthSecret, cfg.AuthTTL),
		Logger:      logger,
		Limiter:     ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		CORSOrigins: cfg.CORSOrigins,
		DevLogin:    cfg.DevLogin,
		Ready:       func(r *http.Request) error { return dbh.PingContext(r.Context()) },
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("listening",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("db", string(driver)),
		slog.Bool("gradebook", cfg.Gradebook.Enabled),
		slog.Bool("dev_login", cfg.DevLogin))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, db.Driver, error) {
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return nil, "", err
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	if err != nil {
		return nil, "", errors.Wrap(err, "db open")
	}
	return dbh, driver, nil
}
