package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"libraryms/internal/auth"
	"libraryms/internal/catalog"
	"libraryms/internal/circulation"
	"libraryms/internal/httpapi"
	"libraryms/internal/maintenance"
	"libraryms/internal/membership"
	"libraryms/internal/notification"
	"libraryms/internal/review"
	"libraryms/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the sweep scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    "libraryms",
		ServiceVersion: Version,
		SampleRatio:    cfg.TraceSampleRatio,
	}, log)
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	issuer, err := auth.NewIssuer(auth.Config{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     "libraryms",
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		return err
	}

	var scheduler *maintenance.Scheduler
	if cfg.Scheduler {
		scheduler, err = maintenance.NewScheduler(a.sweeper(), cfg.Schedule, cfg.SweepTimeout, log)
		if err != nil {
			return err
		}
		scheduler.Start()
		for name, next := range scheduler.Next() {
			log.WithField("sweep", name).WithField("next", next.Format(time.RFC3339)).Info("sweep scheduled")
		}
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Catalog:        catalog.NewService(a.store, log),
			Circulation:    circulation.NewService(a.store, a.sink, log, circulation.WithRecorder(a.metrics)),
			Membership:     membership.NewService(a.store, log),
			Reviews:        review.NewService(a.store, log),
			Notifications:  notification.NewService(a.store),
			Issuer:         issuer,
			Metrics:        a.metrics,
			Health:         a.store,
			Log:            log,
			AuthRatePerMin: cfg.AuthRatePerMin,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
