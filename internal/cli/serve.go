package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trade-journal/internal/broker"
	"trade-journal/internal/models"
	"trade-journal/internal/scheduler"
	"trade-journal/internal/server"
)

// addServeCommand adds the HTTP API command.
func addServeCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Serve the journal over HTTP and run the background jobs: the daily
contract master refresh and the 06:00 IST session expiry.`,
		Example: "  journal serve\n  journal serve --addr :9000",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			log := app.Logger

			addr := cfg.Server.ListenAddr
			if cmd.Flags().Changed("addr") {
				addr, _ = cmd.Flags().GetString("addr")
			}

			sched := scheduler.New(log, models.IST, app.Metrics)
			if err := registerJobs(sched, app); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if app.Kite != nil && app.Master.Stale(cfg.Broker.MasterMaxAge) {
				go func() {
					job := scheduler.NewMasterRefreshJob(app.Master, cfg.Broker.RequestTimeout, log)
					if err := sched.RunNow(job); err != nil {
						log.Warn().Err(err).Msg("Initial master refresh failed")
					}
					updateMasterGauge(app)
				}()
			} else {
				updateMasterGauge(app)
			}

			srvCfg := server.Config{
				ListenAddr:     addr,
				CORSOrigins:    cfg.Server.CORSOrigins,
				RequestTimeout: cfg.Server.RequestTimeout,
				Log:            log,
				Journal:        app.Journal,
				Master:         app.Master,
				DB:             app.Store,
				Metrics:        app.Metrics,
			}
			if app.Kite != nil {
				srvCfg.Broker = app.Kite
			}
			srv := server.New(srvCfg)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			log.Info().Str("addr", addr).Bool("broker", app.Kite != nil).Msg("Journal API started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				log.Error().Err(err).Msg("HTTP server failed")
				return err
			case <-quit:
			case <-cmd.Context().Done():
			}

			log.Info().Msg("Shutting down server...")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
				return err
			}
			log.Info().Msg("Server stopped")
			return nil
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.listen_addr)")
	rootCmd.AddCommand(cmd)
}

func registerJobs(sched *scheduler.Scheduler, app *App) error {
	cfg := app.Config
	if app.Kite != nil {
		refresh := scheduler.NewMasterRefreshJob(app.Master, cfg.Broker.RequestTimeout, app.Logger)
		if err := sched.AddJob(cfg.Broker.MasterRefreshCron, observedRefresh{refresh, app}); err != nil {
			return err
		}
		if err := sched.AddJob(cfg.Broker.SessionExpiryCron, scheduler.NewSessionExpiryJob(app.Tokens, broker.AccessTokenKey)); err != nil {
			return err
		}
	}
	return nil
}

// observedRefresh updates the cached-records gauge after each refresh.
type observedRefresh struct {
	*scheduler.MasterRefreshJob
	app *App
}

func (j observedRefresh) Run() error {
	err := j.MasterRefreshJob.Run()
	updateMasterGauge(j.app)
	return err
}

func updateMasterGauge(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := app.Master.Count(ctx)
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Counting cached contracts failed")
		return
	}
	app.Metrics.SetMasterRecords(n)
}
