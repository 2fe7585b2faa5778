package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/firasghr/uaemulate/metrics"
	"github.com/firasghr/uaemulate/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the emulating forward proxy",
	Long: "Run an HTTP forward proxy that rewrites every request to match a browser profile.\n" +
		"Point clients at it with HTTP_PROXY; CONNECT tunnels are refused.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default from config)")
	serveCmd.Flags().Float64("rate", -1, "Forwarded requests per second; 0 disables limiting")
	serveCmd.Flags().Int("burst", 0, "Rate limiter burst")
	serveCmd.Flags().Bool("optional", false, "Forward requests unmodified when no profile matches")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetFloat64("rate"); v >= 0 {
		cfg.RatePerSecond = v
	}
	if v, _ := cmd.Flags().GetInt("burst"); v > 0 {
		cfg.RateBurst = v
	}
	if cmd.Flags().Changed("optional") {
		cfg.Optional, _ = cmd.Flags().GetBool("optional")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := loadDatabase()
	if err != nil {
		return err
	}
	m := metrics.NewMetrics()
	tr, err := buildTransport(db, m)
	if err != nil {
		return err
	}
	defer tr.CloseIdleConnections()

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	}
	srv := server.New(server.Config{
		Transport:      tr,
		Metrics:        m,
		Profiles:       db.Profiles(),
		Log:            log,
		Limiter:        limiter,
		RequestTimeout: time.Duration(cfg.RequestTimeout),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.ListenAddr)
	})
	if interval := time.Duration(cfg.MetricsInterval); interval > 0 {
		g.Go(func() error {
			logMetrics(ctx, m, interval)
			return nil
		})
	}
	log.Infof("uaemulate: %d profiles, fallback %s, optional=%v", db.Len(), cfg.SelectFallback, cfg.Optional)

	err = g.Wait()
	snap := m.Snapshot()
	log.Infof("final metrics – total: %d | emulated: %d | passed: %d | rejected: %d | failed: %d",
		snap.Total, snap.Emulated, snap.PassedThrough, snap.Rejected, snap.UpstreamFailed)
	return err
}

// logMetrics prints a summary line every interval until ctx is done.
func logMetrics(ctx context.Context, m *metrics.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.Snapshot()
			log.WithFields(map[string]interface{}{
				"total":        snap.Total,
				"emulated":     snap.Emulated,
				"passed":       snap.PassedThrough,
				"rejected":     snap.Rejected,
				"decompressed": snap.Decompressed,
				"failed":       snap.UpstreamFailed,
			}).Infof("metrics – rps: %.1f", snap.RequestsPerSecond)
		}
	}
}
