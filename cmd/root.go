// Package cmd implements the uaemulate command line.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/firasghr/uaemulate/client"
	"github.com/firasghr/uaemulate/config"
	"github.com/firasghr/uaemulate/emulate"
	"github.com/firasghr/uaemulate/fingerprint"
	"github.com/firasghr/uaemulate/logger"
	"github.com/firasghr/uaemulate/metrics"
	"github.com/firasghr/uaemulate/proxy"
)

var (
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:               "uaemulate",
	Short:             "uaemulate - browser HTTP fingerprint emulation",
	Long:              "Rewrites HTTP requests so their headers, header order and connection settings match a real browser.",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to JSON config file (defaults are used if omitted)")
	rootCmd.PersistentFlags().String("profiles", "", "Profile database (JSON or YAML); built-in profiles if omitted")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, error")
	rootCmd.PersistentFlags().String("fallback", "", "Profile choice without a user-agent hint: none, first, rotate")
	rootCmd.PersistentFlags().String("proxy-file", "", "Path to upstream proxy list file")
}

// initConfig layers defaults, the config file, the environment and flags,
// in that order.
func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if cfg, err = config.LoadConfig(path); err != nil {
			return err
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("profiles"); v != "" {
		cfg.ProfilesFile = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("fallback"); v != "" {
		cfg.SelectFallback = v
	}
	if v, _ := cmd.Flags().GetString("proxy-file"); v != "" {
		cfg.ProxyFile = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	log = logger.NewWithWriter(os.Stderr, level)
	return nil
}

// loadDatabase returns the configured profile database.
func loadDatabase() (*fingerprint.Database, error) {
	fallback, err := cfg.Fallback()
	if err != nil {
		return nil, err
	}
	if cfg.ProfilesFile == "" {
		return fingerprint.BuiltinDatabase(fallback), nil
	}
	db, err := fingerprint.LoadDatabase(cfg.ProfilesFile, fallback)
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %d profiles from %q", db.Len(), cfg.ProfilesFile)
	return db, nil
}

// profileByName finds a profile by name, case-insensitively.  An empty name
// selects through the database like a request without hints would.
func profileByName(db *fingerprint.Database, name string) (*fingerprint.Profile, error) {
	if name == "" {
		if p := db.Profiles(); len(p) > 0 {
			return p[0], nil
		}
		return nil, fmt.Errorf("profile database is empty")
	}
	names := make([]string, 0, db.Len())
	for _, p := range db.Profiles() {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
		names = append(names, p.String())
	}
	return nil, fmt.Errorf("unknown profile %q (have %s)", name, strings.Join(names, ", "))
}

// buildTransport assembles the outbound stack: the emulation transport over
// the ordered, uTLS-dialing client transport.
func buildTransport(db *fingerprint.Database, m *metrics.Metrics) (*emulate.Transport, error) {
	var pool *proxy.Pool
	if cfg.ProxyFile != "" {
		pool = &proxy.Pool{}
		if err := pool.LoadProxies(cfg.ProxyFile); err != nil {
			return nil, err
		}
		log.Infof("loaded %d proxies from %q", pool.Count(), cfg.ProxyFile)
	}

	base, err := client.NewTransport(client.TransportConfig{
		Proxies:     pool,
		DialTimeout: time.Duration(cfg.RequestTimeout),
		Log:         log,
	})
	if err != nil {
		return nil, err
	}
	return &emulate.Transport{
		Base:                   base,
		Provider:               db,
		Optional:               cfg.Optional,
		TryAutoDetectUserAgent: cfg.AutoDetectUserAgent,
		HeaderOrderHeader:      cfg.HeaderOrderHeader,
		OverwritesHeader:       cfg.OverwritesHeader,
		Log:                    log,
		Metrics:                m,
	}, nil
}
