package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trade-journal/internal/broker"
	"trade-journal/internal/config"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
	"trade-journal/internal/security"
	"trade-journal/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-11-01"
)

// Command annotations controlling how much of the App is built.
const (
	annotationSetup = "setup"
	setupNone       = "none"   // no configuration needed
	setupConfig     = "config" // configuration only
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   *store.SQLiteStore
	Tokens  store.KeyValueStore
	Kite    *broker.KiteClient // nil when no API key is configured
	Master  *broker.MasterService
	Audit   *security.AuditLogger
	Metrics *metrics.Metrics
	Journal *journal.Service

	closers []func() error
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade journal with live PnL from Kite Connect",
		Long: `Trade journal records multi-leg trades and price snapshots, computes
realized and unrealized PnL, and enriches open positions with live quotes
and contract expiries from Zerodha Kite Connect.

Run 'journal serve' to start the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}

			setup := cmd.Annotations[annotationSetup]
			if setup == setupNone {
				return nil
			}

			dir, _ := cmd.Flags().GetString("config")
			if err := app.loadConfig(dir, debug); err != nil {
				return err
			}
			if setup == setupConfig {
				return nil
			}
			return app.wire()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/trade-journal)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addSnapshotCommands(rootCmd, app)
	addAnalyticsCommands(rootCmd, app)
	addMasterCommands(rootCmd, app)
	addAuthCommands(rootCmd, app)
	addServeCommand(rootCmd, app)

	return rootCmd
}

// loadConfig reads configuration and rebuilds the logger from it.
func (a *App) loadConfig(dir string, debug bool) error {
	if a.Config != nil {
		return nil
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg

	a.Logger = logging.NewLoggerWithConfig(cfg.Log)
	if debug {
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	return nil
}

// Close releases everything wire opened, last opened first.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{annotationSetup: setupNone},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Trade Journal v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}
	configOnly := map[string]string{annotationSetup: setupConfig}

	cmd.AddCommand(&cobra.Command{
		Use:         "show",
		Short:       "Show current configuration",
		Annotations: configOnly,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				safe := *app.Config
				kite := &safe.Credentials.Kite
				kite.APIKey = security.MaskCredential(kite.APIKey)
				kite.APISecret = security.MaskCredential(kite.APISecret)
				kite.TOTPSecret = security.MaskCredential(kite.TOTPSecret)
				kite.TokenPassphrase = security.MaskCredential(kite.TokenPassphrase)
				return output.JSON(safe)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{annotationSetup: setupNone},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"path":        dir,
					"config":      filepath.Join(dir, "config.toml"),
					"credentials": filepath.Join(dir, "credentials.toml"),
				})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration files",
		Annotations: configOnly,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load already validated; reaching here means the files are valid.
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Server")
	output.Printf("  Listen:          %s\n", cfg.Server.ListenAddr)
	output.Printf("  CORS Origins:    %v\n", cfg.Server.CORSOrigins)
	output.Printf("  Request Timeout: %s\n", cfg.Server.RequestTimeout)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Database.Path)
	output.Printf("  Token Cache:     %s\n", cfg.Cache.Backend)
	if cfg.Cache.Backend == "redis" {
		output.Printf("  Redis:           %s (db %d)\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	}
	output.Println()

	output.Bold("Broker")
	output.Printf("  Configured:      %v\n", cfg.BrokerConfigured())
	output.Printf("  API Key:         %s\n", security.MaskCredential(cfg.Credentials.Kite.APIKey))
	output.Printf("  Master Exchanges: %v\n", cfg.Broker.MasterExchanges)
	output.Printf("  Master Refresh:  %s\n", cfg.Broker.MasterRefreshCron)
	output.Printf("  Session Expiry:  %s\n", cfg.Broker.SessionExpiryCron)
	output.Println()

	output.Bold("Snapshot Baskets")
	for _, b := range cfg.Snapshot.Baskets {
		output.Printf("  %-8s %d ETFs, futures %s:%s\n", b.Name, len(b.ETFTickers), b.FuturesExchange, b.FuturesRoot)
	}
	output.Println()

	output.Bold("Security")
	output.Printf("  Encrypt Tokens:  %v\n", cfg.Security.EncryptTokens)
	output.Printf("  Audit Log:       %v\n", cfg.Security.AuditEnabled)
}
