package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quasarhq/quasar/internal/cache"
	"github.com/quasarhq/quasar/internal/config"
	"github.com/quasarhq/quasar/internal/editor"
	"github.com/quasarhq/quasar/internal/loader"
	"github.com/quasarhq/quasar/internal/logging"
	"github.com/quasarhq/quasar/internal/metrics"
	"github.com/quasarhq/quasar/internal/observability"
	"github.com/quasarhq/quasar/internal/sandbox"
	"github.com/quasarhq/quasar/internal/session"
)

var (
	configPath string
	sessionID  string
	sandboxURL string
	apiKey     string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quasar",
		Short: "Quasar - client-side file cache for remote execution sandboxes",
		Long:  "Cache-first loading of remote sandbox files with LRU+TTL eviction and speculative preloading",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "sandbox session id")
	rootCmd.PersistentFlags().StringVar(&sandboxURL, "url", "", "sandbox API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "sandbox API key")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		openCmd(),
		preloadCmd(),
		lsCmd(),
		saveCmd(),
		statsCmd(),
		daemonCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		c, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	config.LoadFromEnv(cfg)
	if sandboxURL != "" {
		cfg.Sandbox.URL = sandboxURL
	}
	if apiKey != "" {
		cfg.Sandbox.APIKey = apiKey
	}
	if logLevel != "" {
		cfg.Daemon.LogLevel = logLevel
	}
	logging.SetLevelFromString(cfg.Daemon.LogLevel)
	if cfg.Daemon.LoadLogPath != "" {
		if err := logging.Loads().SetOutput(cfg.Daemon.LoadLogPath); err != nil {
			return nil, fmt.Errorf("open load log: %w", err)
		}
	}
	return cfg, nil
}

// app wires the cache, session manager and loader for one command run.
type app struct {
	cache    *cache.FileCache
	client   *sandbox.Client
	sessions *session.Manager
	state    *editor.State
	loader   *loader.Loader
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if sessionID == "" {
		sessionID = os.Getenv("QUASAR_SESSION")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("no session: pass --session or set QUASAR_SESSION")
	}

	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.Service,
	}); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	fileCache := cache.New(
		cache.WithMaxItems(cfg.Cache.MaxItems),
		cache.WithMaxTotalBytes(cfg.Cache.MaxTotalBytes),
		cache.WithEvictionHook(func(n int) { metrics.Global().RecordEvictions(n) }),
	)
	sessions := session.NewManager(fileCache)
	sessions.Set(sessionID)

	client := sandbox.NewClient(cfg.Sandbox.URL, cfg.Sandbox.APIKey)
	state := editor.NewState()
	ld := loader.New(client, fileCache, sessions, state, state,
		loader.WithTimeout(time.Duration(cfg.Sandbox.FetchTimeoutMs)*time.Millisecond),
		loader.WithDebounceWindow(time.Duration(cfg.Loader.DebounceMs)*time.Millisecond),
		loader.WithPreloadDelay(time.Duration(cfg.Loader.PreloadDelayMs)*time.Millisecond),
	)

	return &app{
		cache:    fileCache,
		client:   client,
		sessions: sessions,
		state:    state,
		loader:   ld,
	}, nil
}

func openCmd() *cobra.Command {
	var force bool
	var withPreload bool

	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Load a file through the cache and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			path := args[0]
			res, err := a.loader.Load(cmd.Context(), path, loader.LoadOptions{Force: force})
			if err != nil {
				return err
			}

			if withPreload {
				files, lerr := a.client.ListFiles(cmd.Context(), a.sessions.Current(), "")
				if lerr == nil {
					a.loader.SmartPreload(path, loader.TreeSnapshot{Files: files})
					// Give the delayed preload pass a chance to run.
					time.Sleep(time.Duration(cfg.Loader.PreloadDelayMs)*time.Millisecond + time.Second)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), a.state.Content())
			logging.Op().Debug("open finished",
				"path", path, "from_cache", res.FromCache, "duration", res.Duration)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the cache")
	cmd.Flags().BoolVar(&withPreload, "preload", false, "warm sibling files after loading")
	return cmd
}

func preloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preload <path>...",
		Short: "Warm the cache with the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			warmed := a.loader.PreloadFiles(cmd.Context(), args)
			fmt.Fprintf(cmd.OutOrStdout(), "warmed %d/%d files\n", warmed, len(args))
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [dir]",
		Short: "List files in the sandbox session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			files, err := a.client.ListFiles(cmd.Context(), a.sessions.Current(), dir)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tSIZE\tCACHED")
			for _, f := range files {
				if f.IsDir {
					fmt.Fprintf(w, "%s/\t-\t-\n", f.Path)
					continue
				}
				cached := ""
				if a.cache.Has(a.sessions.Current(), f.Path) {
					cached = "yes"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", f.Path, f.Size, cached)
			}
			return w.Flush()
		},
	}
}

func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <remote-path> <local-file>",
		Short: "Push local file content to the sandbox",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read local file: %w", err)
			}
			if err := a.client.SaveFile(cmd.Context(), a.sessions.Current(), args[0], string(data)); err != nil {
				return err
			}
			// The remote copy changed; drop any stale cache entry.
			a.cache.Delete(a.sessions.Current(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", args[0], len(data))
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print cache and loader statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			stats := a.cache.Stats()
			snap := metrics.Global().Snapshot()
			if asJSON {
				out := map[string]any{"cache": stats, "loader": snap}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "items\t%d\n", stats.ItemCount)
			fmt.Fprintf(w, "size\t%s\n", stats.HumanSize)
			fmt.Fprintf(w, "hits\t%d\n", stats.Hits)
			fmt.Fprintf(w, "misses\t%d\n", stats.Misses)
			fmt.Fprintf(w, "hit rate\t%.1f%%\n", stats.HitRate*100)
			fmt.Fprintf(w, "evictions\t%d\n", stats.Evictions)
			fmt.Fprintf(w, "expired\t%d\n", stats.Expired)
			fmt.Fprintf(w, "loads\t%d\n", snap.Loads)
			fmt.Fprintf(w, "preloads\t%d\n", snap.Preloads)
			fmt.Fprintf(w, "timeouts\t%d\n", snap.Timeouts)
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func daemonCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run resident, serving Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Daemon.MetricsAddr = metricsAddr
			}
			if cfg.Daemon.MetricsAddr == "" {
				cfg.Daemon.MetricsAddr = ":9184"
			}

			if err := observability.Init(cmd.Context(), observability.Config{
				Enabled:     cfg.Telemetry.Enabled,
				Endpoint:    cfg.Telemetry.Endpoint,
				ServiceName: cfg.Telemetry.Service,
			}); err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}

			metrics.InitPrometheus("quasar", nil)
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})

			srv := &http.Server{Addr: cfg.Daemon.MetricsAddr, Handler: mux}
			go func() {
				logging.Op().Info("metrics listening", "addr", cfg.Daemon.MetricsAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Op().Error("metrics server failed", "error", err)
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			observability.Shutdown(shutdownCtx)
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address")
	return cmd
}
