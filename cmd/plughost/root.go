package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/config"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/logging"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/metrics"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/api"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/builtin"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/plugin/discovery"
	"github.com/Agent-Clubhouse/Clubhouse-sub000/internal/store"
)

// rootOptions are the persistent flags.
type rootOptions struct {
	configFile string
	projectDir string
	logLevel   string
	format     string
	memory     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "plughost",
		Short: "Plugin host",
		Long: `plughost discovers, validates and runs plugins.

Examples:
  # Run the host with the configured plugin directories
  plughost run

  # Check manifests before publishing
  plughost validate ./my-plugin

  # Show discovered plugins and their status
  plughost list --format json

  # Show permissions and API versions
  plughost catalog

  # Run a plugin command
  plughost exec plugin.hub.projects`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configFile, "config", "c", "", "Path to a config file (toml or yaml)")
	f.StringVarP(&opts.projectDir, "project-dir", "p", "", "Project whose .plughost/config is layered in")
	f.StringVar(&opts.logLevel, "log-level", "", "Override logging.level")
	f.StringVar(&opts.format, "format", "text", "Output format (text, json)")
	f.BoolVar(&opts.memory, "memory", false, "Keep plugin state in memory instead of the configured store")

	cmd.AddCommand(
		newRunCmd(opts),
		newValidateCmd(opts),
		newListCmd(opts),
		newCatalogCmd(opts),
		newEnableCmd(opts, true),
		newEnableCmd(opts, false),
		newExecCmd(opts),
	)
	return cmd
}

// loadConfig reads and validates the layered configuration.
func loadConfig(ctx context.Context, opts *rootOptions) (*config.Config, error) {
	var copts []config.Option
	if opts.configFile != "" {
		copts = append(copts, config.WithFile(opts.configFile))
	}
	if opts.projectDir != "" {
		copts = append(copts, config.WithProjectConfigDir(opts.projectDir))
	}
	cfg := config.New(copts...)
	if err := cfg.Load(ctx); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Set("logging.level", opts.logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) (zerolog.Logger, error) {
	lc := cfg.Logging()
	return logging.New(logging.Options{Level: lc.Level, Format: lc.Format, Out: out})
}

// session is a booted host plus what it needs to shut down.
type session struct {
	cfg      *config.Config
	log      zerolog.Logger
	host     *plugin.Host
	kv       store.KV
	metrics  *metrics.Metrics
	projects []api.ProjectInfo
}

// boot builds a host from the configuration, registers the builtins and
// runs discovery. Nothing is activated.
func boot(ctx context.Context, opts *rootOptions, logOut io.Writer) (*session, error) {
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, logOut)
	if err != nil {
		return nil, err
	}

	kv, err := openStore(cfg.Store(), opts.memory)
	if err != nil {
		return nil, err
	}

	var projects []api.ProjectInfo
	for _, p := range cfg.Projects() {
		projects = append(projects, api.ProjectInfo{ID: p.ID, Name: p.ID, Path: p.Path})
	}

	pc := cfg.Plugins()
	m := metrics.New()
	host := plugin.NewHost(
		plugin.WithServices(api.Services{
			Logger:   log,
			Projects: api.StaticProjects(projects),
		}),
		plugin.WithStore(kv),
		plugin.WithFeed(discovery.NewDirFeed(
			discovery.WithDirs(pc.Dirs...),
			discovery.WithMarketplaceDirs(pc.MarketplaceDirs...),
			discovery.WithLogger(log),
		)),
		plugin.WithHostObserver(m),
		plugin.WithCallTimeout(pc.CallTimeout),
		plugin.WithWatchDelay(pc.WatchDelay),
	)

	if err := builtin.RegisterAll(host); err != nil {
		kv.Close()
		return nil, fmt.Errorf("register builtins: %w", err)
	}
	n, err := host.Discover(ctx)
	if err != nil {
		kv.Close()
		return nil, err
	}
	log.Debug().Int("plugins", n).Strs("config", cfg.Sources()).Msg("discovery finished")

	return &session{cfg: cfg, log: log, host: host, kv: kv, metrics: m, projects: projects}, nil
}

// close tears down every context and closes the store.
func (s *session) close(ctx context.Context) error {
	err := s.host.Shutdown(ctx)
	if cerr := s.kv.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func openStore(sc config.StoreConfig, memory bool) (store.KV, error) {
	if memory || sc.InMemory() {
		return store.NewMemory(), nil
	}
	kv, err := store.OpenSQLite(sc.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", sc.Path, err)
	}
	return kv, nil
}
