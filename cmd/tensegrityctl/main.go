package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tensegrity/internal/config"
	"tensegrity/internal/logging"
	"tensegrity/internal/metrics"
	"tensegrity/internal/physics"
	"tensegrity/pkg/tensegrity"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(os.Stderr)
	return root.ExecuteContext(ctx)
}

// globals are the flags shared by every subcommand. A flag that is set
// overrides the matching config file value.
type globals struct {
	configPath  string
	storeKind   string
	dbPath      string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "tensegrityctl",
		Short:         "Build, simulate and tune tensegrity robots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML or JSON config file")
	pf.StringVar(&g.storeKind, "store", "memory", "store backend: memory|sqlite")
	pf.StringVar(&g.dbPath, "db-path", "tensegrity.db", "sqlite database path")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(
		newRobotsCmd(g),
		newLayoutCmd(g),
		newSimulateCmd(g),
		newTuneCmd(g),
		newRunsCmd(g),
		newShowCmd(g),
	)
	return root
}

// loadConfig reads the config file when given, then applies explicitly set
// persistent flags on top.
func (g *globals) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Kind = g.storeKind
	}
	if flags.Changed("db-path") {
		cfg.Store.Path = g.dbPath
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = g.dbPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = g.metricsAddr
	}
	return cfg, nil
}

// session is an open client plus the resources a command needs to release.
type session struct {
	cfg     config.Config
	client  *tensegrity.Client
	logger  *slog.Logger
	metrics *metrics.Registry
	server  *http.Server
}

func (g *globals) open(cmd *cobra.Command, cfg config.Config) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(level)
	reg := metrics.NewRegistry()

	client, err := tensegrity.New(tensegrity.Options{
		StoreKind: cfg.Store.Kind,
		DBPath:    cfg.Store.Path,
		Logger:    logger,
		Metrics:   reg,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Init(cmd.Context()); err != nil {
		_ = client.Close()
		return nil, err
	}

	s := &session{cfg: cfg, client: client, logger: logger, metrics: reg}
	if cfg.Metrics.Addr != "" {
		if err := s.serveMetrics(cfg.Metrics.Addr); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	s.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

func (s *session) Close() error {
	var errs []error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errs = append(errs, s.server.Shutdown(ctx))
	}
	errs = append(errs, s.client.Close())
	return errors.Join(errs...)
}

func (s *session) episode() (tensegrity.EpisodeRequest, error) {
	world := s.cfg.PhysicsConfig()
	return episodeFor(s.cfg, &world)
}

func episodeFor(cfg config.Config, world *physics.WorldConfig) (tensegrity.EpisodeRequest, error) {
	mode, err := cfg.GroupMode()
	if err != nil {
		return tensegrity.EpisodeRequest{}, err
	}
	return tensegrity.EpisodeRequest{
		Robot:         cfg.Robot,
		Segments:      cfg.Segments,
		StructureFile: cfg.Structure,
		Ticks:         cfg.Ticks,
		Dt:            cfg.Dt,
		World:         world,
		Control:       cfg.CPGConfig(),
		GroupMode:     mode,
		TensionOffset: cfg.Control.TensionOffset,
	}, nil
}
