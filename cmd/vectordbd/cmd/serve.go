package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/collection"
	vcfg "github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/internal/hnsw"
	"github.com/Aman-CERP/amanmcp/internal/metric"
	"github.com/Aman-CERP/amanmcp/internal/wal"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vectordbd daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := vcfg.Load(configPath)
	if err != nil {
		return &exitError{code: ExitConfigError, err: fmt.Errorf("load config: %w", err)}
	}

	eng, err := engine.New(cfg.DataDir)
	if err != nil {
		return &exitError{code: ExitCorruption, err: fmt.Errorf("open engine: %w", err)}
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			slog.Error("engine close failed", slog.Any("error", cerr))
		}
	}()

	if err := openExistingCollections(eng, cfg); err != nil {
		return &exitError{code: ExitCorruption, err: fmt.Errorf("restore collections: %w", err)}
	}

	watchPath := configPath
	if watchPath == "" {
		watchPath = vcfg.GetUserConfigPath()
	}
	watcher, err := vcfg.WatchFile(watchPath, func(reloaded *vcfg.Config) {
		slog.Info("config reloaded", slog.String("durability", reloaded.Durability), slog.Int("ef_search", reloaded.Defaults.EfSearch))
		cfg = reloaded
	})
	if err == nil {
		defer func() {
			if werr := watcher.Stop(); werr != nil {
				slog.Warn("config watcher stop failed", slog.Any("error", werr))
			}
		}()
	} else {
		slog.Warn("config hot-reload disabled", slog.Any("error", err))
	}

	slog.Info("vectordbd serving",
		slog.String("data_dir", cfg.DataDir),
		slog.String("listen", cfg.Listen.Address),
		slog.String("replication_role", cfg.Replication.Role))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("shutdown signal received, draining collections")
	return nil
}

// openExistingCollections restores every collection already persisted
// under cfg.DataDir into the engine's registry, so a restarted daemon
// serves the collections it served before rather than starting empty.
func openExistingCollections(eng *engine.Engine, cfg *vcfg.Config) error {
	names, err := eng.Discover()
	if err != nil {
		return err
	}

	durability, err := parseDurability(cfg.Durability)
	if err != nil {
		return err
	}
	params := hnsw.Params{
		M:              cfg.Defaults.M,
		MMax0:          cfg.Defaults.MMax0,
		EfConstruction: cfg.Defaults.EfConstruction,
		EfSearch:       cfg.Defaults.EfSearch,
	}

	for _, name := range names {
		if err := eng.Open(name, durability, params, cfg.Defaults.MaxOpenChunks); err != nil {
			return fmt.Errorf("opening collection %q: %w", name, err)
		}
		slog.Info("restored collection", slog.String("name", name))
	}
	return nil
}

// collectionOptionsFromDefaults builds collection.Options from the
// config's string-typed defaults, used by `collection create`.
func collectionOptionsFromDefaults(d vcfg.CollectionDefaults, dim int, durability wal.Durability) (collection.Options, error) {
	k, err := parseMetric(d.Metric)
	if err != nil {
		return collection.Options{}, err
	}
	q, err := parseQuantization(d.Quantization)
	if err != nil {
		return collection.Options{}, err
	}
	return collection.Options{
		Dim:          dim,
		Metric:       k,
		Quantization: q,
		Params: hnsw.Params{
			M:              d.M,
			MMax0:          d.MMax0,
			EfConstruction: d.EfConstruction,
			EfSearch:       d.EfSearch,
		},
		Durability:    durability,
		MaxOpenChunks: d.MaxOpenChunks,
	}, nil
}

func parseMetric(s string) (metric.Kind, error) {
	switch s {
	case "euclidean":
		return metric.Euclidean, nil
	case "cosine":
		return metric.Cosine, nil
	case "poincare":
		return metric.Poincare, nil
	case "lorentz":
		return metric.Lorentz, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

func parseQuantization(s string) (metric.Quantization, error) {
	switch s {
	case "none":
		return metric.None, nil
	case "scalar_i8":
		return metric.ScalarI8, nil
	case "binary":
		return metric.Binary, nil
	default:
		return 0, fmt.Errorf("unknown quantization %q", s)
	}
}

func parseDurability(s string) (wal.Durability, error) {
	switch s {
	case "strict":
		return wal.Strict, nil
	case "default":
		return wal.Default, nil
	case "batch":
		return wal.Batch, nil
	case "async":
		return wal.Async, nil
	default:
		return 0, fmt.Errorf("unknown durability %q", s)
	}
}
