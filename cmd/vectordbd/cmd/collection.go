package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/internal/hnsw"
)

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}
	cmd.AddCommand(newCollectionCreateCmd())
	cmd.AddCommand(newCollectionListCmd())
	cmd.AddCommand(newCollectionDeleteCmd())
	return cmd
}

func openEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, &exitError{code: ExitConfigError, err: err}
	}
	eng, err := engine.New(cfg.DataDir)
	if err != nil {
		return nil, nil, &exitError{code: ExitCorruption, err: err}
	}
	return eng, cfg, nil
}

func newCollectionCreateCmd() *cobra.Command {
	var dim int
	var metricName, quantName, durabilityName string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			durability, err := parseDurability(durabilityName)
			if err != nil {
				return &exitError{code: ExitConfigError, err: err}
			}

			defaults := cfg.Defaults
			if metricName != "" {
				defaults.Metric = metricName
			}
			if quantName != "" {
				defaults.Quantization = quantName
			}

			opts, err := collectionOptionsFromDefaults(defaults, dim, durability)
			if err != nil {
				return &exitError{code: ExitConfigError, err: err}
			}

			if err := eng.Create(args[0], opts); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created collection %q\n", args[0])
			return err
		},
	}

	cmd.Flags().IntVar(&dim, "dim", 0, "Vector dimensionality (required)")
	cmd.Flags().StringVar(&metricName, "metric", "", "Metric: euclidean|cosine|poincare|lorentz (default: config default)")
	cmd.Flags().StringVar(&quantName, "quantization", "", "Quantization: none|scalar_i8|binary (default: config default)")
	cmd.Flags().StringVar(&durabilityName, "durability", "default", "Durability: strict|default|batch|async")
	_ = cmd.MarkFlagRequired("dim")

	return cmd
}

func newCollectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections persisted in the data directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, _, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			names, err := eng.Discover()
			if err != nil {
				return err
			}
			for _, name := range names {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCollectionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a collection and its on-disk data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cfg, err := openEngine()
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			durability, err := parseDurability(cfg.Durability)
			if err != nil {
				return &exitError{code: ExitConfigError, err: err}
			}
			params := hnsw.Params{
				M:              cfg.Defaults.M,
				MMax0:          cfg.Defaults.MMax0,
				EfConstruction: cfg.Defaults.EfConstruction,
				EfSearch:       cfg.Defaults.EfSearch,
			}
			// Register the on-disk collection before deleting it; DeleteCollection
			// only operates on collections already in the engine's registry.
			if err := eng.Open(args[0], durability, params, cfg.Defaults.MaxOpenChunks); err != nil {
				return err
			}

			if err := eng.DeleteCollection(args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted collection %q\n", args[0])
			return err
		},
	}
}
