package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"factorcorr/adapters/excel"
	"factorcorr/adapters/stats/temporal"
	"factorcorr/domain/factor"
	"factorcorr/internal"
	"factorcorr/internal/config"
	"factorcorr/internal/container"
	"factorcorr/internal/testkit"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "factorcorr-cli",
		Short:         "Train, inspect and query the factor correlation model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newDemoCmd(),
		newTrainCmd(),
		newPredictCmd(),
		newEvaluateCmd(),
		newNonLinearityCmd(),
		newPropagateCmd(),
		newPublishCmd(),
		newFetchCmd(),
	)
	return rootCmd
}

// bootstrap builds a container from the environment without starting any listener
func bootstrap(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := internal.NewLoggerFromConfig(cfg.LogLevel, cfg.LogFormat)
	c, err := container.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// withContainer runs fn against an initialized container, loading a snapshot first when given
func withContainer(ctx context.Context, snapshotPath string, fn func(*container.Container) error) error {
	c, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	if snapshotPath != "" {
		if err := c.Service.Load(ctx, snapshotPath); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
	}
	return fn(c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readExamples(path string) ([]factor.TrainingExample, error) {
	groups, err := excel.NewDataReader(path, internal.NopLogger()).ReadSeriesFile(excel.DefaultExcelConfig())
	if err != nil {
		return nil, err
	}
	return excel.Examples(groups), nil
}

func newDemoCmd() *cobra.Command {
	var out string
	var pairs int
	var seed int64

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Write a synthetic labelled history file",
		Long: `Generate co-moving, anti-moving and independent factor pairs and write
them in the long format the train and evaluate commands read.

Example: factorcorr-cli demo --out history.xlsx --pairs 30 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := testkit.DefaultSeriesConfig()
			cfg.Seed = seed
			gen := testkit.NewSeriesGenerator(cfg)

			examples := testkit.Interleave(
				gen.Examples(testkit.CoMoving, pairs, 0.8, 0.9),
				gen.Examples(testkit.AntiMoving, pairs, -0.8, 0.9),
				gen.Examples(testkit.Independent, pairs, 0, 0.6),
			)
			// one pair per example so the reader does not merge them
			for i := range examples {
				examples[i].FactorA = fmt.Sprintf("%s_%03d", examples[i].FactorA, i)
				examples[i].FactorB = fmt.Sprintf("%s_%03d", examples[i].FactorB, i)
			}
			if err := excel.WriteExamples(out, examples); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d labelled pairs to %s\n", len(examples), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "demo_history.xlsx", "Output file; .csv writes CSV, anything else xlsx")
	cmd.Flags().IntVar(&pairs, "pairs", 20, "Pairs per relationship class")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for the generator")
	return cmd
}

func newTrainCmd() *cobra.Command {
	var dataFile, from, saveDir string
	var epochs, batchSize int
	var publish bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the model on a labelled history file",
		Long: `Train on a long-format spreadsheet with date, factor_a, factor_b, value_a,
value_b and correlation columns (confidence optional).

Example: factorcorr-cli train --data history.xlsx --epochs 20 --save ./models`,
		RunE: func(cmd *cobra.Command, args []string) error {
			examples, err := readExamples(dataFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withContainer(ctx, from, func(c *container.Container) error {
				record, err := c.Service.Train(ctx, examples, factor.TrainingOptions{Epochs: epochs, BatchSize: batchSize})
				if err != nil {
					return err
				}
				path, err := c.Service.Save(ctx, saveDir)
				if err != nil {
					return err
				}
				result := map[string]any{"record": record, "snapshot": path, "version": c.Model.Version()}
				if publish {
					remote, err := c.Service.Publish(ctx)
					if err != nil {
						return err
					}
					result["remote"] = remote
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "Labelled history spreadsheet")
	cmd.Flags().StringVar(&from, "from", "", "Snapshot directory to continue training from")
	cmd.Flags().StringVar(&saveDir, "save", "", "Snapshot parent directory (default model.dir)")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "Epoch override")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Batch size override")
	cmd.Flags().BoolVar(&publish, "publish", false, "Upload the snapshot to the registry")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// pairSeries finds one pair's history in a long file, or aligns two columns of a wide file
func pairSeries(dataFile string, wide bool, interval, factorA, factorB string) (factor.TimeSeriesSample, error) {
	reader := excel.NewDataReader(dataFile, internal.NopLogger())
	if wide {
		obs, err := reader.ReadObservations(excel.DefaultExcelConfig())
		if err != nil {
			return nil, err
		}
		a, okA := obs.Lookup(factorA)
		b, okB := obs.Lookup(factorB)
		if !okA || !okB {
			return nil, fmt.Errorf("columns %q and %q must both exist in %s", factorA, factorB, dataFile)
		}
		cfg := temporal.DefaultConfig()
		cfg.Interval = temporal.Interval(interval)
		return temporal.Align(a, b, cfg)
	}

	groups, err := reader.ReadSeriesFile(excel.DefaultExcelConfig())
	if err != nil {
		return nil, err
	}
	want := factor.Pair{FactorA: factorA, FactorB: factorB}
	for _, g := range groups {
		if g.Pair == want {
			return g.Series, nil
		}
	}
	return nil, fmt.Errorf("no history for pair %s in %s", want.Key(), dataFile)
}

func newPredictCmd() *cobra.Command {
	var dataFile, snapshotPath, factorA, factorB, interval string
	var wide bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the correlation of one factor pair from its history",
		Long: `Reads the pair from a long-format file, or with --wide aligns two factor
columns of a date-indexed sheet onto a shared grid first.

Example: factorcorr-cli predict --data history.xlsx --model ./models/factor-correlation_1.0.0_<id> \
  --factor-a co_moving_a_000 --factor-b co_moving_b_000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := pairSeries(dataFile, wide, interval, factorA, factorB)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withContainer(ctx, snapshotPath, func(c *container.Container) error {
				result, err := c.Service.Predict(ctx, factor.PredictionRequest{
					Sequence: series,
					FactorA:  factorA,
					FactorB:  factorB,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "History spreadsheet")
	cmd.Flags().StringVar(&snapshotPath, "model", "", "Snapshot directory (fresh weights when empty)")
	cmd.Flags().StringVar(&factorA, "factor-a", "", "First factor")
	cmd.Flags().StringVar(&factorB, "factor-b", "", "Second factor")
	cmd.Flags().BoolVar(&wide, "wide", false, "Data file has one column per factor")
	cmd.Flags().StringVar(&interval, "interval", string(temporal.IntervalDay), "Alignment grid for --wide: hour|day|week|month")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("factor-a")
	_ = cmd.MarkFlagRequired("factor-b")
	return cmd
}

func newEvaluateCmd() *cobra.Command {
	var dataFile, snapshotPath string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a snapshot on a labelled history file",
		RunE: func(cmd *cobra.Command, args []string) error {
			examples, err := readExamples(dataFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return withContainer(ctx, snapshotPath, func(c *container.Container) error {
				report, err := c.Service.Evaluate(ctx, examples)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "Labelled history spreadsheet")
	cmd.Flags().StringVar(&snapshotPath, "model", "", "Snapshot directory")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newNonLinearityCmd() *cobra.Command {
	var dataFile string
	var maxLag int

	cmd := &cobra.Command{
		Use:   "nonlinearity",
		Short: "Report non-linearity, recency, rank and lead/lag statistics per factor pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := excel.NewDataReader(dataFile, internal.NopLogger()).ReadSeriesFile(excel.DefaultExcelConfig())
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), "", func(c *container.Container) error {
				type row struct {
					Pair     string                `json:"pair"`
					Analysis factor.SeriesAnalysis `json:"analysis"`
					Error    string                `json:"error,omitempty"`
				}
				rows := make([]row, 0, len(groups))
				for _, g := range groups {
					r := row{Pair: g.Pair.Key()}
					if analysis, err := c.Service.Analyze(g.Series, maxLag); err != nil {
						r.Error = err.Error()
					} else {
						r.Analysis = analysis
					}
					rows = append(rows, r)
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "History spreadsheet")
	cmd.Flags().IntVar(&maxLag, "max-lag", 0, "Largest lag scanned (default a quarter of the series)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newPropagateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propagate [request.json]",
		Short: "Propagate a hypothetical factor change through a correlation matrix",
		Long: `Reads a counterfactual request (factors, baseProbabilities, changeIndex,
newProbability, correlationMatrix) from a JSON file, or stdin when the argument is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var req factor.CounterfactualRequest
			if err := json.NewDecoder(r).Decode(&req); err != nil {
				return fmt.Errorf("decode request: %w", err)
			}
			return withContainer(cmd.Context(), "", func(c *container.Container) error {
				return printJSON(cmd.OutOrStdout(), c.Service.Counterfactual(cmd.Context(), req))
			})
		},
	}
	return cmd
}

func newPublishCmd() *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload a snapshot to the configured registry and move LATEST to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withContainer(ctx, snapshotPath, func(c *container.Container) error {
				remote, err := c.Service.Publish(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), remote)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&snapshotPath, "model", "", "Snapshot directory")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newFetchCmd() *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a snapshot from the registry and show its metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withContainer(ctx, "", func(c *container.Container) error {
				if err := c.Service.Fetch(ctx, version); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c.Model.Metadata())
			})
		},
	}

	cmd.Flags().StringVar(&version, "version", "latest", "Version to fetch")
	return cmd
}
