package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/mediaflow/internal/agents"
	"github.com/example/mediaflow/internal/app"
	"github.com/example/mediaflow/internal/config"
	"github.com/example/mediaflow/internal/logging"
	"github.com/example/mediaflow/internal/models"
)

// errRunFailed marks a run that ended in error or canceled; its events were
// already printed.
var errRunFailed = errors.New("run did not succeed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "mediaflow",
		Short:         "Plan and run media generation workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("MEDIAFLOW_CONFIG"), "path to YAML config")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug|info|warn|error)")

	root.AddCommand(newValidateCmd(opts), newRunCmd(opts), newPlanCmd(opts), newToolsCmd(opts))
	return root
}

// setup loads config and wires components; logs go to stderr so stdout holds
// only command output.
func setup(ctx context.Context, opts *options, stderr io.Writer) (*app.App, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	cfg.Redis.Addr = ""
	return app.New(ctx, cfg, logging.NewWriter(cfg.Log, stderr))
}

func newValidateCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a plan file without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := models.LoadPlanFile(file)
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Verifier.Verify(plan, nil); err != nil {
				var pe *models.PlanError
				if errors.As(err, &pe) {
					for _, p := range pe.Problems {
						fmt.Fprintln(cmd.OutOrStdout(), "-", p)
					}
					return errRunFailed
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d steps\n", len(plan.Steps))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file (.json, .yaml)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRunCmd(opts *options) *cobra.Command {
	var file, from, outputsFile, configsFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a plan and print its events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := models.LoadPlanFile(file)
			if err != nil {
				return err
			}
			var prev map[string]models.Output
			if outputsFile != "" {
				if prev, err = models.LoadOutputsFile(outputsFile); err != nil {
					return err
				}
			}
			var configs map[string]models.StepConfig
			if configsFile != "" {
				b, err := os.ReadFile(configsFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(b, &configs); err != nil {
					return fmt.Errorf("parse configs %s: %w", configsFile, err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := setup(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Verifier.Verify(plan, configs); err != nil {
				return err
			}
			run, err := a.Executor.RunFrom(ctx, plan, from, configs, prev)
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), run.Events())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "plan file (.json, .yaml)")
	cmd.Flags().StringVar(&from, "from", "", "resume at this step id")
	cmd.Flags().StringVar(&outputsFile, "outputs", "", "previous outputs file for --from")
	cmd.Flags().StringVar(&configsFile, "configs", "", "JSON file of per-step model/input overrides")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printEvents(w io.Writer, events <-chan models.RunEvent) error {
	enc := json.NewEncoder(w)
	var last models.RunEvent
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		last = ev
	}
	if last.Type != models.EventDone || last.Status != models.RunSuccess {
		return errRunFailed
	}
	return nil
}

func newPlanCmd(opts *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "plan <prompt>",
		Short: "Ask the configured planner for a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			plan, err := a.Orchestrator.Plan(cmd.Context(), agents.PlanRequest{Prompt: args[0]})
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), plan, format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "json", "json | yaml")
	return cmd
}

// writePlan renders YAML from the JSON form so references keep their
// {kind: stepOutput} shape.
func writePlan(w io.Writer, plan *models.Plan, format string) error {
	b, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	if format != "yaml" {
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(doc)
}

func newToolsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List configured tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			for _, name := range a.Tools.Tools() {
				tc := a.Config.Tools[name]
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", name, tc.Provider)
			}
			return nil
		},
	}
}
