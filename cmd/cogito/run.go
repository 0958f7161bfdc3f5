package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cogito/internal/adaptive"
	"cogito/internal/config"
	"cogito/internal/contract"
	"cogito/internal/converge"
	"cogito/internal/kernel"
	"cogito/internal/oracle"
	"cogito/internal/planner"
	"cogito/internal/synthesis"
	"cogito/internal/tools"
	"cogito/internal/validate"
)

var (
	runModel    string
	runMaxTTL   int
	runCriteria []string
	runJSONOut  bool
)

var runCmd = &cobra.Command{
	Use:   "run <objective>",
	Short: "Execute one objective through the full loop",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		objective := strings.Join(args, " ")

		if runModel != "" {
			cfg.Oracle.Model = runModel
		}
		if runMaxTTL > 0 {
			cfg.Kernel.MaxTTL = runMaxTTL
		}
		criteria, err := parseCriteria(runCriteria)
		if err != nil {
			return err
		}

		orch, client, err := buildOrchestrator()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Hot-reload lets a long run pick up an oracle model change without
		// restarting.
		holder, err := config.NewHolder(configPath, func(updated *config.Config) {
			if updated.Oracle.Model != "" {
				client.SetModel(updated.Oracle.Model)
			}
		})
		if err == nil {
			if werr := holder.Start(ctx); werr == nil {
				defer holder.Stop()
			}
		}

		go printEvents(orch.Events())
		result := orch.RunTaskExecution(ctx, objective, criteria)

		if runJSONOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		return renderResult(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runModel, "model", "", "override the oracle model")
	runCmd.Flags().IntVar(&runMaxTTL, "ttl", 0, "override the maximum pass budget")
	runCmd.Flags().StringArrayVar(&runCriteria, "criterion", nil, "convergence override as dimension=threshold, repeatable")
	runCmd.Flags().BoolVar(&runJSONOut, "json", false, "print the full execution result as JSON")
}

// buildOrchestrator wires every stage from the loaded configuration.
func buildOrchestrator() (*kernel.Orchestrator, *oracle.HTTPClient, error) {
	httpCfg := oracle.DefaultHTTPConfig(cfg.Oracle.APIKey)
	if cfg.Oracle.BaseURL != "" {
		httpCfg.BaseURL = cfg.Oracle.BaseURL
	}
	if cfg.Oracle.Model != "" {
		httpCfg.Model = cfg.Oracle.Model
	}
	if cfg.Oracle.MaxTokens > 0 {
		httpCfg.MaxTokens = cfg.Oracle.MaxTokens
	}
	httpCfg.Timeout = cfg.OracleTimeout()
	client := oracle.NewHTTPClient(httpCfg)

	registry, err := contract.NewRegistry()
	if err != nil {
		return nil, nil, err
	}
	invoker := contract.NewInvoker(registry, client, contract.NewClientRepairer(registry, client))
	toolReg := tools.NewStaticRegistry(cfg.Tools)

	return kernel.NewOrchestrator(kernel.Options{
		Config:      cfg,
		Adaptive:    adaptive.NewController(invoker),
		Planner:     planner.New(invoker, toolReg, cfg.Kernel.MaxNestingDepth),
		Validator:   validate.NewValidator(invoker, toolReg),
		Engine:      converge.NewEngine(invoker),
		Stage:       synthesis.NewStage(invoker),
		Executor:    kernel.NewOracleExecutor(client),
		Snapshots:   kernel.NewSnapshotStore(cfg.Kernel.SnapshotDir),
		EventBuffer: 64,
	}), client, nil
}

// parseCriteria turns dimension=threshold strings into criteria.
func parseCriteria(raw []string) ([]converge.Criterion, error) {
	var out []converge.Criterion
	for _, r := range raw {
		parts := strings.SplitN(r, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("criterion %q must be dimension=threshold", r)
		}
		var threshold float64
		if _, err := fmt.Sscanf(parts[1], "%f", &threshold); err != nil {
			return nil, fmt.Errorf("criterion %q has a non-numeric threshold", r)
		}
		out = append(out, converge.Criterion{Dimension: parts[0], Threshold: threshold})
	}
	return out, nil
}

// printEvents mirrors the event stream to stderr while a run is live.
func printEvents(events <-chan kernel.Event) {
	if events == nil {
		return
	}
	for ev := range events {
		if verbose {
			fmt.Fprintf(os.Stderr, "[%s] %s %s\n", ev.Phase, ev.Kind, ev.Message)
		}
	}
}
