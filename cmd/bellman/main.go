// Command bellman solves factored MDP model files from the command
// line: solve computes and reports a policy, validate runs expectation
// scenarios, explore opens an interactive REPL over a solved model.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/buildconfig"
	"github.com/solverlab/bellman/internal/oracle"
	"github.com/solverlab/bellman/internal/report"
	"github.com/solverlab/bellman/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "solve":
		err = runSolve(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "explore":
		err = runExplore(os.Args[2:])
	case "version":
		fmt.Printf("bellman %s (%s)\n", buildconfig.Version(), buildconfig.Commit())
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: bellman <command> [flags]

commands:
  solve    <model.json>      solve a model and print the policy
  validate <scenarios.json>  run expectation scenarios against models
  explore  <model.json>      solve, then inspect states interactively
  version                    print build information`)
}

type solverFlags struct {
	gamma   float64
	epsilon float64
	maxIter int
	workers int
}

func addSolverFlags(fs *flag.FlagSet) *solverFlags {
	f := &solverFlags{}
	fs.Float64Var(&f.gamma, "gamma", 0.9, "discount factor in (0,1)")
	fs.Float64Var(&f.epsilon, "epsilon", 0.1, "policy suboptimality bound")
	fs.IntVar(&f.maxIter, "max-iterations", 1000, "sweep cap before reporting non-convergence")
	fs.IntVar(&f.workers, "workers", 0, "parallel workers per sweep (0 = all CPUs)")
	return f
}

func solveFile(path string, f *solverFlags, logger *zap.Logger) (*service.SolveResult, error) {
	def, err := oracle.LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	svc := service.NewSolveService(nil, logger)
	return svc.Solve(context.Background(), service.SolveRequest{
		Name:          def.Name,
		Definition:    def,
		Gamma:         f.gamma,
		Epsilon:       f.epsilon,
		MaxIterations: f.maxIter,
		Workers:       f.workers,
	})
}

func runSolve(args []string) error {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	f := addSolverFlags(fs)
	jsonOut := fs.String("json", "", "write the solution to this JSON file")
	chartOut := fs.String("chart", "", "write a convergence chart to this HTML file")
	showQ := fs.Bool("q", false, "also print the Q-table")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("solve needs exactly one model file")
	}

	result, err := solveFile(fs.Arg(0), f, cliLogger(*verbose))
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	report.DumpSchema(os.Stdout, result.Schema)
	fmt.Println()
	if err := report.Summary(os.Stdout, result.Solution); err != nil {
		return err
	}
	if *showQ {
		fmt.Println()
		if err := report.QTable(os.Stdout, result.Solution); err != nil {
			return err
		}
	}

	if *jsonOut != "" {
		if err := report.WriteJSON(*jsonOut, result.Solution); err != nil {
			return err
		}
		fmt.Println("\nsolution written to", *jsonOut)
	}
	if *chartOut != "" {
		if err := report.ConvergenceChart(*chartOut, result.Solution); err != nil {
			return err
		}
		fmt.Println("chart written to", *chartOut)
	}
	if !result.Solution.Converged {
		return fmt.Errorf("did not converge within %d iterations", result.Solution.Iterations)
	}
	return nil
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("validate needs at least one scenario file")
	}

	svc := service.NewValidationService(cliLogger(*verbose))
	failed := 0
	for _, path := range fs.Args() {
		scenarios, err := loadScenarios(path)
		if err != nil {
			return err
		}
		batch := svc.RunBatch(scenarios)
		for _, rep := range batch.Reports {
			fmt.Printf("%-5s %s\n", rep.Status, rep.Scenario)
			for _, d := range rep.Discrepancies {
				fmt.Printf("      %s\n", d)
			}
		}
		failed += batch.Failed + batch.Errored
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}

func loadScenarios(path string) ([]service.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var scenarios []service.Scenario
	if err := json.Unmarshal(data, &scenarios); err != nil {
		// a file may also hold one bare scenario
		var one service.Scenario
		if err2 := json.Unmarshal(data, &one); err2 != nil {
			return nil, fmt.Errorf("parse scenarios %s: %w", path, err)
		}
		scenarios = append(scenarios, one)
	}
	return scenarios, nil
}

func cliLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, _ := zap.NewDevelopment()
	return logger
}
