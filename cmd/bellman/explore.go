package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/logrusorgru/aurora"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/report"
	"github.com/solverlab/bellman/internal/service"
)

// runExplore solves the model, then drops into a readline REPL for
// inspecting the value function, policy and Q-table state by state.
func runExplore(args []string) error {
	fs := flag.NewFlagSet("explore", flag.ExitOnError)
	f := addSolverFlags(fs)
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("explore needs exactly one model file")
	}

	result, err := solveFile(fs.Arg(0), f, cliLogger(*verbose))
	if err != nil {
		return err
	}
	if err := report.Summary(os.Stdout, result.Solution); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          aurora.Cyan("bellman> ").String(),
		HistoryFile:     os.TempDir() + "/bellman_explore_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("start repl: %w", err)
	}
	defer rl.Close()

	fmt.Println(`type "help" for commands`)
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			fmt.Println(`commands:
  states            list all states with index, value and greedy action
  state <i>         show one state's value, action and Q row
  next <i> [action] step the transition from state i (greedy action by default)
  q                 print the full Q-table
  quit              leave the explorer`)
		case "states":
			for i, label := range result.Solution.StateLabels {
				fmt.Printf("  [%3d] %-30s V=%-10.4f -> %s\n",
					i, label, result.Solution.V[i], result.Solution.Policy[i])
			}
		case "state":
			if len(fields) != 2 {
				fmt.Println("usage: state <index>")
				continue
			}
			showState(result, fields[1])
		case "next":
			if len(fields) < 2 || len(fields) > 3 {
				fmt.Println("usage: next <index> [action]")
				continue
			}
			showTransition(result, fields[1:])
		case "q":
			if err := report.QTable(os.Stdout, result.Solution); err != nil {
				fmt.Println("error:", err)
			}
		case "quit", "exit":
			return nil
		default:
			fmt.Printf("unknown command %q, try help\n", fields[0])
		}
	}
}

func showState(result *service.SolveResult, raw string) {
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 || i >= len(result.Solution.StateLabels) {
		fmt.Printf("state index must be in [0,%d)\n", len(result.Solution.StateLabels))
		return
	}
	sol := result.Solution
	fmt.Printf("state %d: %s\n", i, sol.StateLabels[i])
	fmt.Printf("  V      = %.6f\n", sol.V[i])
	fmt.Printf("  policy = %s\n", aurora.Green(string(sol.Policy[i])))
	for j, a := range sol.Actions {
		marker := " "
		if a == sol.Policy[i] {
			marker = "*"
		}
		fmt.Printf("  %s Q[%s] = %.6f\n", marker, a, sol.Q[i][j])
	}
}

// showTransition prints the per-factor branch distribution of one
// (state, action) step. Without an explicit action it follows the
// greedy policy.
func showTransition(result *service.SolveResult, args []string) {
	sol := result.Solution
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 0 || i >= len(sol.StateLabels) {
		fmt.Printf("state index must be in [0,%d)\n", len(sol.StateLabels))
		return
	}

	action := sol.Policy[i]
	if len(args) == 2 {
		action = domain.Term(args[1])
	}
	actionIdx := -1
	for j, a := range sol.Actions {
		if a == action {
			actionIdx = j
			break
		}
	}
	if actionIdx < 0 {
		fmt.Printf("unknown action %q, actions are %v\n", action, sol.Actions)
		return
	}

	schema := result.Model.Schema()
	stateVal, err := domain.NewStateSpace(schema).Decode(i)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	actionSpace, err := domain.NewActionSpace(result.Model.Actions())
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	actionVal, err := actionSpace.Decode(actionIdx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	st, err := result.Model.StructuredTransition(context.Background(), stateVal, actionVal, nil)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("from %s via %s:\n", sol.StateLabels[i], aurora.Green(string(action)))
	for k, dist := range st {
		fmt.Printf("  %s:\n", schema.Factor(k))
		for _, b := range dist {
			label := "false"
			if b.Term != "" {
				label = b.Term.Base().String()
			}
			fmt.Printf("    %-24s %.4f\n", label, b.Prob)
		}
	}
}
