// Package report renders solve results for humans and machines: colored
// terminal summaries, plain-text schema dumps, JSON exports and
// convergence charts.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/mattn/go-runewidth"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/solver"
)

// Summary writes a colored, aligned overview of a solution: convergence
// stats, then one row per state with its value and greedy action.
func Summary(w io.Writer, sol *solver.Solution) error {
	status := aurora.Green("converged").String()
	if !sol.Converged {
		status = aurora.Red("NOT converged").String()
	}
	fmt.Fprintf(w, "%s after %d iteration(s), max residual %.6g (gamma=%.3g, epsilon=%.3g, %v)\n\n",
		status, sol.Iterations, sol.MaxResidual, sol.Gamma, sol.Epsilon, sol.Duration.Round(time.Microsecond))

	stateWidth := runewidth.StringWidth("state")
	actionWidth := runewidth.StringWidth("action")
	for i, label := range sol.StateLabels {
		if w := runewidth.StringWidth(label); w > stateWidth {
			stateWidth = w
		}
		if w := runewidth.StringWidth(string(sol.Policy[i])); w > actionWidth {
			actionWidth = w
		}
	}

	fmt.Fprintf(w, "%s  %s  %s\n",
		pad("state", stateWidth), pad("action", actionWidth), "value")
	fmt.Fprintf(w, "%s  %s  %s\n",
		strings.Repeat("-", stateWidth), strings.Repeat("-", actionWidth), "------")
	for i, label := range sol.StateLabels {
		fmt.Fprintf(w, "%s  %s  %10.4f\n",
			pad(label, stateWidth),
			aurora.Blue(pad(string(sol.Policy[i]), actionWidth)),
			sol.V[i])
	}
	return nil
}

// QTable writes the full Q-table, states as rows and actions as
// columns, with the greedy entry highlighted.
func QTable(w io.Writer, sol *solver.Solution) error {
	stateWidth := runewidth.StringWidth("state")
	for _, label := range sol.StateLabels {
		if lw := runewidth.StringWidth(label); lw > stateWidth {
			stateWidth = lw
		}
	}
	colWidth := 10
	for _, a := range sol.Actions {
		if aw := runewidth.StringWidth(string(a)); aw > colWidth {
			colWidth = aw
		}
	}

	fmt.Fprint(w, pad("state", stateWidth))
	for _, a := range sol.Actions {
		fmt.Fprintf(w, "  %s", pad(string(a), colWidth))
	}
	fmt.Fprintln(w)

	for i, label := range sol.StateLabels {
		fmt.Fprint(w, pad(label, stateWidth))
		for j, a := range sol.Actions {
			cell := pad(fmt.Sprintf("%.4f", sol.Q[i][j]), colWidth)
			if a == sol.Policy[i] {
				cell = aurora.Green(cell).String()
			}
			fmt.Fprintf(w, "  %s", cell)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// pad right-pads s to the given display width, runewidth-aware so CJK
// labels align.
func pad(s string, width int) string {
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

// DumpSchema writes the factor layout of a schema: kind, base, stride
// and options per factor, then the totals.
func DumpSchema(w io.Writer, s *domain.Schema) {
	strides := s.Strides()
	fmt.Fprintf(w, "schema: %d factor(s), %d state(s)\n", s.Len(), s.TotalStates())
	for i, f := range s.Factors() {
		if f.Kind == domain.FactorBinary {
			fmt.Fprintf(w, "  [%d] binary %s (base 2, stride %d)\n", i, f.Terms[0], strides[i])
			continue
		}
		opts := make([]string, len(f.Terms))
		for j, t := range f.Terms {
			opts[j] = string(t)
		}
		fmt.Fprintf(w, "  [%d] enum %s (base %d, stride %d): %s\n",
			i, f.GroupKey, f.Base(), strides[i], strings.Join(opts, " | "))
	}
}
