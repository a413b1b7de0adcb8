package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openrag/opsconsole/internal/health"
	"github.com/openrag/opsconsole/internal/probe"
)

// ErrUnreachable is returned by check when at least one service is down.
var ErrUnreachable = errors.New("one or more services are unreachable")

var stateColors = map[probe.State]lipgloss.Color{
	probe.StateHealthy:     lipgloss.Color("#00D787"),
	probe.StateDegraded:    lipgloss.Color("#FFAF00"),
	probe.StateUnreachable: lipgloss.Color("#FF005F"),
	probe.StatePending:     lipgloss.Color("#6C6C6C"),
}

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every configured service once",
		Long: `Runs a single health cycle against the configured probes and prints one
row per service. Exits non-zero when any service is unreachable.

Examples:
  opsconsole check
  opsconsole check --config /etc/opsconsole.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCheck(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (a *app) runCheck(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	monitor, err := health.NewMonitor(health.Config{
		Probes: a.cfg.ServiceProbes(),
		Prober: probe.NewRunner(probe.RunnerConfig{Logger: zerolog.Nop()}),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		return fmt.Errorf("create monitor: %w", err)
	}

	cycle := monitor.RunCycle(ctx)
	fmt.Fprintln(out, renderCycle(cycle))

	if cycle.Count(probe.StateUnreachable) > 0 {
		return ErrUnreachable
	}
	return nil
}

func renderCycle(cycle health.Cycle) string {
	services := cycle.Statuses()

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SERVICE", "STATE", "DETAIL", "LATENCY").
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true)
			}
			if col == 1 && row >= 0 && row < len(services) {
				return style.Foreground(stateColors[services[row].State])
			}
			return style
		})

	for _, s := range services {
		t.Row(s.Name, string(s.State), s.Detail, strconv.FormatInt(s.LatencyMs, 10)+"ms")
	}

	summary := fmt.Sprintf("overall: %s (%d healthy, %d degraded, %d unreachable)",
		cycle.Overall(),
		cycle.Count(probe.StateHealthy),
		cycle.Count(probe.StateDegraded),
		cycle.Count(probe.StateUnreachable))
	return t.Render() + "\n" + summary
}
