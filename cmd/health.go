package main

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/monitoring"
)

var runsHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show import health over the lookback window and any alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		if hours, _ := cmd.Flags().GetInt("hours"); hours > 0 {
			cfg.Monitoring.LookbackWindowHours = hours
		}

		collector := monitoring.NewCollector(env.Service, time.Duration(cfg.Monitoring.StuckRunMins)*time.Minute)
		snap, err := collector.Collect(ctx, cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			return eris.Wrap(err, "runs health")
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		formatHealth(os.Stdout, snap, alerts)

		if send, _ := cmd.Flags().GetBool("send"); send {
			alerter.SendAlerts(ctx, alerts)
		}
		return nil
	},
}

func newChecker(env *appEnv) *monitoring.Checker {
	collector := monitoring.NewCollector(env.Service, time.Duration(cfg.Monitoring.StuckRunMins)*time.Minute)
	return monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
}

func formatHealth(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	tw := newTable(out)
	tw.SetTitle("Last %dh", snap.LookbackHours)
	tw.AppendRow(table.Row{"Runs", snap.RunsTotal})
	tw.AppendRow(table.Row{"Done", snap.RunsDone})
	tw.AppendRow(table.Row{"Failed", snap.RunsFailed})
	tw.AppendRow(table.Row{"In flight", snap.RunsInFlight})
	tw.AppendRow(table.Row{"Stuck", snap.RunsStuck})
	tw.AppendRow(table.Row{"Invalidated", snap.RunsInvalidated})
	tw.AppendRow(table.Row{"Failure rate", formatPercent(snap.RunFailRate)})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Records", formatCounters(snap.Records)})
	tw.AppendRow(table.Row{"Record error rate", formatPercent(snap.RecordErrorRate)})
	tw.AppendRow(table.Row{"Awaiting review", snap.ConflictBacklog})
	tw.Render()

	if len(alerts) == 0 {
		return
	}
	at := newTable(out)
	at.AppendHeader(table.Row{"ALERT", "SEVERITY", "MESSAGE"})
	for _, a := range alerts {
		at.AppendRow(table.Row{a.Type, a.Severity, a.Message})
	}
	at.Render()
}

func formatPercent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

func init() {
	runsHealthCmd.Flags().Int("hours", 0, "lookback window in hours (default from config)")
	runsHealthCmd.Flags().Bool("send", false, "post triggered alerts to the configured webhook")
	runsCmd.AddCommand(runsHealthCmd)
}
