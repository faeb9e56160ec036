package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// CheckResult is the outcome of one status probe.
type CheckResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StatusReport aggregates the probes run by the status command.
type StatusReport struct {
	Config   CheckResult `json:"config"`
	Database CheckResult `json:"database"`
	Sweeper  CheckResult `json:"sweeper"`
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	var (
		jsonOut bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gatehouse health",
		Long: `Check the configuration, database connectivity, and the health of a
running sweep daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOut, timeout)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "timeout for each probe")
	registerConfigFlags(cmd.Flags())

	return cmd
}

// runStatus renders the probe results. Failed probes are reported in the
// output rather than as a command error.
func runStatus(cmd *cobra.Command, jsonOut bool, timeout time.Duration) error {
	report := collectStatus(cmd, timeout)

	if jsonOut {
		out, err := formatStatusJSON(report)
		if err != nil {
			return err
		}
		cmd.Println(out)
		return nil
	}

	cmd.Println(formatStatusTable(report))
	return nil
}

// collectStatus runs every probe. A config that fails to load marks the
// dependent probes as skipped since neither has an address to check.
func collectStatus(cmd *cobra.Command, timeout time.Duration) StatusReport {
	conf, err := loadConfig(cmd)
	if err != nil {
		skipped := CheckResult{Error: "skipped: configuration invalid"}
		return StatusReport{
			Config:   CheckResult{Error: err.Error()},
			Database: skipped,
			Sweeper:  skipped,
		}
	}

	detail := resolveConfigPath()
	if detail == "" {
		detail = "built-in defaults"
	}
	return StatusReport{
		Config:   CheckResult{OK: true, Detail: detail},
		Database: checkDatabase(cmd.Context(), conf.Database.URL, timeout),
		Sweeper:  checkSweeper(conf, timeout),
	}
}

// checkDatabase opens a pool and pings it within the timeout.
func checkDatabase(ctx context.Context, databaseURL string, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := store.Connect(ctx, databaseURL)
	if err != nil {
		return CheckResult{Error: err.Error()}
	}
	pool.Close()

	return CheckResult{OK: true, Detail: "connected"}
}

// checkSweeper probes the readiness endpoint a running sweep daemon
// exposes on the metrics address.
func checkSweeper(conf *config.Config, timeout time.Duration) CheckResult {
	if !conf.Metrics.Enabled {
		return CheckResult{Error: "skipped: metrics disabled"}
	}
	return probeSweeper(conf.Metrics.Addr, timeout)
}

// probeSweeper hits the sweep daemon's readiness endpoint. Connection
// failures mean no daemon is listening on the address.
func probeSweeper(addr string, timeout time.Duration) CheckResult {
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get("http://" + addr + "/healthz/readiness")
	if err != nil {
		return CheckResult{Error: "not running"}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return CheckResult{OK: true, Detail: "ready"}
	case http.StatusServiceUnavailable:
		return CheckResult{Detail: "running", Error: "last sweep failed"}
	default:
		return CheckResult{Error: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}
}

// formatStatusTable renders the report as an aligned table, one probe
// per row. Failing probes show their error in the detail column.
func formatStatusTable(report StatusReport) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t------")

	rows := []struct {
		name   string
		result CheckResult
	}{
		{"config", report.Config},
		{"database", report.Database},
		{"sweeper", report.Sweeper},
	}
	for _, row := range rows {
		status := "ok"
		detail := row.result.Detail
		if !row.result.OK {
			status = "fail"
			if row.result.Error != "" {
				detail = row.result.Error
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", row.name, status, detail)
	}

	_ = w.Flush()
	return buf.String()
}

func formatStatusJSON(report StatusReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding status report: %w", err)
	}
	return string(data), nil
}
