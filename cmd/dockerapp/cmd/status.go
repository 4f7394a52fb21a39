package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/dockerapp/internal/retry"
	"github.com/psantana5/dockerapp/internal/supervisor"
)

var (
	statusAddress string
	statusOutput  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show supervisor and worker status",
	Long:  `Query the supervisor's control endpoint and display its workers.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAddress, "address", "", "control endpoint address (default from control.address)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format: table or json")
}

func fetchStatus(client *http.Client, url string) (*supervisor.Status, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("control endpoint error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var st supervisor.Status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &st, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddress
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.Control.Address
	}
	if addr == "" {
		return fmt.Errorf("control endpoint is disabled (control.address is empty)")
	}

	url := "http://" + strings.TrimPrefix(addr, "http://") + "/status"
	client := &http.Client{Timeout: 5 * time.Second}

	var st *supervisor.Status
	err := retry.Do(cmd.Context(), retry.DefaultConfig(), func() error {
		var err error
		st, err = fetchStatus(client, url)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to query supervisor at %s: %w", addr, err)
	}

	return printStatus(cmd.OutOrStdout(), st, statusOutput)
}

func printStatus(w io.Writer, st *supervisor.Status, format string) error {
	if format == "json" {
		output, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(output))
		return nil
	}

	fmt.Fprintf(w, "Supervisor pid %d on %s, up %s\n", st.PID, st.Bind, formatSeconds(st.Uptime))
	fmt.Fprintf(w, "Workers: %d/%d active, %d restarts, %d timeouts\n\n", st.Active, st.Desired, st.Restarts, st.Timeouts)

	if len(st.Workers) == 0 {
		fmt.Fprintln(w, "No workers running")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "PID", "Age", "Heartbeat", "RSS", "CPU", "State")
	for _, wk := range st.Workers {
		state := "serving"
		if wk.Retiring {
			state = "retiring"
		}
		heartbeat := "-"
		if !wk.LastHeartbeat.IsZero() {
			heartbeat = formatSeconds(time.Since(wk.LastHeartbeat).Seconds()) + " ago"
		}
		table.Append(
			fmt.Sprintf("%d", wk.ID),
			fmt.Sprintf("%d", wk.PID),
			formatSeconds(wk.Age),
			heartbeat,
			formatBytes(wk.RSS),
			fmt.Sprintf("%.1f%%", wk.CPUPercent),
			state,
		)
	}
	table.Render()

	if len(st.RecentExits) > 0 {
		fmt.Fprintln(w, "\nRecent exits:")
		for _, e := range st.RecentExits {
			fmt.Fprintf(w, "  worker %d pid %d: %s (exit %d) after %s\n",
				e.WorkerID, e.PID, e.Reason, e.ExitCode, formatSeconds(e.Duration))
		}
	}
	return nil
}

func formatSeconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Second).String()
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
