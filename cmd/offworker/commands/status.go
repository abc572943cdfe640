package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkexplorer/offworker/internal/cli/health"
	"github.com/pkexplorer/offworker/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	statusOutput  string
	statusPidFile string
	statusPort    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long: `Display the current status of the offworker gateway.

This command checks the gateway health by calling the health endpoints
and displays registration state and pending queue depth.

Examples:
  # Check status (uses default settings)
  offworker status

  # Check status with custom gateway port
  offworker status --port 9090

  # Output as JSON
  offworker status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/offworker/offworker.pid)")
	statusCmd.Flags().IntVar(&statusPort, "port", 8090, "Gateway port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// GatewayStatus represents the gateway status information.
type GatewayStatus struct {
	Running bool   `json:"running" yaml:"running"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message string `json:"message" yaml:"message"`
	State   string `json:"state,omitempty" yaml:"state,omitempty"`
	Ready   bool   `json:"ready" yaml:"ready"`
	Pending int    `json:"pending" yaml:"pending"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := GatewayStatus{
		Running: false,
		Message: "Gateway is not running",
	}

	// Use default PID file if not specified
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if process.Signal(syscall.Signal(0)) == nil {
					status.Running = true
					status.PID = pid
					status.Message = "Gateway is running"
				}
			}
		}
	}

	// Query health endpoints regardless of PID file state; a foreground
	// run has no PID file but still answers probes.
	probeHealth(&status)

	return printStatus(format, status)
}

func probeHealth(status *GatewayStatus) {
	client := &http.Client{Timeout: 2 * time.Second}
	base := fmt.Sprintf("http://localhost:%d", statusPort)

	resp, err := client.Get(base + "/-/health")
	if err != nil {
		return
	}
	defer func() { _ = resp.Body.Close() }()

	var live health.Response
	if err := json.NewDecoder(resp.Body).Decode(&live); err != nil {
		return
	}
	status.Running = true
	status.State = live.Data.State
	status.Message = "Gateway is running"

	readyResp, err := client.Get(base + "/-/health/ready")
	if err != nil {
		return
	}
	defer func() { _ = readyResp.Body.Close() }()

	var ready health.Response
	if err := json.NewDecoder(readyResp.Body).Decode(&ready); err != nil {
		return
	}
	if readyResp.StatusCode == http.StatusOK && ready.Healthy() {
		status.Ready = true
		status.State = ready.Data.State
		status.Pending = ready.Data.Pending
	} else if ready.Error != "" {
		status.Message = ready.Error
	}
}

func printStatus(format output.Format, status GatewayStatus) error {
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		pairs := [][2]string{
			{"Running", strconv.FormatBool(status.Running)},
		}
		if status.PID != 0 {
			pairs = append(pairs, [2]string{"PID", strconv.Itoa(status.PID)})
		}
		if status.State != "" {
			pairs = append(pairs, [2]string{"State", status.State})
		}
		pairs = append(pairs,
			[2]string{"Ready", strconv.FormatBool(status.Ready)},
			[2]string{"Pending writes", strconv.Itoa(status.Pending)},
			[2]string{"Message", status.Message},
		)
		return output.SimpleTable(os.Stdout, pairs)
	}
}
