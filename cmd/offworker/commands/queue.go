package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"resty.dev/v3"

	"github.com/pkexplorer/offworker/internal/cli/output"
	"github.com/pkexplorer/offworker/internal/cli/timeutil"
	"github.com/pkexplorer/offworker/pkg/config"
	"github.com/pkexplorer/offworker/pkg/replay"
)

var queueOutput string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and flush the pending write queue",
	Long: `Inspect and flush the durable write queue.

The queue holds writes made while the backend was unreachable. These
commands open the queue database directly, so the gateway must be
stopped first (the database is single-writer).`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending writes",
	Long: `List the pending writes in enqueue order.

Examples:
  # List pending writes
  offworker queue list

  # Output as JSON
  offworker queue list --output json`,
	RunE: runQueueList,
}

var queueFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay pending writes against the backend",
	Long: `Replay the pending writes against the configured backend endpoint.

Records are sent strictly in enqueue order. Each record is removed only
after the backend acknowledges it; a rejected record stays queued and
stops nothing else from draining.

Examples:
  # Flush the queue
  offworker queue flush`,
	RunE: runQueueFlush,
}

func init() {
	queueListCmd.Flags().StringVarP(&queueOutput, "output", "o", "table", "Output format (table|json|yaml)")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueFlushCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(queueOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	store, err := openQueueStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, records)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, records)
	default:
		if len(records) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}
		table := output.NewTableData("ID", "AGE", "BYTES", "PAYLOAD")
		for _, rec := range records {
			table.AddRow(
				rec.ID,
				timeutil.Age(rec.CreatedAt),
				strconv.Itoa(len(rec.Payload)),
				payloadPreview(rec.Payload),
			)
		}
		return output.PrintTable(os.Stdout, table)
	}
}

// payloadPreview truncates a payload for table display.
func payloadPreview(payload []byte) string {
	const max = 60
	s := string(payload)
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func runQueueFlush(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	store, err := openQueueStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	before, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count queue: %w", err)
	}
	if before == 0 {
		fmt.Println("Queue is empty, nothing to flush")
		return nil
	}

	client := resty.New().SetTimeout(cfg.Replay.Timeout)
	defer func() { _ = client.Close() }()

	engine := replay.New(store, client, replay.Config{
		Endpoint: cfg.Replay.Endpoint,
	}, nil)
	engine.HandleSync(ctx, replay.SyncTag)

	after, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count queue: %w", err)
	}

	fmt.Printf("Replayed %d of %d pending writes to %s\n", before-after, before, cfg.Replay.Endpoint)
	if after > 0 {
		fmt.Printf("%d writes remain queued (backend rejected or unreachable)\n", after)
	}

	return nil
}
