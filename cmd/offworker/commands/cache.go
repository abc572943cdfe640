package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pkexplorer/offworker/internal/cli/output"
	"github.com/pkexplorer/offworker/internal/cli/prompt"
	"github.com/pkexplorer/offworker/pkg/config"
)

var (
	cacheOutput   string
	cachePurgeYes bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and purge the cache namespaces",
	Long: `Inspect and purge the durable cache namespaces.

These commands open the cache database directly, so the gateway must be
stopped first (the database is single-writer).`,
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List cache namespaces",
	Long: `List the cache namespaces and their entry counts.

Examples:
  # List namespaces
  offworker cache ls

  # Output as JSON
  offworker cache ls --output json`,
	RunE: runCacheLs,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cache namespace",
	Long: `Delete every cache namespace and all cached entries.

Precached assets are fetched again the next time the gateway starts.

Examples:
  # Purge with confirmation prompt
  offworker cache purge

  # Purge without prompting
  offworker cache purge --yes`,
	RunE: runCachePurge,
}

func init() {
	cacheLsCmd.Flags().StringVarP(&cacheOutput, "output", "o", "table", "Output format (table|json|yaml)")
	cachePurgeCmd.Flags().BoolVarP(&cachePurgeYes, "yes", "y", false, "Skip confirmation prompt")

	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}

// namespaceInfo is one row of cache ls output.
type namespaceInfo struct {
	Name    string `json:"name" yaml:"name"`
	Entries int    `json:"entries" yaml:"entries"`
}

func runCacheLs(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(cacheOutput)
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

	caches, err := openCacheStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open cache store: %w", err)
	}
	defer func() { _ = caches.Close() }()

	names, err := caches.Names()
	if err != nil {
		return fmt.Errorf("failed to list namespaces: %w", err)
	}

	ctx := context.Background()
	infos := make([]namespaceInfo, 0, len(names))
	for _, name := range names {
		ns, err := caches.Open(name)
		if err != nil {
			return fmt.Errorf("failed to open namespace %s: %w", name, err)
		}
		count, err := ns.Len(ctx)
		if err != nil {
			return fmt.Errorf("failed to count namespace %s: %w", name, err)
		}
		infos = append(infos, namespaceInfo{Name: name, Entries: count})
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, infos)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, infos)
	default:
		if len(infos) == 0 {
			fmt.Println("No cache namespaces")
			return nil
		}
		table := output.NewTableData("NAMESPACE", "ENTRIES")
		for _, info := range infos {
			table.AddRow(info.Name, strconv.Itoa(info.Entries))
		}
		return output.PrintTable(os.Stdout, table)
	}
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	confirmed, err := prompt.ConfirmWithForce("Delete every cache namespace?", cachePurgeYes)
	if err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			fmt.Println("Aborted")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted")
		return nil
	}

	caches, err := openCacheStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open cache store: %w", err)
	}
	defer func() { _ = caches.Close() }()

	if err := caches.DropAll(); err != nil {
		return fmt.Errorf("failed to purge caches: %w", err)
	}

	fmt.Println("All cache namespaces deleted")
	return nil
}
