package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bl4ck0w1/shadowscan/internal/storage"
	"github.com/bl4ck0w1/shadowscan/pkg/models"
	"github.com/bl4ck0w1/shadowscan/pkg/utils"
)

func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "List stored scan snapshots",
		Long: `List the JSON snapshots kept in the history directory (output.history_dir),
newest first. Matching fingerprints mean identical result sets.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
	cmd.Flags().String("history-dir", "", "History directory (defaults to output.history_dir)")
	cmd.Flags().Bool("stats", false, "Show history directory usage instead of the scan list")
	_ = viper.BindPFlag("output.history_dir", cmd.Flags().Lookup("history-dir"))
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir := viper.GetString("output.history_dir")
	if dir == "" {
		return fmt.Errorf("no history directory configured (set output.history_dir or --history-dir)")
	}
	ls, err := storage.NewLocalStorage(dir, false, 0, currentLogger().Logger)
	if err != nil {
		return err
	}

	if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
		stats, err := ls.GetStorageStats()
		if err != nil {
			return err
		}
		printStorageStats(cmd.OutOrStdout(), dir, stats)
		return nil
	}

	domain := ""
	if len(args) == 1 {
		if domain, err = utils.NormalizeDomain(args[0]); err != nil {
			return err
		}
	}
	results, err := ls.ListResults(domain)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	printHistory(cmd.OutOrStdout(), results)
	return nil
}

func printHistory(out io.Writer, results []*models.ScanResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No stored scans.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tDOMAIN\tFOUND\tTESTED\tREQUESTS\tFINGERPRINT")
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			s.StartTime.Format(time.DateTime), s.Domain, s.Found, s.Total, s.TotalRequests, s.Fingerprint)
	}
	_ = w.Flush()
}

func printStorageStats(out io.Writer, dir string, stats map[string]interface{}) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Directory:\t%s\n", dir)
	fmt.Fprintf(w, "Snapshots:\t%v\n", stats["result_files"])
	fmt.Fprintf(w, "Size:\t%v\n", stats["total_size_human"])
	_ = w.Flush()
}
