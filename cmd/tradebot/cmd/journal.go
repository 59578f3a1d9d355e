package cmd

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query and archive the trade journal",
	Long: `Query journal records from the SQL journal and archive rotated CSV files.

Subcommands:
  orders  - List orders placed, failed or refused on a day
  day     - Summarize a day: signals, orders by status, realized P/L
  trade   - Show a closed trade as an Org-mode diary entry
  archive - Compress rotated CSV files older than the retention window

Examples:
  tradebot journal orders 2024-01-15
  tradebot journal day
  tradebot journal trade 50123456 --db journal.sqlite
  tradebot journal archive`,
}

var journalOrdersCmd = &cobra.Command{
	Use:   "orders [YYYY-MM-DD]",
	Short: "List orders of a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalOrders,
}

var journalDayCmd = &cobra.Command{
	Use:   "day [YYYY-MM-DD]",
	Short: "Summarize a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalDay,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <ticket>",
	Short: "Show a closed trade by its position ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalArchiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Compress old rotated CSV journal files with xz",
	Args:  cobra.NoArgs,
	RunE:  runJournalArchive,
}

var (
	journalDBPath string
	archiveDays   int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalOrdersCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalArchiveCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to a SQLite journal (default from config)")
	journalArchiveCmd.Flags().IntVar(&archiveDays, "days", 0, "archive files older than this many days (default journal.archive_after_days)")
}

func openJournalDB() (*journal.SQLJournal, error) {
	jc := config.Default().Journal
	if journalDBPath == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return nil, err
		}
		jc = cfg.Journal
	}
	j, err := openQueryJournal(jc, journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalOrders(cmd *cobra.Command, args []string) error {
	start, end, err := dayBounds(time.UTC, dayArg(args))
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListOrders(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query orders: %w", err)
	}
	printOrders(cmd.OutOrStdout(), recs)
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	start, _, err := dayBounds(time.UTC, dayArg(args))
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	s, err := j.DaySummary(cmd.Context(), start)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	printSummary(cmd.OutOrStdout(), s)
	return nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalArchive(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Journal.Type != "csv" {
		return fmt.Errorf("archive: journal type is %s, not csv", cfg.Journal.Type)
	}
	days := archiveDays
	if days <= 0 {
		days = cfg.Journal.ArchiveAfterDays
	}
	if days <= 0 {
		return fmt.Errorf("archive: no retention window set")
	}

	files, err := journal.Archive(cfg.Journal.Dir, time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, f := range files {
		fmt.Fprintf(out, "✓ %s\n", f)
	}
	fmt.Fprintf(out, "%d file(s) archived\n", len(files))
	return nil
}

func dayArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return time.Now().UTC().Format("2006-01-02")
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}

func printOrders(w io.Writer, recs []journal.OrderRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no orders")
		return
	}
	fmt.Fprintf(w, "%-20s %-8s %-5s %7s %7s %-8s %10s %7s  %s\n", "TIME", "SYMBOL", "SIDE", "LOTS", "FILLED", "STATUS", "TICKET", "CODE", "REASON")
	for _, r := range recs {
		fmt.Fprintf(w, "%-20s %-8s %-5s %7.2f %7.2f %-8s %10d %7d  %s\n",
			r.Time.UTC().Format("2006-01-02 15:04:05"), r.Symbol, r.Side, r.Lots, r.FilledLots, r.Status, r.Ticket, r.ResultCode, r.Reason)
	}
}

func printSummary(w io.Writer, s journal.Summary) {
	fmt.Fprintf(w, "Day:        %s\n", s.Day.Format("2006-01-02"))
	fmt.Fprintf(w, "Signals:    %d\n", s.Signals)

	statuses := make([]string, 0, len(s.Orders))
	for k := range s.Orders {
		statuses = append(statuses, k)
	}
	sort.Strings(statuses)
	fmt.Fprintln(w, "Orders:")
	for _, k := range statuses {
		fmt.Fprintf(w, "  %-8s  %d\n", k, s.Orders[k])
	}

	fmt.Fprintf(w, "Trades:     %d\n", s.Trades)
	fmt.Fprintf(w, "Realized:   %+.2f\n", s.RealizedPL)
	fmt.Fprintf(w, "Gross P/L:  %.2f / -%.2f\n", s.GrossProfit, s.GrossLoss)
	if math.IsInf(s.ProfitFactor, 1) {
		fmt.Fprintln(w, "PF:         inf")
	} else {
		fmt.Fprintf(w, "PF:         %.2f\n", s.ProfitFactor)
	}
}
