package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeovahfialho/lntools/internal/config"
	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/jeovahfialho/lntools/internal/ingestion"
	"github.com/jeovahfialho/lntools/internal/storage/cache"
	"github.com/jeovahfialho/lntools/internal/storage/postgres"
	"github.com/jeovahfialho/lntools/pkg/logger"
)

// readFlags are the selection flags shared by resolve, read and load.
type readFlags struct {
	source       string
	start        string
	end          string
	dates        []string
	all          bool
	pattern      string
	format       string
	workers      int
	timeout      time.Duration
	businessDays bool
	delimiter    string
	sortKey      string
	dateColumn   string
}

func (f *readFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.source, "source", "", "Named source from the sources file")
	fl.StringVarP(&f.start, "start", "s", "", "First date (YYYY-MM-DD, YYYYMMDD or today)")
	fl.StringVarP(&f.end, "end", "e", "", "Last date, defaults to today")
	fl.StringSliceVar(&f.dates, "dates", nil, "Explicit trading dates, comma separated")
	fl.BoolVar(&f.all, "all", false, "Read every file matching the pattern, ignoring dates")
	fl.StringVarP(&f.pattern, "pattern", "p", "", "File pattern with a {date} placeholder")
	fl.StringVarP(&f.format, "format", "f", "", "strftime date format, e.g. %Y%m%d")
	fl.IntVarP(&f.workers, "workers", "w", 0, "Parallel readers")
	fl.DurationVar(&f.timeout, "timeout", 0, "Overall read timeout, e.g. 30s")
	fl.BoolVar(&f.businessDays, "business-days", false, "Only weekdays outside the holiday list")
	fl.StringVar(&f.delimiter, "delimiter", "", "CSV delimiter")
	fl.StringVar(&f.sortKey, "sort", "", "Column to sort the result by")
	fl.StringVar(&f.dateColumn, "date-column", "", "Add the file date as a column")
}

func main() {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "lntools",
		Short: "Date-partitioned directory reader",
		Long: `Reads directories of per-day data files (CSV, Excel, Parquet, Arrow)
into a single table. Missing days are reported, not fatal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := config.Load().LogLevel
			if verbose {
				level = "debug"
			}
			return logger.Init(level, true)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	var resolveFlags readFlags
	resolveCmd := &cobra.Command{
		Use:   "resolve [dir]",
		Short: "Show the files a read would open",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveFiles(cmd, &resolveFlags, args)
		},
	}
	resolveFlags.register(resolveCmd)

	var readCmdFlags readFlags
	var out string
	var head int
	readCmd := &cobra.Command{
		Use:   "read [dir]",
		Short: "Read a date range into one table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return readFiles(cmd, &readCmdFlags, args, out, head)
		},
	}
	readCmdFlags.register(readCmd)
	readCmd.Flags().StringVarP(&out, "out", "o", "", "Write the result as CSV to a file, - for stdout")
	readCmd.Flags().IntVar(&head, "head", 10, "Rows to preview when --out is not set")

	var listPattern string
	listCmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "List files matching the pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listFiles(args[0], listPattern)
		},
	}
	listCmd.Flags().StringVarP(&listPattern, "pattern", "p", "", "File pattern with a {date} placeholder")

	var loadCmdFlags readFlags
	var table string
	loadCmd := &cobra.Command{
		Use:   "load [dir]",
		Short: "Read a date range and copy it into PostgreSQL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return loadFiles(cmd, &loadCmdFlags, args, table)
		},
	}
	loadCmdFlags.register(loadCmd)
	loadCmd.Flags().StringVarP(&table, "table", "t", "", "Target table, optionally schema qualified")
	_ = loadCmd.MarkFlagRequired("table")

	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "List the named sources in SOURCES_FILE",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSources()
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check PostgreSQL and Redis connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkHealth()
		},
	}

	rootCmd.AddCommand(resolveCmd, readCmd, listCmd, loadCmd, sourcesCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDirectory builds the directory and request from flags, layering a named
// source over the environment defaults when --source is given.
func openDirectory(cmd *cobra.Command, f *readFlags, args []string) (*ingestion.Directory, ingestion.ReadRequest, error) {
	cfg := config.Load()

	var (
		path     string
		opts     ingestion.Options
		holidays []string
		err      error
	)

	if f.source != "" {
		if cfg.SourcesFile == "" {
			return nil, ingestion.ReadRequest{}, fmt.Errorf("--source needs SOURCES_FILE")
		}
		sources, err := config.LoadSources(cfg.SourcesFile)
		if err != nil {
			return nil, ingestion.ReadRequest{}, err
		}
		src, err := sources.Lookup(f.source)
		if err != nil {
			return nil, ingestion.ReadRequest{}, err
		}
		holidays = sources.Holidays
		path = src.Path
		if opts, err = cfg.SourceOptions(src, holidays); err != nil {
			return nil, ingestion.ReadRequest{}, err
		}
	} else {
		if opts, err = cfg.DirectoryOptions(); err != nil {
			return nil, ingestion.ReadRequest{}, err
		}
		path = cfg.DataDir
	}

	if len(args) > 0 {
		path = args[0]
	}
	opts.Logger = logger.Named("directory")

	if f.delimiter != "" {
		cfg.CSVDelimiter = f.delimiter
		delim, err := cfg.Delimiter()
		if err != nil {
			return nil, ingestion.ReadRequest{}, err
		}
		opts.Reader = ingestion.NewExtensionReader(ingestion.ReaderOptions{Delimiter: delim, Workers: 4, Location: opts.Location})
	}

	dir, err := ingestion.NewDirectory(path, opts)
	if err != nil {
		return nil, ingestion.ReadRequest{}, err
	}

	req := ingestion.ReadRequest{
		Start:      optional(f.start),
		End:        optional(f.end),
		AllFiles:   f.all,
		Pattern:    f.pattern,
		DateFormat: f.format,
		Workers:    f.workers,
		Timeout:    f.timeout,
		SortKey:    f.sortKey,
		DateColumn: f.dateColumn,
	}
	if cmd.Flags().Changed("dates") {
		req.Dates = toAny(f.dates)
	}
	if f.businessDays {
		cal, err := cfg.BusinessCalendar(holidays...)
		if err != nil {
			return nil, ingestion.ReadRequest{}, err
		}
		req.Calendar = cal
	}

	return dir, req, nil
}

func resolveFiles(cmd *cobra.Command, f *readFlags, args []string) error {
	dir, req, err := openDirectory(cmd, f, args)
	if err != nil {
		return err
	}

	candidates, err := dir.Candidates(req)
	if err != nil {
		return err
	}

	fmt.Printf("📂 %s: %d candidate(s)\n\n", dir.Path(), len(candidates))

	present := 0
	for _, c := range candidates {
		mark := "❌"
		if info, err := os.Stat(c.Path); err == nil && !info.IsDir() {
			mark = "✅"
			present++
		}
		date := "-"
		if !c.Date.IsZero() {
			date = c.Date.Format("2006-01-02")
		}
		fmt.Printf("  %s %s  %s\n", mark, date, filepath.Base(c.Path))
	}

	fmt.Printf("\n%d present, %d missing\n", present, len(candidates)-present)
	return nil
}

func readFiles(cmd *cobra.Command, f *readFlags, args []string, out string, head int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, req, err := openDirectory(cmd, f, args)
	if err != nil {
		return err
	}

	report, err := dir.Read(ctx, req)
	if err != nil {
		return err
	}

	printSummary(os.Stderr, report)

	switch out {
	case "":
		return printPreview(os.Stdout, report.Frame, head)
	case "-":
		return ingestion.WriteCSV(os.Stdout, report.Frame)
	default:
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer file.Close()

		if err := ingestion.WriteCSV(file, report.Frame); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "💾 Wrote %s rows to %s\n", formatNumber(int64(report.Frame.Len())), out)
		return nil
	}
}

func printSummary(w io.Writer, report *ingestion.Report) {
	fmt.Fprintf(w, "📊 %d candidate(s), %d read, %d empty, %s rows in %s\n",
		report.Candidates, report.FilesRead, report.Empty,
		formatNumber(int64(report.Frame.Len())), report.Elapsed.Round(time.Millisecond))

	for _, p := range report.Problems {
		fmt.Fprintf(w, "  ⚠️  %-12s %s: %s\n", p.Kind, filepath.Base(p.Path), p.Reason)
	}
}

// printPreview renders the first rows as an aligned table.
func printPreview(w io.Writer, frame *domain.Frame, head int) error {
	if frame.Width() == 0 {
		fmt.Fprintln(w, "(no data)")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(frame.Names(), "\t"))

	preview := frame.Head(head)
	cells := make([]string, frame.Width())
	for _, row := range preview.Rows {
		for i, v := range row {
			cells[i] = ingestion.FormatCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if rest := frame.Len() - preview.Len(); rest > 0 {
		fmt.Fprintf(w, "... %s more row(s)\n", formatNumber(int64(rest)))
	}
	return nil
}

func listFiles(dataDir, pattern string) error {
	if pattern == "" {
		pattern = config.Load().FilePattern
	}

	files, err := ingestion.ListFiles(dataDir, pattern)
	if err != nil {
		return err
	}

	fmt.Printf("📂 Files in %s matching %s\n\n", dataDir, pattern)
	if len(files) == 0 {
		fmt.Println("❌ No files found")
		return nil
	}

	var total int64
	for _, file := range files {
		info, err := os.Stat(file.Path)
		if err != nil {
			continue
		}
		total += info.Size()
		fmt.Printf("  - %-30s %10s\n", filepath.Base(file.Path), formatBytes(info.Size()))
	}

	fmt.Printf("\n💾 %d file(s), %s\n", len(files), formatBytes(total))
	return nil
}

func loadFiles(cmd *cobra.Command, f *readFlags, args []string, table string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	dir, req, err := openDirectory(cmd, f, args)
	if err != nil {
		return err
	}

	db, err := postgres.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	report, err := dir.Read(ctx, req)
	if err != nil {
		return err
	}
	printSummary(os.Stderr, report)

	if report.Frame.IsEmpty() {
		fmt.Println("❌ Nothing to load")
		return nil
	}

	fmt.Printf("📥 Loading %s rows into %s...\n", formatNumber(int64(report.Frame.Len())), table)

	loader := ingestion.NewBulkLoader(db.Pool(), cfg.BatchSize)
	rows, err := loader.LoadFrame(ctx, table, report.Frame)
	if err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}

	count, err := db.CountRows(ctx, table)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Loaded %s rows, %s now holds %s\n", formatNumber(rows), table, formatNumber(count))
	return nil
}

func listSources() error {
	cfg := config.Load()
	if cfg.SourcesFile == "" {
		return fmt.Errorf("SOURCES_FILE is not set")
	}

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPATH\tPATTERN\tDATE FORMAT")
	for _, name := range sources.Names() {
		src, _ := sources.Lookup(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, src.Path, orDefault(src.Pattern, cfg.FilePattern), orDefault(src.DateFormat, cfg.DateFormat))
	}
	return tw.Flush()
}

func checkHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := config.Load()

	fmt.Println("🏥 Checking dependencies...")
	fmt.Println()

	fmt.Print("PostgreSQL: ")
	db, err := postgres.NewDB(cfg)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
	} else {
		defer db.Close()
		if err := db.HealthCheck(ctx); err != nil {
			fmt.Printf("❌ %v\n", err)
		} else {
			stats := db.Stats()
			fmt.Printf("✅ OK (%d/%d connections, %d idle)\n",
				stats.TotalConns(), stats.MaxConns(), stats.IdleConns())
		}
	}

	fmt.Print("Redis: ")
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
	} else {
		defer redisCache.Close()
		if err := redisCache.HealthCheck(ctx); err != nil {
			fmt.Printf("❌ %v\n", err)
		} else {
			fmt.Println("✅ OK")
		}
	}

	fmt.Print("Data dir: ")
	if info, err := os.Stat(cfg.DataDir); err != nil || !info.IsDir() {
		fmt.Printf("❌ %s is not a directory\n", cfg.DataDir)
	} else {
		fmt.Printf("✅ %s\n", cfg.DataDir)
	}

	return nil
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatNumber groups digits by thousands.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	sign := ""
	if n < 0 {
		sign, str = "-", str[1:]
	}

	var b strings.Builder
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(char)
	}
	return sign + b.String()
}
