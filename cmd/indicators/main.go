// cmd/indicators prints stored price history with indicator columns.
//
// Usage:
//
//	go run ./cmd/indicators --days=3 --hourly --indicators=MA:24,RSI:14
//	go run ./cmd/indicators --days=1 --json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"btcpulse/config"
	"btcpulse/internal/dashboard"
	"btcpulse/internal/indicator"
	"btcpulse/internal/logger"
	"btcpulse/internal/service"
)

func main() {
	days := flag.Int("days", 1, "Lookback window in days")
	hourly := flag.Bool("hourly", false, "Use hourly buckets instead of raw ticks")
	specStr := flag.String("indicators", "", "Indicator specs, e.g. MA:24,RSI:14,BB:20:2,MACD:12:26:9 (default INDICATORS_SPECS)")
	asJSON := flag.Bool("json", false, "Print the table as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal("config load failed", err)
	}
	level, _ := cfg.LogLevel()
	log, sync := logger.Init("indicators", level, cfg.Production())
	defer sync()

	if *specStr == "" {
		*specStr = cfg.Indicators.Specs
	}
	specs, err := indicator.ParseSpecs(*specStr)
	if err != nil {
		fatal("invalid --indicators", err)
	}

	ctx := context.Background()
	store, closeStore, err := service.OpenStore(ctx, cfg, nil)
	if err != nil {
		fatal("open store failed", err)
	}
	defer closeStore()

	engine, err := indicator.NewEngine(specs)
	if err != nil {
		fatal("invalid --indicators", err)
	}
	tbl, err := dashboard.New(store, engine, log).Chart(ctx, *days, *hourly, nil)
	if err != nil {
		closeStore()
		fatal("load series failed", err)
	}

	if *asJSON {
		json.NewEncoder(os.Stdout).Encode(tbl)
		return
	}
	printTable(tbl)
}

func printTable(tbl *indicator.Table) {
	names := tbl.Names()
	cols := make([]indicator.Column, len(names))
	for i, n := range names {
		cols[i], _ = tbl.Column(n)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(w, "ts\tprice\tvolume\t")
	for _, n := range names {
		fmt.Fprint(w, n, "\t")
	}
	fmt.Fprintln(w)
	for i, p := range tbl.Series {
		fmt.Fprintf(w, "%s\t%s\t%s\t", p.TS.UTC().Format(time.RFC3339), num(p.Price), num(p.Volume))
		for _, c := range cols {
			fmt.Fprint(w, num(c[i]), "\t")
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

func num(v float64) string {
	if indicator.Missing(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func fatal(msg string, err error) {
	os.Stderr.WriteString(msg + ": " + err.Error() + "\n")
	os.Exit(1)
}
