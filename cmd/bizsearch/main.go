package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joelkehle/bizfinder/internal/business"
	"github.com/joelkehle/bizfinder/internal/config"
	"github.com/joelkehle/bizfinder/internal/export"
	"github.com/joelkehle/bizfinder/internal/lookup"
	"github.com/joelkehle/bizfinder/internal/session"
)

func main() {
	cfg := config.FromEnv()
	var (
		industry  = flag.String("industry", "", "Industry or business type to search for")
		location  = flag.String("location", "", "Main location")
		more      = flag.Int("more", 0, "Number of load-more rounds after the first search")
		subAreas  = flag.Bool("subareas", false, "Print sub-area suggestions for -location and exit")
		save      = flag.Bool("save", true, "Save the result set to history")
		sortBy    = flag.String("sort", string(business.SortRatingDesc), "Output order: rating_desc, reviews_desc or name_asc")
		xlsxOut   = flag.String("out", "", "Write an xlsx export to this file or directory")
		reportOut = flag.String("report", "", "Write a markdown report to this file")
		jsonOut   = flag.Bool("json", false, "Print results as JSON instead of a table")
		storeKind = flag.String("store", cfg.Store, "State store: memory, file or sqlite")
		stateFile = flag.String("state-file", cfg.StateFile, "JSON state file for -store=file")
		dbPath    = flag.String("db", cfg.DBPath, "SQLite database for -store=sqlite")
		provider  = flag.String("provider", cfg.Provider, "LLM provider: gemini or anthropic")
	)
	flag.Parse()
	cfg.Store, cfg.StateFile, cfg.DBPath, cfg.Provider = *storeKind, *stateFile, *dbPath, *provider

	order, err := business.ParseSortOption(*sortBy)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gen, err := cfg.NewGenerator(ctx)
	if err != nil {
		log.Fatal(err)
	}
	svc := lookup.NewService(gen, lookup.Config{DescriptionLanguage: cfg.DescriptionLanguage})

	if *subAreas {
		if *location == "" {
			log.Fatal("missing required -location")
		}
		for _, area := range svc.ListSubAreas(ctx, *location) {
			fmt.Println(area)
		}
		return
	}

	st, closer, err := cfg.OpenStore()
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store, err)
	}
	defer closer.Close()
	ctrl, err := cfg.NewController(svc, st)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(ctx, ctrl, *industry, *location, *more); err != nil {
		log.Fatal(err)
	}
	if *save {
		if item, ok := ctrl.SaveSession(); ok {
			log.Printf("saved history id=%s count=%d", item.ID, item.Count)
		}
	}

	snap := ctrl.Snapshot()
	records := business.Sorted(snap.Results, order)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			log.Fatal(err)
		}
	} else {
		printTable(records)
	}

	if *xlsxOut != "" {
		if err := writeXLSX(*xlsxOut, snap, records); err != nil {
			log.Fatalf("write xlsx: %v", err)
		}
	}
	if *reportOut != "" {
		md := export.BuildReportMarkdown(export.ReportInput{
			Industry:    snap.QueryIndustry,
			Location:    snap.QueryLocation,
			Records:     snap.Results,
			GeneratedAt: time.Now(),
		})
		if err := os.WriteFile(*reportOut, []byte(md), 0o644); err != nil {
			log.Fatalf("write report: %v", err)
		}
	}
}

func run(ctx context.Context, ctrl *session.Controller, industry, location string, rounds int) error {
	if err := ctrl.Search(ctx, industry, location); err != nil {
		return err
	}
	log.Printf("found %d businesses for %q in %q", len(ctrl.Snapshot().Results), industry, location)
	for i := 0; i < rounds; i++ {
		res, err := ctrl.LoadMore(ctx)
		if errors.Is(err, session.ErrNotActive) {
			return nil
		}
		if err != nil {
			return err
		}
		log.Printf("round %d: added=%d total=%d", i+1, res.Added, res.Total)
		if res.Notice != session.NoticeNone {
			log.Print(res.Notice.Message())
		}
		if res.Notice == session.NoticeExhausted {
			break
		}
	}
	return nil
}

func printTable(records []business.Record) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tRATING\tREVIEWS\tPHONE\tADDRESS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%.1f\t%d\t%s\t%s\n", r.Name, r.Rating, r.ReviewCount, r.Phone, r.Address)
	}
	_ = tw.Flush()
}

func writeXLSX(out string, snap session.Session, records []business.Record) error {
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		out = filepath.Join(out, export.FileName(snap.QueryIndustry, snap.QueryLocation))
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, records); err != nil {
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s", out)
	return nil
}
