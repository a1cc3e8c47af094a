// ingest-docs reads documents from a CSV file and submits them to a running
// engine through the public API. Expected columns: id, text, and optionally a
// JSON metadata column.
//
// Usage:
//
//	go run ./scripts/ingest-docs -file docs.csv -collection docs \
//	  -api-url http://localhost:8080 -api-key YOUR_API_KEY
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/doclens/engine/pkg/doclens"
)

// config holds the CLI configuration.
type config struct {
	filePath   string
	collection string
	apiBaseURL string
	apiKey     string
	delayMS    int
	dryRun     bool
}

// stats tracks ingestion counters.
type stats struct {
	totalRows    int
	skippedEmpty int
	submitted    int
	failed       int
}

// CSV column indices (0-based).
const (
	colID       = 0
	colText     = 1
	colMetadata = 2
	minColumns  = 2
)

func main() {
	cfg := parseFlags()

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.filePath, "file", "", "path to the CSV file (required)")
	flag.StringVar(&cfg.collection, "collection", "", "target collection (required)")
	flag.StringVar(&cfg.apiBaseURL, "api-url", "http://localhost:8080", "engine API base URL")
	flag.StringVar(&cfg.apiKey, "api-key", os.Getenv("API_KEY"), "API key (defaults to API_KEY env var)")
	flag.IntVar(&cfg.delayMS, "delay", 0, "delay between submissions in milliseconds")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "parse and validate without submitting")
	flag.Parse()

	return cfg
}

func run(cfg config) error {
	if cfg.filePath == "" || cfg.collection == "" {
		return fmt.Errorf("-file and -collection are required")
	}

	if cfg.apiKey == "" && !cfg.dryRun {
		return fmt.Errorf("-api-key (or API_KEY env var) is required")
	}

	f, err := os.Open(cfg.filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.filePath, err)
	}
	defer f.Close()

	var client *doclens.Client

	if !cfg.dryRun {
		client, err = doclens.NewClient(cfg.apiBaseURL, cfg.apiKey)
		if err != nil {
			return err
		}
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	// Skip the header row.
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	ctx := context.Background()

	var st stats

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("row %d: %w", st.totalRows+2, err)
		}

		st.totalRows++

		doc, ok, err := parseRow(row)
		if err != nil {
			return fmt.Errorf("row %d: %w", st.totalRows+1, err)
		}

		if !ok {
			st.skippedEmpty++
			continue
		}

		if cfg.dryRun {
			st.submitted++
			continue
		}

		if _, err := client.SubmitDocument(ctx, cfg.collection, doc); err != nil {
			st.failed++

			fmt.Fprintf(os.Stderr, "submit %s: %v\n", doc.ID, err)

			continue
		}

		st.submitted++

		if cfg.delayMS > 0 {
			time.Sleep(time.Duration(cfg.delayMS) * time.Millisecond)
		}
	}

	fmt.Printf("Rows: %d, submitted: %d, skipped: %d, failed: %d\n",
		st.totalRows, st.submitted, st.skippedEmpty, st.failed)

	if st.failed > 0 {
		return fmt.Errorf("%d submission(s) failed", st.failed)
	}

	return nil
}

// parseRow converts a CSV row into a document. ok is false for rows with an
// empty id or text, which are skipped rather than treated as errors.
func parseRow(row []string) (doclens.Document, bool, error) {
	if len(row) < minColumns {
		return doclens.Document{}, false, fmt.Errorf("want at least %d columns, got %d", minColumns, len(row))
	}

	doc := doclens.Document{ID: row[colID], Text: row[colText]}
	if doc.ID == "" || doc.Text == "" {
		return doclens.Document{}, false, nil
	}

	if len(row) > colMetadata && row[colMetadata] != "" {
		if err := json.Unmarshal([]byte(row[colMetadata]), &doc.Metadata); err != nil {
			return doclens.Document{}, false, fmt.Errorf("metadata: %w", err)
		}
	}

	return doc, true, nil
}
