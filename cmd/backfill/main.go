// backfill enqueues River embedding jobs for documents read from a JSONL
// file, one {"id", "text", "metadata"} object per line. Run this for bulk
// loads when the API server is not the ingest path; workers in the API
// process the jobs.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/service"
	"github.com/doclens/engine/pkg/database"
)

const (
	insertBatchSize = 500
	exitSuccess     = 0
	exitFailure     = 1
)

// document is one JSONL input line.
type document struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Metadata models.Metadata `json:"metadata,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	collection := flag.String("collection", "", "target collection name (required)")
	file := flag.String("file", "-", "JSONL input file, \"-\" for stdin")
	flag.Parse()

	if *collection == "" {
		slog.Error("-collection is required")

		return exitFailure
	}

	// Load .env for consistency with the main API server (godotenv.Load() there).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")

		return exitFailure
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, databaseURL, database.WithVectorTypes())
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	// Insert-only client: no queues or workers, the API server runs those.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)

		return exitFailure
	}

	input := os.Stdin

	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			slog.Error("Failed to open input file", "error", err)

			return exitFailure
		}
		defer f.Close()

		input = f
	}

	enqueued, err := enqueueAll(ctx, riverClient, *collection, input)
	if err != nil {
		slog.Error("Backfill failed", "error", err)

		return exitFailure
	}

	slog.Info("Backfill complete", "collection", *collection, "enqueued", enqueued)

	fmt.Printf("Enqueued %d embedding job(s).\n", enqueued)

	return exitSuccess
}

// enqueueAll reads JSONL documents and inserts embedding jobs in batches.
// Duplicate (collection, id) pairs already queued are skipped by River's
// unique job handling rather than reported as errors.
func enqueueAll(ctx context.Context, client *river.Client[pgx.Tx], collection string, input *os.File) (int, error) {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		batch    []river.InsertManyParams
		enqueued int
		line     int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		results, err := client.InsertMany(ctx, batch)
		if err != nil {
			return fmt.Errorf("insert jobs: %w", err)
		}

		enqueued += len(results)
		batch = batch[:0]

		return nil
	}

	for scanner.Scan() {
		line++

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var doc document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return enqueued, fmt.Errorf("line %d: %w", line, err)
		}

		if doc.ID == "" || doc.Text == "" {
			return enqueued, fmt.Errorf("line %d: id and text are required", line)
		}

		if err := doc.Metadata.Validate(); err != nil {
			return enqueued, fmt.Errorf("line %d: %w", line, err)
		}

		batch = append(batch, river.InsertManyParams{
			Args: service.ObjectEmbeddingArgs{
				Collection: collection,
				ObjectID:   doc.ID,
				Text:       doc.Text,
				Metadata:   doc.Metadata,
			},
			InsertOpts: &river.InsertOpts{Queue: service.EmbeddingsQueueName},
		})

		if len(batch) >= insertBatchSize {
			if err := flush(); err != nil {
				return enqueued, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return enqueued, fmt.Errorf("read input: %w", err)
	}

	if err := flush(); err != nil {
		return enqueued, err
	}

	return enqueued, nil
}
