package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mel-hsw/longevity-research-portal/internal/bootstrap"
	"github.com/mel-hsw/longevity-research-portal/internal/config"
	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

const batchSize = 64

// ingest loads pre-chunked corpus records from a JSONL file into the
// configured index backend. Each line is one StoredChunk; embeddings
// are computed here.
func main() {
	_ = godotenv.Load()
	chunksPath := flag.String("chunks", "data/chunks.jsonl", "pre-chunked corpus JSONL path")
	flag.Parse()

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	file, err := os.Open(*chunksPath)
	if err != nil {
		log.Fatalf("open chunks file: %v", err)
	}
	defer file.Close()

	start := time.Now()
	total := 0
	batch := make([]*domain.StoredChunk, 0, batchSize)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk domain.StoredChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			log.Fatalf("parse chunk line %d: %v", total+1, err)
		}
		if _, ok := domain.ParseChunkID(chunk.ChunkID); !ok {
			log.Fatalf("chunk line %d: malformed chunk id %q", total+1, chunk.ChunkID)
		}
		batch = append(batch, &chunk)
		total++

		if len(batch) == batchSize {
			if err := indexBatch(ctx, app, batch); err != nil {
				log.Fatalf("index batch ending at chunk %d: %v", total, err)
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read chunks file: %v", err)
	}
	if len(batch) > 0 {
		if err := indexBatch(ctx, app, batch); err != nil {
			log.Fatalf("index final batch: %v", err)
		}
	}

	app.Logger.Info("ingest_done", "chunks", total, "duration", time.Since(start).String())
}

func indexBatch(ctx context.Context, app *bootstrap.App, batch []*domain.StoredChunk) error {
	vectors := make([][]float32, 0, len(batch))
	for _, chunk := range batch {
		vector, err := app.Embedder.EmbedQuery(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", chunk.ChunkID, err)
		}
		vectors = append(vectors, vector)
	}
	return app.Indexer.IndexChunks(ctx, batch, vectors)
}
