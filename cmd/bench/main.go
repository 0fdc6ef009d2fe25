package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/silo"
	"github.com/aretw0/silo/pkg/core"
)

func main() {
	count := flag.Int("count", 1000, "Number of documents to generate")
	keep := flag.Bool("keep", false, "Keep the benchmark stores after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "silo_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	stores := []string{
		"memory://",
		"sqlite://" + filepath.Join(benchDir, "bench.db"),
		"dir://" + filepath.Join(benchDir, "json"),
		"dir://" + filepath.Join(benchDir, "yaml") + "?format=yaml",
	}

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d documents):\n", *count)
	for _, uri := range stores {
		res, err := run(uri, *count, logger)
		if err != nil {
			panic(fmt.Errorf("%s: %w", uri, err))
		}
		fmt.Printf("  %s\n", uri)
		fmt.Printf("    BatchCreate: %v\n", res.create)
		fmt.Printf("    Update:      %v\n", res.update)
		fmt.Printf("    Find:        %v (Items: %d)\n", res.find, res.items)
	}
	fmt.Printf("--------------------------------------------------\n")
}

type result struct {
	create, update, find time.Duration
	items                int
}

func run(uri string, count int, logger *slog.Logger) (result, error) {
	var res result
	repo, err := silo.Open(uri, silo.Config{
		Collection:        "notes",
		ID:                "id",
		TimestampOnCreate: []any{"meta.created"},
		TimestampOnUpdate: []any{"meta.updated"},
	}, silo.WithLogger(logger))
	if err != nil {
		return res, err
	}
	defer repo.Close()

	ctx := context.Background()
	models := make([]core.Document, count)
	for i := range models {
		models[i] = core.Document{
			"id":    fmt.Sprintf("note_%d", i),
			"title": fmt.Sprintf("Note %d", i),
			"tags":  []any{"benchmark", "test"},
		}
	}

	start := time.Now()
	created, err := repo.BatchCreate(ctx, models)
	if err != nil {
		return res, err
	}
	res.create = time.Since(start)

	start = time.Now()
	for _, doc := range created {
		doc["title"] = doc["title"].(string) + " (edited)"
		doc["tags"] = []any{"benchmark"}
		if _, err := repo.Update(ctx, doc); err != nil {
			return res, err
		}
	}
	res.update = time.Since(start)

	start = time.Now()
	cur, err := repo.FindMatch(ctx, core.Filter{"tags": "benchmark"})
	if err != nil {
		return res, err
	}
	docs, err := core.All(ctx, cur)
	if err != nil {
		return res, err
	}
	res.find = time.Since(start)
	res.items = len(docs)
	return res, nil
}
