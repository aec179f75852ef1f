package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/config"
	"github.com/david/grantmatch/internal/db"
	"github.com/david/grantmatch/internal/importer"
	"github.com/david/grantmatch/internal/matcher"
	"github.com/david/grantmatch/internal/models"
)

func main() {
	sourceID := flag.String("source", "", "Source ID to import (empty imports every source)")
	sourcesFile := flag.String("sources", "", "Optional sources YAML file replacing the embedded registry")
	withAI := flag.Bool("ai", false, "Embed and tag grants with the configured AI provider")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	opts := []importer.Option{
		importer.WithOnItem(func(g models.Grant, err error) {
			if err != nil {
				log.Printf("[import] skipped %q: %v", g.Title, err)
			}
		}),
	}
	if *sourcesFile != "" {
		reg, err := importer.LoadRegistryFile(*sourcesFile)
		if err != nil {
			log.Fatalf("Failed to load sources: %v", err)
		}
		opts = append(opts, importer.WithRegistry(reg))
	}
	if *withAI {
		provider, err := ai.New(cfg.AI)
		if err != nil {
			log.Fatalf("AI provider unavailable: %v", err)
		}
		provider = ai.WithTimeout(provider, cfg.AI.Timeout)
		rules, err := matcher.DefaultRules()
		if err != nil {
			log.Fatalf("Failed to load match rules: %v", err)
		}
		opts = append(opts, importer.WithEmbedder(provider), importer.WithTagger(provider, rules.Vocabulary()))
	}

	im, err := importer.New(db.NewStore(pool), opts...)
	if err != nil {
		log.Fatal(err)
	}

	sources := im.Sources()
	if *sourceID != "" {
		sources = []string{*sourceID}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Found", "Saved", "Errors", "Result"})

	failed := false
	for _, id := range sources {
		log.Printf("Starting import for source: %s", id)
		stats, err := im.Run(ctx, id)
		result := "ok"
		if err != nil {
			result = err.Error()
			failed = true
		}
		t.AppendRow(table.Row{id, stats.Found, stats.Saved, stats.Errors, result})
	}
	t.Render()

	if failed {
		os.Exit(1)
	}
}
