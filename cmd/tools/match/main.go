package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/david/grantmatch/internal/ai"
	"github.com/david/grantmatch/internal/config"
	"github.com/david/grantmatch/internal/db"
	"github.com/david/grantmatch/internal/matcher"
)

func main() {
	flag.Parse()
	query := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(query) == "" {
		log.Fatal("usage: match <describe your project>")
	}

	cfg := config.Load()
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	provider, err := ai.New(cfg.AI)
	if err != nil {
		log.Fatalf("AI provider unavailable: %v", err)
	}

	m, err := matcher.New(db.NewStore(pool), ai.WithTimeout(provider, cfg.AI.Timeout), matcher.WithTopK(cfg.Match.TopK))
	if err != nil {
		log.Fatal(err)
	}

	resp, err := m.Match(ctx, query)
	if err != nil {
		log.Fatalf("Match failed: %v", err)
	}
	if len(resp.Grants) == 0 {
		log.Println(resp.Message)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Grant", "Organization", "Reason", "URL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for i, g := range resp.Grants {
		url := "-"
		if g.URL != nil {
			url = *g.URL
		}
		t.AppendRow(table.Row{i + 1, g.Title, g.Organization, g.Reason, url})
	}
	t.Render()
}
