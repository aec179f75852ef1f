package main

import (
	"context"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/grantmatch/internal/config"
	"github.com/david/grantmatch/internal/db"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	st, err := db.NewStore(pool).GrantStats(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRows([]table.Row{
		{"Total grants", st.Total},
		{"With tags", st.WithTags},
		{"With URL", st.WithURL},
		{"With deadline", st.WithDeadline},
		{"With embedding", st.WithEmbeddings},
	})
	t.Render()
}
