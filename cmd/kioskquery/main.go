package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rebelice/kioskquery/internal/cache"
	"github.com/rebelice/kioskquery/internal/config"
	"github.com/rebelice/kioskquery/internal/db/query"
	"github.com/rebelice/kioskquery/internal/engine"
	"github.com/rebelice/kioskquery/internal/history"
	"github.com/rebelice/kioskquery/internal/models"
	"github.com/rebelice/kioskquery/internal/share"
)

func main() {
	var (
		dsn         = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
		token       = flag.String("token", "", "encoded share token to search with")
		contentType = flag.String("content-type", "alumni", "content type to search when no token is given")
		countOnly   = flag.Bool("count", false, "print the matching row count instead of rows")
		prune       = flag.Bool("prune", false, "prune history entries past the retention window and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load config: %v (using defaults)\n", err)
		cfg = config.GetDefaults()
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.Path)
		if err != nil {
			log.Fatalf("open history store: %v", err)
		}
		defer func() { _ = store.Close() }()
	}

	if *prune {
		if store == nil {
			log.Fatal("history is disabled, nothing to prune")
		}
		removed, err := store.PruneOlderThan(time.Now().Add(-cfg.History.Retention()))
		if err != nil {
			log.Fatalf("prune history: %v", err)
		}
		fmt.Printf("pruned %d history entries\n", removed)
		return
	}

	if *dsn == "" {
		log.Fatal("no connection string: set -dsn or DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	filter := models.FilterConfig{ContentType: *contentType}
	if *token != "" {
		filter, err = share.Decode(*token)
		if err != nil {
			log.Fatalf("decode token: %v", err)
		}
	}

	opts := []engine.Option{
		engine.WithLimit(cfg.Engine.DefaultLimit),
		engine.WithCache(cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL())),
	}
	if store != nil {
		opts = append(opts, engine.WithHistory(store))
	}
	eng := engine.New(query.NewExecutor(pool), opts...)

	if *countOnly {
		n, err := eng.Count(ctx, filter)
		if err != nil {
			log.Fatalf("count: %v", err)
		}
		fmt.Println(n)
		return
	}

	result, err := eng.Search(ctx, filter)
	if err != nil {
		log.Fatalf("search: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
	fmt.Printf("(%d rows, %s)\n", result.Count, result.Duration)
}
