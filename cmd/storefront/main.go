// Package main is the agent storefront binary: the HTTP server plus offline
// ranking, seeding and migration commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fairyhunter13/agent-storefront/internal/config"
	"github.com/fairyhunter13/agent-storefront/internal/feed"
	"github.com/fairyhunter13/agent-storefront/internal/obs"
	"github.com/fairyhunter13/agent-storefront/internal/ranking"
	"github.com/fairyhunter13/agent-storefront/internal/store"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "storefront",
		Usage:   "Ranked product feeds for AI shopping agents",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Before: func(c *cli.Context) error {
			if p := c.String("config"); p != "" {
				return os.Setenv("CONFIG_PATH", p)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			rankCommand(),
			seedCommand(),
			migrateCommand(),
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if err := obs.InitLogger(cfg.LogMode); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func rankCommand() *cli.Command {
	return &cli.Command{
		Name:  "rank",
		Usage: "Rank a catalog file offline and print the feed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Catalog file (.yaml or .json)", Required: true},
			&cli.StringFlag{Name: "format", Value: "json", Usage: "Output format (json, markdown, preview)"},
			&cli.IntFlag{Name: "limit", Usage: "Number of products to print (0 keeps the format default: 50 for json and markdown, 20 for preview)"},
		},
		Action: runRank,
	}
}

func runRank(c *cli.Context) error {
	cat, err := store.ReadCatalog(c.String("file"))
	if err != nil {
		return err
	}
	in := feed.Input{Storefront: cat.Storefront, Products: cat.Products, Rules: cat.Rules, Now: time.Now()}
	if in.Storefront.AgentInstructions == "" {
		in.Storefront.AgentInstructions = feed.DefaultAgentInstructions
	}
	limit := c.Int("limit")
	if limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	out := c.App.Writer

	switch c.String("format") {
	case "json":
		if limit == 0 {
			limit = ranking.FeedLimit
		}
		return writeIndented(out, feed.AssembleLimit(in, limit))
	case "markdown":
		if limit == 0 {
			limit = ranking.FeedLimit
		}
		_, err := fmt.Fprint(out, feed.RenderMarkdown(feed.AssembleLimit(in, limit)))
		return err
	case "preview":
		if limit == 0 {
			limit = ranking.PreviewLimit
		}
		return writeIndented(out, feed.AssemblePreview(in, limit))
	default:
		return fmt.Errorf("unknown format %q", c.String("format"))
	}
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Load a catalog file into the configured database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Catalog file (.yaml or .json)", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer obs.Logger.Sync()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("seed needs DATABASE_URL; the in-memory store does not outlive the process")
			}
			cat, err := store.ReadCatalog(c.String("file"))
			if err != nil {
				return err
			}
			ctx := context.Background()
			repo, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := store.Seed(ctx, repo, cat); err != nil {
				return err
			}
			obs.Logger.Info("catalog_seeded",
				"store_id", cat.Storefront.ID,
				"products", len(cat.Products),
				"rules", len(cat.Rules),
			)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer obs.Logger.Sync()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("migrate needs DATABASE_URL")
			}
			// Open migrates before returning.
			repo, err := store.Open(context.Background(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			obs.Logger.Info("schema_migrated")
			return repo.Close()
		},
	}
}
