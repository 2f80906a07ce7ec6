package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mediatag/internal"
	"github.com/starford/mediatag/internal/library"
	pkgconfig "github.com/starford/mediatag/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOrDefault(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if p := cmd.String("library"); p != "" {
		cfg.Library.Path = p
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

// withLibrary opens the library for a one-shot command. Logs go to stderr
// so stdout only carries command output.
func withLibrary(fn func(ctx context.Context, cmd *cli.Command, svc *library.Service) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := internal.NewLogger(cfg, os.Stderr)
		svc, closeLib, err := internal.OpenLibrary(cfg, logger)
		if err != nil {
			return err
		}
		defer closeLib()
		return fn(ctx, cmd, svc)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArgs(cmd *cli.Command, n int, usage string) error {
	if cmd.NArg() < n {
		return fmt.Errorf("usage: %s %s", cmd.FullName(), usage)
	}
	return nil
}

func scanCmd(ctx context.Context, cmd *cli.Command, svc *library.Service) error {
	st, err := svc.Rescan(ctx)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, st)
}

func showCmd(ctx context.Context, cmd *cli.Command, svc *library.Service) error {
	if err := requireArgs(cmd, 1, "<path>"); err != nil {
		return err
	}
	d, err := svc.GetRecord(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, d)
}

func tagsCmd(ctx context.Context, cmd *cli.Command, svc *library.Service) error {
	if _, err := svc.Rescan(ctx); err != nil {
		return err
	}
	for _, t := range svc.SearchTags(ctx, cmd.Args().First()) {
		fmt.Println(t)
	}
	return nil
}

func listCmd(ctx context.Context, cmd *cli.Command, svc *library.Service) error {
	if _, err := svc.Rescan(ctx); err != nil {
		return err
	}
	items, total, err := svc.ListRecords(ctx, int(cmd.Int("limit")), int(cmd.Int("offset")), cmd.String("tag"))
	if err != nil {
		return err
	}
	for _, it := range items {
		fmt.Printf("%s\t%s\n", it.Path, strings.Join(it.Tags, ", "))
	}
	if total > len(items) {
		fmt.Fprintf(os.Stderr, "%d of %d records shown\n", len(items), total)
	}
	return nil
}

func tagChange(apply func(svc *library.Service, ctx context.Context, path string, tags []string) (*library.Detail, error)) cli.ActionFunc {
	return withLibrary(func(ctx context.Context, cmd *cli.Command, svc *library.Service) error {
		if err := requireArgs(cmd, 2, "<path> <tag>..."); err != nil {
			return err
		}
		args := cmd.Args().Slice()
		d, err := apply(svc, ctx, args[0], args[1:])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, d)
	})
}

func dateSetCmd(ctx context.Context, cmd *cli.Command, svc *library.Service) error {
	if err := requireArgs(cmd, 2, "<path> <date>"); err != nil {
		return err
	}
	d, err := svc.SetDate(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, d)
}

func main() {
	cmd := &cli.Command{
		Name:    "mediatag",
		Usage:   "Media library tag and date reconciler backed by XMP metadata",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "library",
				Aliases: []string{"l"},
				Usage:   "Library directory (overrides library.path)",
				Sources: cli.EnvVars("MEDIATAG_LIBRARY"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, event stream and file watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:   "scan",
				Usage:  "Reconcile the catalog with the library and print statistics",
				Action: withLibrary(scanCmd),
			},
			{
				Name:      "show",
				Usage:     "Print the tags and date of a media file",
				ArgsUsage: "<path>",
				Action:    withLibrary(showCmd),
			},
			{
				Name:      "tags",
				Usage:     "List tags containing a substring (all tags without one)",
				ArgsUsage: "[query]",
				Action:    withLibrary(tagsCmd),
			},
			{
				Name:  "list",
				Usage: "List cataloged media files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tag", Usage: "Only files carrying this tag"},
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "Page size"},
					&cli.IntFlag{Name: "offset", Usage: "Page offset"},
				},
				Action: withLibrary(listCmd),
			},
			{
				Name:  "tag",
				Usage: "Change the tags of a media file",
				Commands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Append tags",
						ArgsUsage: "<path> <tag>...",
						Action: tagChange(func(svc *library.Service, ctx context.Context, path string, tags []string) (*library.Detail, error) {
							return svc.AddTags(ctx, path, tags...)
						}),
					},
					{
						Name:      "remove",
						Usage:     "Remove tags; fails without writing if any is absent",
						ArgsUsage: "<path> <tag>...",
						Action: tagChange(func(svc *library.Service, ctx context.Context, path string, tags []string) (*library.Detail, error) {
							return svc.RemoveTags(ctx, path, tags...)
						}),
					},
					{
						Name:      "set",
						Usage:     "Replace every tag",
						ArgsUsage: "<path> <tag>...",
						Action: tagChange(func(svc *library.Service, ctx context.Context, path string, tags []string) (*library.Detail, error) {
							return svc.SetTags(ctx, path, tags)
						}),
					},
				},
			},
			{
				Name:  "date",
				Usage: "Change the creation date of a media file",
				Commands: []*cli.Command{
					{
						Name:      "set",
						Usage:     "Write a date to every date field",
						ArgsUsage: "<path> <date>",
						Action:    withLibrary(dateSetCmd),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
