package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/vk/pipeforge/internal/app"
	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/scheduler"
)

func newApp(cmd *cli.Command) (*app.App, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	return app.New(os.Stderr, cfg), nil
}

// modulePath is the positional module directory argument, defaulting to
// the working directory.
func modulePath(cmd *cli.Command) string {
	if p := cmd.Args().First(); p != "" {
		return p
	}
	return "."
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "pipeforge",
		Usage: "Filesystem-native build orchestration for multi-stage data pipelines",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.DefaultFileName,
				Sources: cli.EnvVars("PIPEFORGE_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "make",
				Usage:     "Build a module's targets, freshest-first",
				ArgsUsage: "[module-dir]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "Target to build; defaults to the module's primary targets"},
					&cli.BoolFlag{Name: "recurse", Aliases: []string{"r"}, Usage: "Build stale dependencies first"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Rebuild even when up to date"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := newApp(cmd)
					if err != nil {
						return err
					}
					return a.Make(ctx, modulePath(cmd), cmd.String("target"), app.MakeOptions{
						Recurse: cmd.Bool("recurse"),
						Force:   cmd.Bool("force"),
					})
				},
			},
			{
				Name:      "scan",
				Usage:     "Plan the stale targets of a module subtree and print the build script",
				ArgsUsage: "[module-dir]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Scan nested modules too"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Schedule every target regardless of freshness"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := newApp(cmd)
					if err != nil {
						return err
					}
					return a.ScanScript(ctx, os.Stdout, modulePath(cmd), scheduler.Options{
						Recursive: cmd.Bool("recursive"),
						Force:     cmd.Bool("force"),
					})
				},
			},
			{
				Name:      "run",
				Usage:     "Scan a module subtree and execute the plan in-process",
				ArgsUsage: "[module-dir]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Include nested modules"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Rebuild every target regardless of freshness"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := newApp(cmd)
					if err != nil {
						return err
					}
					return a.Run(ctx, modulePath(cmd), scheduler.Options{
						Recursive: cmd.Bool("recursive"),
						Force:     cmd.Bool("force"),
					})
				},
			},
			{
				Name:      "clean",
				Usage:     "Remove built artifacts and their generation markers",
				ArgsUsage: "[module-dir]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "Clean a single target"},
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Clean nested modules too"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := newApp(cmd)
					if err != nil {
						return err
					}
					return a.Clean(ctx, modulePath(cmd), cmd.String("target"), cmd.Bool("recursive"))
				},
			},
			{
				Name:      "status",
				Usage:     "Show per-target freshness of a module",
				ArgsUsage: "[module-dir]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "List every target, not just primary ones"},
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Include nested modules"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := newApp(cmd)
					if err != nil {
						return err
					}
					return a.Status(ctx, os.Stdout, modulePath(cmd), cmd.Bool("all"), cmd.Bool("recursive"))
				},
			},
			{
				Name:      "gitignore",
				Usage:     "Regenerate module .gitignore files from declared outputs",
				ArgsUsage: "[module-dir]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Include nested modules"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := newApp(cmd)
					if err != nil {
						return err
					}
					return a.Gitignore(ctx, modulePath(cmd), cmd.Bool("recursive"))
				},
			},
		},
	}
}

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
