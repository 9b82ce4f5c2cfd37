// Command mrb is the CLI embedding surface for §6.2: load a compiled
// unit and run it, inspect a unit's structure, or drive the VM from an
// interactive shell. Modeled on the teacher's cmd/hey entry point —
// one urfave/cli/v3 Command tree, flags for global options, one
// subcommand per operation.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/wudi/mrblite/config"
	"github.com/wudi/mrblite/vm"
	"github.com/wudi/mrblite/version"
)

func main() {
	app := &cli.Command{
		Name:  "mrb",
		Usage: "embeddable register-VM runtime — load, inspect, and run compiled units",
		Commands: []*cli.Command{
			runCommand,
			dumpCommand,
			replCommand,
			gcstatCommand,
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a YAML config.Options document (§6.3)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println(version.Version())
			return cli.ShowAppHelp(cmd)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "mrb: %v\n", err)
		os.Exit(1)
	}
}

// loadOptions resolves the --config flag (if any) into config.Options,
// falling back to defaults when the flag is absent entirely.
func loadOptions(cmd *cli.Command) (config.Options, error) {
	path := cmd.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "load and run a compiled unit",
	ArgsUsage: "<file.mrb>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("run: missing <file.mrb> argument")
		}
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(cmd.Args().First())
		if err != nil {
			return err
		}
		s := vm.Open(opts.VMConfig())
		defer s.Close()

		result, err := s.Load(data)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		fmt.Println(result.String())
		return nil
	},
}

var gcstatCommand = &cli.Command{
	Name:  "gcstat",
	Usage: "load a compiled unit, run it, and report heap/GC statistics",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		s := vm.Open(opts.VMConfig())
		defer s.Close()

		if cmd.Args().Len() > 0 {
			data, err := os.ReadFile(cmd.Args().First())
			if err != nil {
				return err
			}
			if _, err := s.Load(data); err != nil {
				return fmt.Errorf("gcstat: %w", err)
			}
		}

		stats := s.Heap.Stats()
		fmt.Printf("phase:     %s\n", stats.Phase)
		fmt.Printf("live:      %s objects\n", humanize.Comma(int64(stats.Live)))
		fmt.Printf("pages:     %s\n", humanize.Comma(int64(stats.Pages)))
		fmt.Printf("threshold: %s\n", humanize.Comma(int64(stats.Threshold)))
		fmt.Printf("profile:   %s\n", s.GetPerformanceReport())
		return nil
	},
}
