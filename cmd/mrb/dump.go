package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wudi/mrblite/irep"
	"github.com/wudi/mrblite/values"
)

// dumpCommand loads a compiled unit and prints its irep tree (§6.1):
// instruction count, pool size, symbol count, and one line per child
// irep, recursively — the read-side inspection the embedding API's
// `load` doesn't otherwise surface.
var dumpCommand = &cli.Command{
	Name:      "dump",
	Usage:     "print the irep tree of a compiled unit",
	ArgsUsage: "<file.mrb>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("dump: missing <file.mrb> argument")
		}
		data, err := os.ReadFile(cmd.Args().First())
		if err != nil {
			return err
		}
		syms := values.NewSymbolTable()
		root, hdr, err := irep.Load(data, syms)
		if err != nil {
			return fmt.Errorf("dump: %w", err)
		}
		fmt.Printf("binary ident: %s  version: %s  compiler: %s %s\n", hdr.Ident, hdr.Version, hdr.CompilerName, hdr.CompilerVersion)
		dumpIrep(root, 0)
		return nil
	},
}

func dumpIrep(ir *irep.Irep, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Printf("%sirep: %d insns, %d pool entries, %d syms, %d locals, %d children (nregs=%d)\n",
		indent, len(ir.Instructions), len(ir.Pool), len(ir.Syms), len(ir.Locals), len(ir.Children), ir.NRegs)
	for _, child := range ir.Children {
		dumpIrep(child, depth+1)
	}
}
