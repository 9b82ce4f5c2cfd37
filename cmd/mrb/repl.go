package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/wudi/mrblite/values"
	"github.com/wudi/mrblite/vm"
)

// replCommand loads a compiled unit (§6.2 `load`) and then drives
// `funcall` against its top-level result from an interactive shell, one
// "method arg..." line at a time — the embedding API's interactive
// surface, since this core has no parser/compiler to read Ruby source
// text directly (§1 Non-goals).
var replCommand = &cli.Command{
	Name:      "repl",
	Usage:     "load a compiled unit, then funcall methods on it interactively",
	ArgsUsage: "<file.mrb>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("repl: missing <file.mrb> argument")
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

		recv, err := s.Load(data)
		if err != nil {
			return fmt.Errorf("repl: %w", err)
		}
		fmt.Printf("loaded %s, top-level result: %s\n", cmd.Args().First(), recv.String())

		if isatty.IsTerminal(os.Stdin.Fd()) {
			return replInteractive(s, recv)
		}
		return replPiped(s, recv)
	},
}

func replInteractive(s *vm.State, recv values.Value) error {
	rl, err := readline.NewEx(&readline.Config{Prompt: "mrb> "})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}
		recv = evalReplLine(s, recv, line)
	}
}

func replPiped(s *vm.State, recv values.Value) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		recv = evalReplLine(s, recv, scanner.Text())
	}
	return scanner.Err()
}

// evalReplLine funcalls the first token as a method name against recv,
// passing the remaining whitespace-separated tokens as arguments
// (decimal integers, or bare strings otherwise) and printing the result,
// returning the receiver the next line should operate against — the
// method's own result, so a session can chain calls.
func evalReplLine(s *vm.State, recv values.Value, line string) values.Value {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return recv
	}
	if fields[0] == "exit" || fields[0] == "quit" {
		os.Exit(0)
	}

	argv := make([]values.Value, 0, len(fields)-1)
	for _, tok := range fields[1:] {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			argv = append(argv, values.Int(n))
		} else {
			argv = append(argv, values.Obj(s.NewString(tok)))
		}
	}

	result, err := s.Funcall(recv, fields[0], argv, values.Nil)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return recv
	}
	fmt.Println(result.String())
	return result
}
