package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"structura/pkg/script"
	"structura/pkg/snapshot"
	"structura/pkg/vm"
)

const historyFile = ".structura_history"

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell over a fresh realm",
	Args:  cobra.NoArgs,
	RunE:  runRepl,
}

func init() {
	replCmd.Flags().Bool("strict", false, "start in strict mode")
	rootCmd.AddCommand(replCmd)
}

var metaCommands = []string{":help", ":quit", ":reset", ":shapes", ":sites", ":sloppy", ":stats", ":strict"}

// shell is the REPL state. Each entered line gets the next line number, so
// every line is its own access site just like a scenario line.
type shell struct {
	in     *script.Interpreter
	out    io.Writer
	line   int
	strict bool
}

func newShell(strict bool, out io.Writer) *shell {
	sh := &shell{out: out, strict: strict}
	sh.reset()
	return sh
}

func (sh *shell) reset() {
	sh.in = script.NewInterpreter(cfg.EngineOptions(), sh.strict, sh.out)
	sh.line = 0
}

// complete offers command names for the first word and bound names after.
func (sh *shell) complete(line string) []string {
	if strings.HasPrefix(line, ":") {
		return prefixed(metaCommands, "", line)
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(line, " ")) {
		return prefixed(script.Commands(), "", strings.TrimSpace(line))
	}
	head := line
	word := ""
	if !strings.HasSuffix(line, " ") {
		word = fields[len(fields)-1]
		head = line[:len(line)-len(word)]
	}
	names := sh.in.Names()
	sort.Strings(names)
	return prefixed(names, head, word)
}

func prefixed(candidates []string, head, word string) []string {
	var out []string
	for _, c := range candidates {
		if strings.HasPrefix(c, word) {
			out = append(out, head+c)
		}
	}
	return out
}

// eval handles one input line and reports whether the shell should exit.
func (sh *shell) eval(input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	if strings.HasPrefix(input, ":") {
		return sh.meta(input)
	}
	sh.line++
	cmd, err := script.ParseLine(input, sh.line, "repl")
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return false
	}
	if cmd == nil {
		return false
	}
	result, err := sh.in.Step(cmd)
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return false
	}
	if result != "" {
		fmt.Fprintln(sh.out, result)
	}
	return false
}

func (sh *shell) meta(input string) bool {
	switch input {
	case ":quit":
		return true
	case ":help":
		fmt.Fprintf(sh.out, "commands: %s\nmeta: %s\n", strings.Join(script.Commands(), " "), strings.Join(metaCommands, " "))
	case ":reset":
		sh.reset()
		fmt.Fprintln(sh.out, "fresh realm")
	case ":strict", ":sloppy":
		sh.strict = input == ":strict"
		sh.in.SetStrict(sh.strict)
		fmt.Fprintf(sh.out, "%s mode\n", input[1:])
	case ":stats":
		_, _ = sh.in.Realm().Stats().WriteTo(sh.out)
	case ":shapes":
		_ = snapshot.Take(sh.in.Realm()).Print(sh.out)
	case ":sites":
		sh.in.Sites().Range(func(site int, ic *vm.PropInlineCache) {
			fmt.Fprintf(sh.out, "%4d %s\n", site, ic)
		})
	default:
		fmt.Fprintf(sh.out, "unknown command %s; type :help\n", input)
	}
	return false
}

func runRepl(cmd *cobra.Command, _ []string) error {
	strict, _ := cmd.Flags().GetBool("strict")
	sh := newShell(strict, cmd.OutOrStdout())

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(sh.complete)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintln(sh.out, "structura shell (:help for commands, Ctrl+D to exit)")
	for {
		line, err := ln.Prompt(sh.prompt())
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(sh.out)
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if sh.eval(line) {
			return nil
		}
	}
}

func (sh *shell) prompt() string {
	if sh.strict {
		return "strict> "
	}
	return "> "
}
