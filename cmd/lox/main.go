package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kristofer/lox/pkg/driver"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "lox [script]",
		Short:   "lox runs and explores the Lox scripting language",
		Version: version,
		// Extra positional args beyond one script path are a usage error,
		// not a pipeline error: print usage to stdout and exit zero rather
		// than letting cobra's default arg-count handling turn it into a
		// nonzero exit on stderr.
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				fmt.Fprint(os.Stdout, cmd.UsageString())
				return nil
			}
			d := driver.New(os.Stdout, os.Stderr)
			if len(args) == 0 {
				return d.RunREPL()
			}
			return d.RunFile(args[0])
		},
	}
	root.AddCommand(newRunCmd(), newReplCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Compile and run a Lox source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return driver.New(os.Stdout, os.Stderr).RunFile(args[0])
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive Lox session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return driver.New(os.Stdout, os.Stderr).RunREPL()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lox version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("lox", version)
		},
	}
}
