package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odvcencio/revlist/pkg/logging"
	"github.com/odvcencio/revlist/pkg/revlist"
)

func main() {
	os.Exit(run(os.Args[1:], ".", os.Stdout, os.Stderr))
}

// run executes one invocation and returns the process exit code.
func run(args []string, dir string, stdout, stderr io.Writer) int {
	log, err := logging.NewConsole(logging.LevelWarn, stderr)
	if err != nil {
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root := newRootCmd(dir, log)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		var rerr *revlist.Error
		if errors.As(err, &rerr) {
			fmt.Fprintf(stderr, "Error %d %s: %v\n", rerr.Code(), rerr.Action, rerr.Err)
		} else {
			fmt.Fprintf(stderr, "Error %d %s: %v\n", revlist.CodeGeneric, revlist.ActionParseOptions, err)
		}
		return 1
	}
	return 0
}

func newRootCmd(dir string, log *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "revlist [--topo-order | --date-order] [--reverse] [--not] <revision>...",
		Short: "List commit ids reachable from the given revisions",
		Long: `List the ids of every commit reachable from the given revisions, one per
line. "^rev" excludes rev and its ancestors, "a..b" lists commits reachable
from b but not from a, and --not inverts the meaning of the revisions that
follow it. Symmetric "a...b" ranges are not supported.`,
		// Tokens are order-sensitive, so they reach the option scanner untouched.
		DisableFlagParsing: true,
		SilenceErrors:      true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && (args[0] == "-h" || args[0] == "--help") {
				return cmd.Help()
			}
			return revlist.List(revlist.Config{
				Dir:    dir,
				Args:   args,
				Out:    cmd.OutOrStdout(),
				Logger: log,
			})
		},
	}
}
