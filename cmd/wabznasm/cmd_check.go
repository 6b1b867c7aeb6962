package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	wabznasm "github.com/wabznasm/go-wabznasm"
	"github.com/wabznasm/go-wabznasm/grammar"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file...]",
		Short: "Parse files and report syntax errors",
		Long: `Parse each file and report every error and missing-token node.
Exits non-zero when any file has errors. With no arguments, reads stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parser, err := wabznasm.NewParser(grammar.Language())
			if err != nil {
				return fmt.Errorf("language table: %w", err)
			}

			names := args
			if len(names) == 0 {
				names = []string{""}
			}

			failed := 0
			for _, name := range names {
				var fileArgs []string
				if name != "" {
					fileArgs = []string{name}
				}
				source, display, err := readSource(fileArgs)
				if err != nil {
					return fmt.Errorf("read source: %w", err)
				}
				tree, err := parser.Parse(source)
				if err != nil {
					return fmt.Errorf("parse %s: %w", display, err)
				}
				for _, n := range tree.ErrorNodes() {
					failed++
					kind := "error"
					if n.IsMissing() {
						kind = fmt.Sprintf("missing %s", n.Kind())
					}
					fmt.Fprintf(os.Stderr, "%s:%d:%d: %s at bytes [%d,%d)\n",
						display, n.StartPoint().Row+1, n.StartPoint().Column+1,
						kind, n.StartByte(), n.EndByte())
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d syntax error(s)", failed)
			}
			return nil
		},
	}
}
