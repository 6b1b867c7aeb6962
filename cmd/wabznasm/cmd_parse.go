package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	wabznasm "github.com/wabznasm/go-wabznasm"
	"github.com/wabznasm/go-wabznasm/grammar"
)

var log = commonlog.GetLogger("wabznasm")

func newParseCmd() *cobra.Command {
	var edits []string
	var handLexer bool

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse wabznasm source and print the syntax tree",
		Long: `Parse wabznasm source and print the syntax tree as an s-expression.

If no file is provided, reads source from stdin.

Each --edit START:OLD_END:NEW_TEXT replays a text replacement through the
incremental parser: the tree from the previous step is edited, reparsed
against the new source, and printed again.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, name, err := readSource(args)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			parser, err := wabznasm.NewParser(grammar.Language())
			if err != nil {
				return fmt.Errorf("language table: %w", err)
			}

			var tree *wabznasm.Tree
			if handLexer {
				tree, err = parser.ParseWithTokenSource(source, grammar.NewTokenSource(source))
			} else {
				tree, err = parser.Parse(source)
			}
			if err != nil {
				return fmt.Errorf("parse %s: %w", name, err)
			}
			log.Infof("parsed %s: %d bytes, %d errors", name, len(source), tree.ErrorCount())
			fmt.Println(tree.String())

			for _, spec := range edits {
				edit, newSource, err := applyEditSpec(spec, source)
				if err != nil {
					return err
				}
				edited := tree.Edit(edit)
				tree, err = parser.ParseIncremental(newSource, edited)
				if err != nil {
					return fmt.Errorf("reparse after %q: %w", spec, err)
				}
				source = newSource
				log.Infof("reparsed after %q: %d bytes, %d errors", spec, len(source), tree.ErrorCount())
				fmt.Println(tree.String())
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&edits, "edit", nil, "replay a START:OLD_END:NEW_TEXT replacement incrementally (repeatable)")
	cmd.Flags().BoolVar(&handLexer, "hand-lexer", false, "tokenize with the hand-written lexer instead of the table DFA")

	return cmd
}

// applyEditSpec parses START:OLD_END:NEW_TEXT, applies the replacement to
// source, and builds the matching InputEdit.
func applyEditSpec(spec string, source []byte) (wabznasm.InputEdit, []byte, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return wabznasm.InputEdit{}, nil, fmt.Errorf("edit %q: want START:OLD_END:NEW_TEXT", spec)
	}
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return wabznasm.InputEdit{}, nil, fmt.Errorf("edit %q: bad start offset: %w", spec, err)
	}
	oldEnd, err := strconv.Atoi(parts[1])
	if err != nil {
		return wabznasm.InputEdit{}, nil, fmt.Errorf("edit %q: bad old end offset: %w", spec, err)
	}
	if start < 0 || oldEnd < start || oldEnd > len(source) {
		return wabznasm.InputEdit{}, nil, fmt.Errorf("edit %q: range [%d,%d) outside source of %d bytes", spec, start, oldEnd, len(source))
	}
	newText := parts[2]

	newSource := make([]byte, 0, len(source)+len(newText)-(oldEnd-start))
	newSource = append(newSource, source[:start]...)
	newSource = append(newSource, newText...)
	newSource = append(newSource, source[oldEnd:]...)

	edit := wabznasm.InputEdit{
		StartByte:   uint32(start),
		OldEndByte:  uint32(oldEnd),
		NewEndByte:  uint32(start + len(newText)),
		StartPoint:  pointAt(source, start),
		OldEndPoint: pointAt(source, oldEnd),
		NewEndPoint: pointAt(newSource, start+len(newText)),
	}
	return edit, newSource, nil
}

// pointAt computes the row/column of a byte offset, counting columns in
// bytes like the engine does.
func pointAt(src []byte, offset int) wabznasm.Point {
	var p wabznasm.Point
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			p.Row++
			p.Column = 0
		} else {
			p.Column++
		}
	}
	return p
}
