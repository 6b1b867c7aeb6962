package main

import (
	"fmt"

	"github.com/spf13/cobra"

	wabznasm "github.com/wabznasm/go-wabznasm"
	"github.com/wabznasm/go-wabznasm/grammar"
)

func newTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens [file]",
		Short: "Dump the token stream for wabznasm source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _, err := readSource(args)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}

			lang := grammar.Language()
			ts := grammar.NewTokenSource(source)
			for {
				tok := ts.Next()
				if tok.Symbol == wabznasm.SymbolEOF {
					return nil
				}
				name := lang.SymbolName(tok.Symbol)
				if tok.Symbol == wabznasm.SymbolError {
					name = "ERROR"
				}
				fmt.Printf("%d:%d-%d:%d\t[%d,%d)\t%s\t%q\n",
					tok.StartPoint.Row, tok.StartPoint.Column,
					tok.EndPoint.Row, tok.EndPoint.Column,
					tok.StartByte, tok.EndByte, name, tok.Text)
			}
		},
	}
}
