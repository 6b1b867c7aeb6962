package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var verbosity int

func main() {
	rootCmd := &cobra.Command{
		Use:   "wabznasm",
		Short: "Parse and inspect wabznasm source",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			commonlog.Configure(verbosity, nil)
		},
	}
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "add a log verbosity level (can be used twice)")

	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newTokensCmd())
	rootCmd.AddCommand(newCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readSource reads the named file, or stdin when no argument was given.
func readSource(args []string) ([]byte, string, error) {
	if len(args) == 0 {
		src, err := io.ReadAll(os.Stdin)
		return src, "<stdin>", err
	}
	src, err := os.ReadFile(args[0])
	return src, args[0], err
}
