// File: cmd/classify.go
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/relock/internal/classify"
)

var (
	classifyInput  string
	classifyOutput string
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [locator...]",
		Short: "Label locator strings with the strategy taxonomy they rely on.",
		Long: `Classify locator strings into the locator taxonomy (ID-based, Class-based,
Name-based, Type-based, Label-based, Combined, Text-based, Positional,
Parent-child hierarchy, or CSS). Locators come from arguments or from a CSV
file whose first column holds the locator strings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd.OutOrStdout(), args)
		},
	}

	cmd.Flags().StringVarP(&classifyInput, "input", "i", "", "CSV file of locators (first column)")
	cmd.Flags().StringVarP(&classifyOutput, "output", "o", "", "write results as CSV to this file")

	return cmd
}

func runClassify(out io.Writer, args []string) error {
	locators := args
	if classifyInput != "" {
		f, err := os.Open(classifyInput)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		fromCSV, err := classify.ReadLocatorsCSV(f)
		if err != nil {
			return err
		}
		locators = append(locators, fromCSV...)
	}
	if len(locators) == 0 {
		return fmt.Errorf("no locators given; pass arguments or --input")
	}

	results := classify.ClassifyAll(locators)

	if classifyOutput != "" {
		f, err := os.Create(classifyOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		return classify.WriteResultsCSV(f, results)
	}

	for _, res := range results {
		fmt.Fprintln(out, res)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newClassifyCmd())
}
