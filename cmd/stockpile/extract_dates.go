package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"stockpile_manager/internal/domain/labeldate"

	"github.com/spf13/cobra"
)

var (
	extractMinYear int
	extractMaxYear int
)

var extractDatesCmd = &cobra.Command{
	Use:   "extract-dates [text...]",
	Short: "Print the dates found in label text as JSON",
	Long: `extract-dates runs the label date extractor on its arguments, or on stdin
when no argument is given, and prints {"dates": [...], "suggestedDate": ...}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, "\n")
		if len(args) == 0 {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(b)
		}
		if extractMinYear > extractMaxYear {
			return fmt.Errorf("--min-year %d is after --max-year %d", extractMinYear, extractMaxYear)
		}

		ex := labeldate.Extractor{MinYear: extractMinYear, MaxYear: extractMaxYear}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(ex.Extract(text))
	},
}

func init() {
	extractDatesCmd.Flags().IntVar(&extractMinYear, "min-year", labeldate.DefaultMinYear, "earliest accepted year")
	extractDatesCmd.Flags().IntVar(&extractMaxYear, "max-year", labeldate.DefaultMaxYear, "latest accepted year")
}
