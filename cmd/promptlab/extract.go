package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/fields"
)

var extractCorrect string

// extractResult is printed when --correct is given.
type extractResult struct {
	Score  int          `json:"score" yaml:"score"`
	Scored bool         `json:"scored" yaml:"scored"`
	Rows   []fields.Row `json:"rows" yaml:"rows"`
}

var extractCmd = &cobra.Command{
	Use:   "extract <file|->",
	Short: "Extract tagged fields from model output",
	Long: `Extract the front-matter fields tagged with <!-- field="..." --> comments
from a markdown file (or stdin with "-"), without a server.

With --correct, the extracted set is scored against a JSON field set such
as the output of "promptlab api fieldsets get <id> -o json".

Examples:
  promptlab extract output.md
  promptlab extract - < output.md
  promptlab extract output.md --correct walden.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		md, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		discovered := fields.ExtractSet(md)
		if extractCorrect == "" {
			return api.Output(discovered)
		}

		data, err := os.ReadFile(extractCorrect)
		if err != nil {
			return fmt.Errorf("read correct fields: %w", err)
		}
		var correct fields.Set
		if err := json.Unmarshal(data, &correct); err != nil {
			return fmt.Errorf("parse %s: %w", extractCorrect, err)
		}
		score, ok := fields.Score(correct, discovered)
		return api.Output(extractResult{
			Score:  score,
			Scored: ok,
			Rows:   fields.CompareSets(correct, discovered),
		})
	},
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func init() {
	extractCmd.Flags().StringVar(&extractCorrect, "correct", "", "JSON field set to score against")
	rootCmd.AddCommand(extractCmd)
}
