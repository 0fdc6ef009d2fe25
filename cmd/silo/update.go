package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <document>",
	Short: "Persist the difference between a full model and its stored version",
	Long: `Update reads a complete model (inline JSON/YAML, a file, or "-" for stdin),
diffs it against the stored document with the same identity and writes only
the changed fields.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := readDocument(args[0])
		if err != nil {
			fatal("Error reading document", err)
		}

		repo, err := openRepository()
		if err != nil {
			fatal("Error opening repository", err)
		}
		defer repo.Close()

		modified, err := repo.Update(context.Background(), doc)
		if err != nil {
			fatal("Error updating document", err)
		}
		fmt.Printf("modified: %d\n", modified)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
