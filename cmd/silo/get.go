package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a document by identity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseID(args[0])
		if err != nil {
			fatal("Error parsing identity", err)
		}

		repo, err := openRepository()
		if err != nil {
			fatal("Error opening repository", err)
		}
		defer repo.Close()

		doc, err := repo.GetByID(context.Background(), id)
		if err != nil {
			fatal("Error reading document", err)
		}
		if err := printValue(os.Stdout, doc); err != nil {
			fatal("Error encoding output", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
