package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteMatch string

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document by identity, or every document matching --match",
	Args: func(cmd *cobra.Command, args []string) error {
		if deleteMatch != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		repo, err := openRepository()
		if err != nil {
			fatal("Error opening repository", err)
		}
		defer repo.Close()

		ctx := context.Background()
		var n int64
		if deleteMatch != "" {
			filter, err := readDocument(deleteMatch)
			if err != nil {
				fatal("Error reading filter", err)
			}
			n, err = repo.DeleteMatch(ctx, filter)
			if err != nil {
				fatal("Error deleting documents", err)
			}
		} else {
			id, err := parseID(args[0])
			if err != nil {
				fatal("Error parsing identity", err)
			}
			n, err = repo.Delete(ctx, id)
			if err != nil {
				fatal("Error deleting document", err)
			}
		}
		fmt.Printf("deleted: %d\n", n)
	},
}

func init() {
	deleteCmd.Flags().StringVarP(&deleteMatch, "match", "m", "", "Filter (JSON/YAML) selecting the documents to delete")
	rootCmd.AddCommand(deleteCmd)
}
