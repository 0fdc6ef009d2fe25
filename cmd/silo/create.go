package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/silo/pkg/core"
)

var createCmd = &cobra.Command{
	Use:   "create <document>... ",
	Short: "Create one or more documents",
	Long: `Create stores new documents. Each argument is an inline JSON/YAML document,
a .json/.yaml file, or "-" for stdin. More than one document is stored as a
single batch: either every document is created or none is.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		docs := make([]core.Document, 0, len(args))
		for _, arg := range args {
			doc, err := readDocument(arg)
			if err != nil {
				fatal("Error reading document", err)
			}
			docs = append(docs, doc)
		}

		repo, err := openRepository()
		if err != nil {
			fatal("Error opening repository", err)
		}
		defer repo.Close()

		ctx := context.Background()
		var out any
		if len(docs) == 1 {
			out, err = repo.Create(ctx, docs[0])
		} else {
			out, err = repo.BatchCreate(ctx, docs)
		}
		if err != nil {
			fatal("Error creating document", err)
		}
		if err := printValue(os.Stdout, out); err != nil {
			fatal("Error encoding output", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
