package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/silo/pkg/core"
)

var (
	findSort  []string
	findSkip  int64
	findLimit int64
)

var findCmd = &cobra.Command{
	Use:   "find [filter]",
	Short: "List documents matching a filter",
	Long: `Find prints the documents matching a filter, given as inline JSON/YAML, a file,
or "-" for stdin. Without a filter every document is listed.

Filter keys are dotted field paths; operator objects support $eq, $ne, $gt,
$gte, $lt, $lte, $in, $nin, $exists and $glob. The $expr key holds an
expression evaluated against the document, e.g. '{"$expr": "age > 30"}'.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filter := core.Filter{}
		if len(args) == 1 {
			var err error
			if filter, err = readDocument(args[0]); err != nil {
				fatal("Error reading filter", err)
			}
		}
		opts, err := findOptions()
		if err != nil {
			fatal("Error parsing options", err)
		}

		repo, err := openRepository()
		if err != nil {
			fatal("Error opening repository", err)
		}
		defer repo.Close()

		ctx := context.Background()
		cur, err := repo.FindWindowedMatch(ctx, filter, opts)
		if err != nil {
			fatal("Error finding documents", err)
		}
		docs, err := core.All(ctx, cur)
		if err != nil {
			fatal("Error reading documents", err)
		}
		if docs == nil {
			docs = []core.Document{}
		}
		if err := printValue(os.Stdout, docs); err != nil {
			fatal("Error encoding output", err)
		}
	},
}

// findOptions parses --sort entries of the form field or field:desc.
func findOptions() (core.FindOptions, error) {
	opts := core.FindOptions{Skip: findSkip, Limit: findLimit}
	for _, s := range findSort {
		field, dir, _ := strings.Cut(s, ":")
		if field == "" {
			return opts, fmt.Errorf("empty sort field in %q", s)
		}
		switch strings.ToLower(dir) {
		case "", "asc":
			opts.Sort = append(opts.Sort, core.SortField{Field: field})
		case "desc":
			opts.Sort = append(opts.Sort, core.SortField{Field: field, Desc: true})
		default:
			return opts, fmt.Errorf("unknown sort direction %q", dir)
		}
	}
	return opts, nil
}

func init() {
	findCmd.Flags().StringSliceVar(&findSort, "sort", nil, "Sort keys (field or field:desc), repeatable")
	findCmd.Flags().Int64Var(&findSkip, "skip", 0, "Number of documents to skip")
	findCmd.Flags().Int64Var(&findLimit, "limit", 0, "Maximum number of documents (0 for all)")
	rootCmd.AddCommand(findCmd)
}
