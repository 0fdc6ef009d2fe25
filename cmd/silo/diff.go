package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/silo/pkg/update"
)

var diffPatch bool

// diffOutput is the printable form of an update set.
type diffOutput struct {
	Assign map[string]any `json:"assign" yaml:"assign"`
	Remove []string       `json:"remove" yaml:"remove"`
}

var diffCmd = &cobra.Command{
	Use:   "diff <original> <updated>",
	Short: "Print the update set turning one document into another",
	Long: `Diff compares two documents (inline JSON/YAML, files, or "-" for stdin) and
prints the assignments and removals an update would persist. With --patch the
same change is printed as an RFC 6902 JSON Patch against the original.

No repository is needed.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		original, err := readDocument(args[0])
		if err != nil {
			fatal("Error reading original", err)
		}
		updated, err := readDocument(args[1])
		if err != nil {
			fatal("Error reading updated", err)
		}

		set := update.Between(original, updated)
		if diffPatch {
			data, err := update.Patch(original, set)
			if err != nil {
				fatal("Error rendering patch", err)
			}
			var ops []any
			if err := json.Unmarshal(data, &ops); err != nil {
				fatal("Error rendering patch", err)
			}
			if ops == nil {
				ops = []any{}
			}
			if err := printValue(os.Stdout, ops); err != nil {
				fatal("Error encoding output", err)
			}
			return
		}

		out := diffOutput{Assign: set.Assignments, Remove: set.RemovalPaths()}
		if out.Assign == nil {
			out.Assign = map[string]any{}
		}
		if err := printValue(os.Stdout, out); err != nil {
			fatal("Error encoding output", err)
		}
	},
}

func init() {
	diffCmd.Flags().BoolVar(&diffPatch, "patch", false, "Print an RFC 6902 JSON Patch")
	rootCmd.AddCommand(diffCmd)
}
