package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yahallo-auth/yahallo/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled faces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(out io.Writer) error {
	store, err := repository.OpenFaceStore(cfg.FacesFile, logger)
	if err != nil {
		return err
	}

	faces := store.Faces()
	if len(faces) == 0 {
		fmt.Fprintln(out, "No faces enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tMODEL\tCREATED")
	fmt.Fprintln(w, "--\t-----\t-----\t-------")

	for _, f := range faces {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.ID, f.Label, f.Embedding.Model, f.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
