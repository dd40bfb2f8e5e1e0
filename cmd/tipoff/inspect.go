package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/fortuna/tipoff/internal/dataset"
)

func inspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [dataset]",
		Short: "Print the size and checkpoint of a saved dataset",
		Long:  `Print the row count, column count and resume checkpoint of a dataset. The dataset defaults to the configured season.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Context(), cmd); err != nil {
				return err
			}
			name := a.cfg.Season
			if len(args) == 1 {
				name = args[0]
			}
			return inspect(cmd.OutOrStdout(), dataset.NewStore(a.cfg.Destination), name)
		},
	}
}

func inspect(w io.Writer, store *dataset.Store, name string) error {
	ds, err := store.Load(name)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no dataset %s at %s", name, store.Path(name))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s\n", store.Path(name))
	fmt.Fprintf(w, "  rows:    %d\n", ds.Len())
	fmt.Fprintf(w, "  columns: %d\n", len(ds.Columns))

	cp, ok, err := ds.Checkpoint()
	switch {
	case err != nil:
		return err
	case ok:
		fmt.Fprintf(w, "  checkpoint: %s\n", cp)
	default:
		fmt.Fprintln(w, "  checkpoint: none")
	}
	return nil
}
