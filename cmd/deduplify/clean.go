package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Ning0612/deduplify/internal/config"
)

func newCleanCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean <dir>",
		Short: "Remove directories left empty under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.service("").Clean(cmd.Context(), config.CleanConfig{Root: args[0], DryRun: dryRun})
			if err != nil {
				return err
			}

			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, dir := range res.Removed {
				fmt.Fprintf(a.stdout, "%s %s\n", verb, dir)
			}
			fmt.Fprintf(a.stdout, "%s %s of %s directories\n",
				verb, humanize.Comma(int64(len(res.Removed))), humanize.Comma(int64(res.Visited)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list empty directories without removing them")
	return cmd
}
