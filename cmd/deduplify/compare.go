package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ning0612/deduplify/internal/core/retention"
)

type compareFlags struct {
	infile   string
	purge    bool
	count    int
	strategy string
}

func newCompareCmd(a *app) *cobra.Command {
	var f compareFlags

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Decide which copy of each duplicate group to keep",
		Long: `Load the index, resolve every group of files sharing a digest and
list the files that can be deleted. Groups whose file names differ are
left for manual review. --purge deletes the listed files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.CompareConfig()

			flags := cmd.Flags()
			if flags.Changed("infile") {
				cfg.Index = f.infile
			}
			if flags.Changed("count") {
				cfg.Concurrency = f.count
			}
			if flags.Changed("strategy") {
				cfg.Strategy = f.strategy
			}
			cfg.ApplyDeletions = f.purge

			summary, decisions, err := a.service("Total files deleted").Compare(cmd.Context(), cfg)
			if f.purge {
				a.endProgress()
			}
			printDecisions(a.stdout, decisions, f.purge)
			printCompareSummary(a.stdout, summary, f.purge)
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.infile, "infile", "f", "", "index file written by hash")
	fl.BoolVar(&f.purge, "purge", false, "delete the redundant copies")
	fl.IntVarP(&f.count, "count", "c", 0, "number of deletion workers (at most the number of CPUs)")
	fl.StringVar(&f.strategy, "strategy", "", "retention strategy: "+strings.Join(retention.Names(), ", "))

	return cmd
}
