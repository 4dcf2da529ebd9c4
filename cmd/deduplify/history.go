package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		dbfile string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs recorded in a SQLite index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.CompareConfig().Index
			if cmd.Flags().Changed("dbfile") {
				path = dbfile
			}

			runs, err := a.service("").History(path, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.stdout, "No runs recorded")
				return nil
			}

			for _, r := range runs {
				line := fmt.Sprintf("%s  %-8s %-8s hashed=%s deleted=%s errors=%s  (%s)",
					r.StartTime.Format("2006-01-02 15:04:05"),
					r.Command,
					r.Status,
					humanize.Comma(int64(r.FilesHashed)),
					humanize.Comma(int64(r.FilesDeleted)),
					humanize.Comma(int64(r.Errors)),
					humanize.Time(r.StartTime),
				)
				if r.Error != "" {
					line += "  " + r.Error
				}
				fmt.Fprintln(a.stdout, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dbfile, "dbfile", "f", "", "SQLite index file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}
