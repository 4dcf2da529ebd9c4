package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Ning0612/deduplify/internal/domain"
	"github.com/Ning0612/deduplify/internal/service"
)

func newListCmd(a *app) *cobra.Command {
	var (
		dbfile     string
		digest     string
		duplicates bool
		unique     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the records of an index",
		Long: `List the files recorded in an index, optionally only one digest
group (--digest) or only the files classified as duplicate (--duplicates)
or unique (--unique).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duplicates && unique {
				return fmt.Errorf("%w: --duplicates and --unique are exclusive", domain.ErrConfigInvalid)
			}

			path := a.cfg.CompareConfig().Index
			if cmd.Flags().Changed("dbfile") {
				path = dbfile
			}

			q := service.ListQuery{Digest: digest}
			if duplicates || unique {
				q.Duplicates = &duplicates
			}

			records, err := a.service("").List(cmd.Context(), path, q)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(a.stdout, "No matching records")
				return nil
			}

			for _, r := range records {
				fmt.Fprintf(a.stdout, "%s  %-9s %9s  %s\n", r.Digest, r.Duplicate, humanize.IBytes(uint64(r.Size)), r.Path)
			}
			fmt.Fprintf(a.stdout, "%s records\n", humanize.Comma(int64(len(records))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&dbfile, "dbfile", "f", "", "index file")
	cmd.Flags().StringVar(&digest, "digest", "", "only records with this digest")
	cmd.Flags().BoolVar(&duplicates, "duplicates", false, "only records classified as duplicate")
	cmd.Flags().BoolVar(&unique, "unique", false, "only records classified as unique")
	return cmd
}
