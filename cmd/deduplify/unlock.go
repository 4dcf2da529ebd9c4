package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newUnlockCmd(a *app) *cobra.Command {
	var (
		dbfile string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove the lock file left next to an index",
		Long: `Remove <index>.lock. Locks left by runs that are no longer alive
are removed directly; a lock held by a running hash or compare is only
removed with --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.CompareConfig().Index
			if cmd.Flags().Changed("dbfile") {
				path = dbfile
			}

			res, err := a.service("").Unlock(path, force)
			if err != nil {
				return err
			}

			switch {
			case !res.Removed:
				fmt.Fprintf(a.stdout, "No lock on %s\n", path)
			case res.Holder != nil:
				fmt.Fprintf(a.stdout, "Removed %s (held by PID %d, %s, started %s)\n",
					res.LockPath, res.Holder.PID, res.Holder.Command, humanize.Time(res.Holder.StartTime))
			default:
				fmt.Fprintf(a.stdout, "Removed stale lock %s\n", res.LockPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dbfile, "dbfile", "f", "", "index file whose lock to remove")
	cmd.Flags().BoolVar(&force, "force", false, "also remove a lock held by a live run")
	return cmd
}
