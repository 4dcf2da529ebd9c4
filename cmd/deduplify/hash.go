package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ning0612/deduplify/internal/core/checksum"
	"github.com/Ning0612/deduplify/internal/core/walker"
)

type hashFlags struct {
	count     int
	restart   bool
	exts      []string
	dbfile    string
	skipMode  string
	algorithm string
}

func newHashCmd(a *app) *cobra.Command {
	var f hashFlags

	cmd := &cobra.Command{
		Use:   "hash <dir>",
		Short: "Hash every file under a directory into the index",
		Long: `Walk <dir>, hash the content of every regular file and record
digest and path in the index. A fresh run replaces an existing index;
--restart continues from it and skips files it already holds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.HashConfig(args[0])

			flags := cmd.Flags()
			if flags.Changed("count") {
				cfg.Concurrency = f.count
			}
			if flags.Changed("dbfile") {
				cfg.Index = f.dbfile
			}
			if flags.Changed("exts") {
				cfg.Extensions = f.exts
			}
			if flags.Changed("skip-mode") {
				mode, err := walker.ParseSkipMode(f.skipMode)
				if err != nil {
					return err
				}
				cfg.SkipMode = mode
			}
			if flags.Changed("algorithm") {
				cfg.Algorithm = checksum.Algorithm(f.algorithm)
			}
			cfg.Restart = f.restart

			summary, err := a.service("Total files hashed").Hash(cmd.Context(), cfg)
			a.endProgress()
			printHashSummary(a.stdout, summary)
			return err
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.count, "count", "c", 0, "number of hashing workers (at most the number of CPUs)")
	fl.BoolVar(&f.restart, "restart", false, "resume from the existing index, skipping files already hashed")
	fl.StringSliceVar(&f.exts, "exts", nil, "only hash files with these extensions, e.g. jpg,png (* for all)")
	fl.StringVarP(&f.dbfile, "dbfile", "f", "", "index file; .json for the flat JSON format, anything else for SQLite")
	fl.StringVar(&f.skipMode, "skip-mode", "", "how --restart matches hashed files: name or path")
	fl.StringVar(&f.algorithm, "algorithm", "", "digest algorithm: "+algorithmNames())

	return cmd
}

func algorithmNames() string {
	var names []string
	for _, a := range checksum.Algorithms() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}
