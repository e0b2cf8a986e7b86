package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/utero-ai/utero-tts/internal/cache"
	"github.com/utero-ai/utero-tts/internal/tts"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or sweep the audio stores",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts and sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cacheStore, outputStore, err := openStores(log.Default())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range []struct {
				name  string
				store *cache.Store
			}{{"cache", cacheStore}, {"output", outputStore}} {
				st, err := s.store.Stats()
				if err != nil {
					return err
				}
				printStoreStats(w, s.name, st, time.Now())
			}
			return nil
		},
	}

	cacheCleanCmd = &cobra.Command{
		Use:   "clean",
		Short: "Apply the cleanup policy now",
		Long:  paragraph(fmt.Sprintf("\n%s output files older than cleanup.output_max_age and trim the cache to cleanup.cache_max_entries.", keyword("Remove"))),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cacheStore, outputStore, err := openStores(log.Default())
			if err != nil {
				return err
			}
			janitor := tts.NewJanitor(outputStore, cacheStore, tts.PolicyFromConfig(cfg.Cleanup), tts.SystemClock{}, log.Default())
			report := janitor.RunNow()

			w := cmd.OutOrStdout()
			printEviction(w, "output", report.Output)
			printEviction(w, "cache", report.Cache)
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached and output file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cacheStore, outputStore, err := openStores(log.Default())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			printEviction(w, "output", outputStore.Clear())
			printEviction(w, "cache", cacheStore.Clear())
			return nil
		},
	}
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheCleanCmd, cacheClearCmd)
}

func printStoreStats(w io.Writer, name string, st cache.Stats, now time.Time) {
	fmt.Fprintf(w, "%s %s\n", keyword(name), faint(st.Dir))
	fmt.Fprintf(w, "  %d files, %s\n", st.ItemCount, humanize.Bytes(uint64(st.Size))) //nolint:gosec
	if st.ItemCount > 0 {
		fmt.Fprintf(w, "  oldest %s, newest %s\n",
			humanize.RelTime(st.Oldest, now, "ago", "from now"),
			humanize.RelTime(st.Newest, now, "ago", "from now"))
	}
}

func printEviction(w io.Writer, name string, r cache.EvictionReport) {
	fmt.Fprintf(w, "%s removed %d of %d files, freed %s",
		keyword(name), r.RemovedCount(), r.Scanned, humanize.Bytes(uint64(r.Freed))) //nolint:gosec
	if r.Failed > 0 {
		fmt.Fprintf(w, " (%d could not be removed)", r.Failed)
	}
	fmt.Fprintln(w)
}
