package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/llehouerou/crate/internal/errmsg"
	"github.com/llehouerou/crate/internal/render"
	"github.com/llehouerou/crate/internal/repair"
)

const summaryWidth = 36

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Delete rows that point at entities which no longer exist",
	Long: `Run one consistency pass: queue items, history, playback rows, lyrics,
overrides, playlist entries, import records, recents, listening stats and
search rows left behind by deleted entities are removed. Playlists and the
queue are renumbered afterwards. A failed pass changes nothing.`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Prune old listening stats, then repair",
	Args:  cobra.NoArgs,
	RunE:  runMaintain,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the full-text search index from scratch",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <track-id>",
	Short: "Delete a track and everything that refers to it",
	Long: `Delete a track with its queue items, history, playback rows, lyrics,
overrides, playlist entries, import records and search row.

With --remove-file the audio file is deleted too, but only when it was
imported by copy into the library directory. Referenced files are never
touched.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(repairCmd, maintainCmd, reindexCmd, deleteCmd)

	deleteCmd.Flags().Bool("remove-file", false, "also delete the file if it is a library copy")
}

func runRepair(cmd *cobra.Command, _ []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	summary, err := s.Repair(cmd.Context())
	if err != nil {
		return fail(errmsg.OpRepair, err)
	}
	printSummary(cmd.OutOrStdout(), summary)
	return nil
}

func runMaintain(cmd *cobra.Command, _ []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	now := time.Now()
	res, err := s.Maintain(cmd.Context(), now)
	if err != nil {
		return fail(errmsg.OpMaintain, err)
	}

	w := cmd.OutOrStdout()
	cutoff := strconv.Itoa(s.StatsCutoff(now))
	fmt.Fprintln(w, render.Row("stats pruned (before "+cutoff+")", humanize.Comma(res.StatsPruned), summaryWidth))
	printSummary(w, res.Repair)
	return nil
}

func runReindex(cmd *cobra.Command, _ []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	if err := s.Reindex(cmd.Context()); err != nil {
		return fail(errmsg.OpReindex, err)
	}
	n, err := s.Library.TrackCount(cmd.Context())
	if err != nil {
		return fail(errmsg.OpReindex, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %s tracks in %s\n",
		humanize.Comma(int64(n)), time.Since(start).Round(time.Millisecond))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return failWith(errmsg.OpTrackDelete, args[0], err)
	}
	removeFile, _ := cmd.Flags().GetBool("remove-file")

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.DeleteTrack(cmd.Context(), id, removeFile)
	if err != nil {
		if res != nil && res.Track.FileRef != nil {
			return failWith(errmsg.OpFileDelete, *res.Track.FileRef, err)
		}
		return failWith(errmsg.OpTrackDelete, args[0], err)
	}

	w := cmd.OutOrStdout()
	if res == nil {
		fmt.Fprintf(w, "No track with id %d\n", id)
		return nil
	}
	fmt.Fprintf(w, "Deleted %q\n", render.Sanitize(res.Track.Title))
	if res.FileRemoved {
		fmt.Fprintf(w, "Removed %s\n", *res.Track.FileRef)
	}
	return nil
}

func printSummary(w io.Writer, s repair.Summary) {
	for _, c := range s.Categories() {
		if c.Removed == 0 {
			continue
		}
		fmt.Fprintln(w, render.Row(c.Name, humanize.Comma(c.Removed), summaryWidth))
	}
	if s.Renumbered > 0 {
		fmt.Fprintln(w, render.Row("renumbered lists", humanize.Comma(s.Renumbered), summaryWidth))
	}
	fmt.Fprintln(w, render.Separator(summaryWidth))
	fmt.Fprintln(w, render.Row("removed", humanize.Comma(s.Total()), summaryWidth))
}
