package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/llehouerou/crate/internal/errmsg"
	"github.com/llehouerou/crate/internal/library"
	"github.com/llehouerou/crate/internal/recents"
	"github.com/llehouerou/crate/internal/render"
	"github.com/llehouerou/crate/internal/search"
	"github.com/llehouerou/crate/internal/stats"
	"github.com/llehouerou/crate/internal/store"
)

// Column widths: id, title, artist, duration.
var trackColumns = []int{7, 40, 24, 8}

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search titles, artists, albums, genres and lyrics",
	Long: `Search the full-text index. Every word is matched as a prefix and a
track matches when any word does; results are ranked by relevance.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Listening statistics",
}

var statsTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Most played artists",
	Args:  cobra.NoArgs,
	RunE:  runStatsTop,
}

var statsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete daily counters older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  runStatsPrune,
}

var recentsCmd = &cobra.Command{
	Use:   "recents",
	Short: "Recently opened albums, playlists and artists",
	Args:  cobra.NoArgs,
	RunE:  runRecents,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Recently played tracks",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var importsCmd = &cobra.Command{
	Use:   "imports <batch-id>",
	Short: "Show the records of one import batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runImports,
}

func init() {
	rootCmd.AddCommand(searchCmd, statsCmd, recentsCmd, historyCmd, importsCmd)
	statsCmd.AddCommand(statsTopCmd, statsPruneCmd)

	searchCmd.Flags().Int("limit", search.DefaultLimit, "maximum number of results")
	statsTopCmd.Flags().Int("days", 30, "only count plays from the last N days")
	statsTopCmd.Flags().Int("limit", 10, "number of artists")
	statsPruneCmd.Flags().Int("days", 0, "keep the last N days (default: stats_retention_days)")
	recentsCmd.Flags().String("kind", "", "album, playlist or artist (default: albums and playlists)")
	recentsCmd.Flags().Int("limit", 20, "number of items")
	historyCmd.Flags().Int("limit", 20, "number of plays")
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	tracks, err := s.Search(ctx, query, limit)
	if err != nil {
		return failWith(errmsg.OpSearch, query, err)
	}
	names, err := artistNames(ctx, s, tracks)
	if err != nil {
		return failWith(errmsg.OpSearch, query, err)
	}

	w := cmd.OutOrStdout()
	if len(tracks) == 0 {
		fmt.Fprintln(w, "No matches")
		return nil
	}
	for _, t := range tracks {
		fmt.Fprintln(w, trackLine(t, names))
	}
	return nil
}

func trackLine(t library.Track, artists map[int64]library.Artist) string {
	artist := ""
	if t.ArtistID != nil {
		artist = artists[*t.ArtistID].Name
	}
	title := t.Title
	if t.Missing {
		title += " (missing)"
	}
	return render.Columns(trackColumns,
		strconv.FormatInt(t.ID, 10), title, artist, render.Duration(t.Duration))
}

func artistNames(ctx context.Context, s *store.Store, tracks []library.Track) (map[int64]library.Artist, error) {
	ids := make([]int64, 0, len(tracks))
	for _, t := range tracks {
		if t.ArtistID != nil {
			ids = append(ids, *t.ArtistID)
		}
	}
	return s.Library.ArtistsByID(ctx, ids)
}

func runStatsTop(cmd *cobra.Command, _ []string) error {
	days, _ := cmd.Flags().GetInt("days")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	since := stats.Day(time.Now().AddDate(0, 0, -days))
	top, err := s.Stats.TopArtists(ctx, since, limit)
	if err != nil {
		return fail(errmsg.OpStatsTop, err)
	}
	ids := make([]int64, len(top))
	for i, a := range top {
		ids[i] = a.ArtistID
	}
	names, err := s.Library.ArtistsByID(ctx, ids)
	if err != nil {
		return fail(errmsg.OpStatsTop, err)
	}

	w := cmd.OutOrStdout()
	for i, a := range top {
		fmt.Fprintln(w, render.Columns([]int{4, 40},
			humanize.Ordinal(i+1), names[a.ArtistID].Name, humanize.Comma(a.Plays)+" plays"))
	}
	return nil
}

func runStatsPrune(cmd *cobra.Command, _ []string) error {
	days, _ := cmd.Flags().GetInt("days")

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cutoff := s.StatsCutoff(time.Now())
	if days > 0 {
		cutoff = stats.Day(time.Now().AddDate(0, 0, -days))
	}
	n, err := s.Stats.Prune(cmd.Context(), cutoff)
	if err != nil {
		return fail(errmsg.OpStatsPrune, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s counters before %s\n",
		humanize.Comma(n), stats.DayTime(cutoff, time.Local).Format(time.DateOnly))
	return nil
}

func runRecents(cmd *cobra.Command, _ []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	if kind != "" && !recents.Kind(kind).Valid() {
		return fail(errmsg.OpRecents, fmt.Errorf("%w: %q", recents.ErrUnknownKind, kind))
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	var items []recents.Item
	if kind == "" {
		items, err = s.Recents.Combined(ctx, limit)
	} else {
		items, err = s.Recents.List(ctx, recents.Kind(kind), limit)
	}
	if err != nil {
		return fail(errmsg.OpRecents, err)
	}

	w := cmd.OutOrStdout()
	for _, it := range items {
		name, err := recentName(ctx, s, it)
		if err != nil {
			return fail(errmsg.OpRecents, err)
		}
		fmt.Fprintln(w, render.Columns([]int{9, 40, 20},
			string(it.Kind), name, humanize.Time(time.Unix(it.LastOpenedAt, 0))))
	}
	return nil
}

// recentName resolves the display name of a recent item. Items whose
// entity is gone show as "#id (deleted)" until the next repair.
func recentName(ctx context.Context, s *store.Store, it recents.Item) (string, error) {
	name := ""
	switch it.Kind {
	case recents.KindAlbum:
		a, err := s.Library.Album(ctx, it.ID)
		if err != nil {
			return "", err
		}
		if a != nil {
			name = a.Title
		}
	case recents.KindPlaylist:
		p, err := s.Playlists.Get(ctx, it.ID)
		if err != nil {
			return "", err
		}
		if p != nil {
			name = p.Name
		}
	case recents.KindArtist:
		a, err := s.Library.Artist(ctx, it.ID)
		if err != nil {
			return "", err
		}
		if a != nil {
			name = a.Name
		}
	}
	if name == "" {
		return fmt.Sprintf("#%d (deleted)", it.ID), nil
	}
	return name, nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	entries, err := s.History.Recent(ctx, limit)
	if err != nil {
		return fail(errmsg.OpHistory, err)
	}

	w := cmd.OutOrStdout()
	for _, e := range entries {
		title := e.Source + ":" + e.SourceTrackID
		t, err := s.Library.TrackByKey(ctx, library.Source(e.Source), e.SourceTrackID)
		if err != nil {
			return fail(errmsg.OpHistory, err)
		}
		if t != nil {
			title = t.Title
		}
		fmt.Fprintln(w, render.Columns([]int{20, 50}, humanize.Time(time.Unix(e.PlayedAt, 0)), title))
	}
	return nil
}

func runImports(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.Imports.ListBatch(cmd.Context(), args[0])
	if err != nil {
		return failWith(errmsg.OpImportBatch, args[0], err)
	}

	w := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintf(w, "No records in batch %s\n", args[0])
		return nil
	}
	for _, r := range records {
		detail := r.OriginalURI
		if r.Error != nil {
			detail += ": " + *r.Error
		}
		fmt.Fprintln(w, render.Columns([]int{7, 17, 17, 60},
			strconv.FormatInt(r.ID, 10), string(r.Mode), string(r.State), detail))
	}
	return nil
}
