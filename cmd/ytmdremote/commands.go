package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ytmdremote/internal/core"
	"ytmdremote/internal/player"
	"ytmdremote/pkg/musiclink"
	"ytmdremote/pkg/text"
)

const commandTimeout = 2 * time.Minute

func addClientCommands(root *cobra.Command) {
	playCmd := &cobra.Command{
		Use:   "play <link-or-id>",
		Short: "Play a track now, keeping the rest of the queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlay,
	}

	enqueueCmd := &cobra.Command{
		Use:   "enqueue <link-or-id>",
		Short: "Add a track to the queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnqueue,
	}
	enqueueCmd.Flags().Bool("next", false, "Insert right after the playing track")

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Print the remote queue",
		Args:  cobra.NoArgs,
		RunE:  runQueue,
	}

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Print the current playback state",
		Args:  cobra.NoArgs,
		RunE:  runState,
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the player for tracks",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print recommendations for the active handle",
		Args:  cobra.NoArgs,
		RunE:  runRecommend,
	}
	recommendCmd.Flags().Int("limit", 0, "Number of recommendations (default from --recommendation-limit)")

	root.AddCommand(playCmd, enqueueCmd, queueCmd, stateCmd, searchCmd, recommendCmd)
}

func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func newCommandSession() (*core.Session, error) {
	playerClient, err := newPlayerClient()
	if err != nil {
		return nil, err
	}
	profiles, _, err := newProfileStore()
	if err != nil {
		return nil, err
	}
	return core.NewSession(config, playerClient, profiles, logger.Named("session")), nil
}

// resolveTrack turns a link or bare id into a track. Metadata lookup is best
// effort; the id alone is enough for the player.
func resolveTrack(ctx context.Context, input string) (core.Track, error) {
	id, err := musiclink.VideoID(input)
	if err != nil {
		return core.Track{}, fmt.Errorf("failed to resolve %q: %w", input, err)
	}

	meta, err := musiclink.NewResolver().Resolve(ctx, id)
	if err != nil {
		logger.Warn("Failed to fetch track metadata, continuing", zap.String("videoId", id), zap.Error(err))
		return core.Track{ID: id, Title: id}, nil
	}
	return core.Track{
		ID:           id,
		Title:        meta.Title,
		Artist:       meta.Artist,
		ThumbnailURL: meta.ThumbnailURL,
	}, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	session, err := newCommandSession()
	if err != nil {
		return err
	}
	track, err := resolveTrack(ctx, args[0])
	if err != nil {
		return err
	}

	state, err := session.PlayNow(ctx, track)
	if err != nil {
		return fmt.Errorf("failed to play %s: %w", track.ID, err)
	}
	printState(cmd.OutOrStdout(), state)
	return nil
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	session, err := newCommandSession()
	if err != nil {
		return err
	}
	track, err := resolveTrack(ctx, args[0])
	if err != nil {
		return err
	}

	mode := core.InsertAtEnd
	if next, _ := cmd.Flags().GetBool("next"); next {
		mode = core.InsertAfterCurrent
	}
	if err := session.AddToQueue(ctx, track, mode); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", track.ID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s\n", describe(track))
	return nil
}

func runQueue(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	playerClient, err := newPlayerClient()
	if err != nil {
		return err
	}
	queue, err := playerClient.GetQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	printQueue(cmd.OutOrStdout(), queue)
	return nil
}

func runState(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	playerClient, err := newPlayerClient()
	if err != nil {
		return err
	}
	state := playerClient.GetCurrentTrack(ctx)
	volume := playerClient.GetVolume(ctx)
	state.VolumePercent = volume.Percent
	state.IsMuted = volume.IsMuted
	state.RepeatMode = playerClient.GetRepeatMode(ctx)
	state.IsShuffled = playerClient.GetShuffle(ctx)
	printState(cmd.OutOrStdout(), state)
	if state.CurrentTrack != nil {
		printRating(cmd.OutOrStdout(), playerClient.GetLikeState(ctx))
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	playerClient, err := newPlayerClient()
	if err != nil {
		return err
	}
	tracks, err := playerClient.Search(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("failed to search: %w", err)
	}
	printTracks(cmd.OutOrStdout(), tracks)
	return nil
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	if config.App.Handle == "" {
		return errors.New("a handle is required (--handle or YTMDREMOTE_HANDLE)")
	}

	ctx, cancel := commandContext()
	defer cancel()

	session, err := newCommandSession()
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	tracks, err := session.Recommendations(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to get recommendations: %w", err)
	}
	printTracks(cmd.OutOrStdout(), tracks)
	return nil
}

func describe(track core.Track) string {
	if track.Artist == "" {
		return fmt.Sprintf("%s [%s]", track.Title, track.ID)
	}
	return fmt.Sprintf("%s - %s [%s]", track.Artist, track.Title, track.ID)
}

func printQueue(w io.Writer, queue []core.QueueEntry) {
	if len(queue) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	for _, entry := range queue {
		marker := " "
		if entry.IsCurrent {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %5s  %s", marker, humanize.Ordinal(entry.Position+1), describe(entry.Track))
		if entry.Track.DurationText != "" {
			fmt.Fprintf(w, "  %s", entry.Track.DurationText)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%s tracks\n", humanize.Comma(int64(len(queue))))
}

func printTracks(w io.Writer, tracks []core.Track) {
	if len(tracks) == 0 {
		fmt.Fprintln(w, "No tracks")
		return
	}
	for i, track := range tracks {
		fmt.Fprintf(w, "%2d. %s\n", i+1, describe(track))
	}
}

func printState(w io.Writer, state core.PlaybackState) {
	if state.CurrentTrack == nil {
		fmt.Fprintln(w, "Nothing playing")
		return
	}

	status := "Playing"
	if state.IsPaused {
		status = "Paused"
	}
	fmt.Fprintf(w, "%s: %s\n", status, describe(*state.CurrentTrack))
	fmt.Fprintf(w, "  %s / %s\n", text.FormatTime(state.PositionSeconds), text.FormatTime(state.DurationSeconds))

	volume := fmt.Sprintf("%d%%", state.VolumePercent)
	if state.IsMuted {
		volume += " (muted)"
	}
	fmt.Fprintf(w, "  volume %s, repeat %s, shuffle %t\n", volume, state.RepeatMode, state.IsShuffled)
	if state.IsLiked != nil {
		fmt.Fprintf(w, "  liked %t\n", *state.IsLiked)
	}
}

func printRating(w io.Writer, rating player.LikeState) {
	if rating == player.LikeUnknown {
		return
	}
	fmt.Fprintf(w, "  rated %s\n", strings.ToLower(string(rating)))
}
