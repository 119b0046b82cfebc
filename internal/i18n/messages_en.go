package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Playback and queue notifications
	"notify.now_playing":        "Now playing: %s - %s",
	"notify.added_to_queue":     "Added to queue: %s",
	"notify.added_next":         "Playing next: %s",
	"notify.removed_from_queue": "Removed from queue: %s",
	"notify.queue_cleared":      "Cleared %d tracks from the queue",
	"notify.repeat_mode":        "Repeat: %s",
	"notify.shuffle_on":         "Shuffle on",
	"notify.shuffle_off":        "Shuffle off",

	// Profile notifications
	"notify.liked":      "Liked: %s",
	"notify.unliked":    "Removed from likes: %s",
	"notify.handle_set": "Signed in as %s",

	// Error messages
	"error.play_failed":       "Could not play %s: %s",
	"error.add_failed":        "Could not add %s to the queue",
	"error.track_not_visible": "Added %s but it never showed up in the queue",
	"error.remove_current":    "The track that is playing cannot be removed",
	"error.remove_failed":     "Could not remove the track from the queue",
	"error.move_failed":       "Could not move the track",
	"error.jump_failed":       "Could not jump to the track",
	"error.clear_failed":      "Could not clear the queue",
	"error.no_handle":         "Please enter a nickname first",
	"error.like_failed":       "Could not update your likes",
	"error.in_flight":         "%s is already being processed",
	"error.search_failed":     "Search failed",
	"error.generic":           "Something went wrong. Please try again.",

	// Reasons used inside error.play_failed
	"reason.not_found":      "it never appeared in the queue",
	"reason.enqueue_failed": "the player rejected the request",
	"reason.select_failed":  "the player could not switch tracks",
	"reason.unavailable":    "the player is not reachable",
}
