package player

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"ytmdremote/internal/core"
	"ytmdremote/pkg/text"
)

const (
	unknownTitle  = "Unknown Title"
	unknownArtist = "Unknown Artist"
	separatorRun  = "•"
)

// fallbackThumbnail is the stable image URL every video id has.
func fallbackThumbnail(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

// parseQueue reads the renderer-shaped /queue payload. Items without a video
// id are dropped and positions are dense over the kept items.
func parseQueue(body []byte) []core.QueueEntry {
	root := gjson.ParseBytes(body)

	var entries []core.QueueEntry
	for _, item := range root.Get("items").Array() {
		renderer := item.Get("playlistPanelVideoRenderer")
		if !renderer.Exists() {
			renderer = item.Get("playlistPanelVideoWrapperRenderer.primaryRenderer.playlistPanelVideoRenderer")
		}
		if !renderer.Exists() {
			continue
		}

		id := renderer.Get("videoId").String()
		if id == "" {
			continue
		}

		title := renderer.Get("title.runs.0.text").String()
		if title == "" {
			title = unknownTitle
		}

		artist := unknownArtist
		for _, run := range renderer.Get("longBylineText.runs").Array() {
			if t := run.Get("text").String(); isContentRun(t) {
				artist = t
				break
			}
		}

		thumbnail := lastURL(renderer.Get("thumbnail.thumbnails"))
		if thumbnail == "" {
			thumbnail = fallbackThumbnail(id)
		}

		entries = append(entries, core.QueueEntry{
			Track: core.Track{
				ID:           id,
				Title:        title,
				Artist:       artist,
				DurationText: renderer.Get("lengthText.runs.0.text").String(),
				ThumbnailURL: thumbnail,
			},
			Position:  len(entries),
			IsCurrent: renderer.Get("selected").Bool(),
		})
	}
	return entries
}

// parseSong reads /song. Field names differ between player versions, so each
// value walks an ordered list of candidates.
func parseSong(body []byte) core.PlaybackState {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return core.NoCurrentTrack
	}
	root := gjson.ParseBytes(body)

	state := core.PlaybackState{
		PositionSeconds: max(0, firstNumber(root, "elapsedSeconds", "elapsed", "currentTime", "time")),
		DurationSeconds: max(0, firstNumber(root, "songDuration", "duration", "length")),
		IsPaused:        true,
		RepeatMode:      core.RepeatNone,
	}

	if paused, ok := firstBool(root, "isPaused", "paused"); ok {
		state.IsPaused = paused
	} else if s := root.Get("state"); s.Exists() {
		state.IsPaused = s.String() == "paused"
	}

	id := root.Get("videoId").String()
	if id == "" {
		return state
	}

	thumbnail := root.Get("imageSrc").String()
	if thumbnail == "" {
		thumbnail = lastURL(root.Get("thumbnails"))
	}
	if thumbnail == "" {
		thumbnail = fallbackThumbnail(id)
	}

	durationText := ""
	if state.DurationSeconds > 0 {
		durationText = text.FormatTime(state.DurationSeconds)
	}

	state.CurrentTrack = &core.Track{
		ID:           id,
		Title:        root.Get("title").String(),
		Artist:       root.Get("artist").String(),
		Album:        root.Get("album").String(),
		DurationText: durationText,
		ThumbnailURL: thumbnail,
	}
	return state
}

func parseVolume(body []byte) core.VolumeState {
	root := gjson.ParseBytes(body)
	muted, _ := firstBool(root, "isMuted", "muted")
	return core.VolumeState{
		Percent: int(math.Round(firstNumber(root, "state", "volume", "level"))),
		IsMuted: muted,
	}
}

func parseRepeatMode(body []byte) core.RepeatMode {
	switch mode := core.RepeatMode(gjson.GetBytes(body, "mode").String()); mode {
	case core.RepeatAll, core.RepeatOne:
		return mode
	default:
		return core.RepeatNone
	}
}

// parseSearch normalizes the several result layouts /search is known to
// return. The payload may also arrive as a JSON string holding the object.
func parseSearch(body []byte) []core.Track {
	root := gjson.ParseBytes(body)
	if root.Type == gjson.String {
		root = gjson.Parse(root.Str)
	}

	var tracks []core.Track
	for _, item := range searchItems(root) {
		if t, ok := searchTrack(item); ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

func searchItems(root gjson.Result) []gjson.Result {
	if tabs := root.Get("contents.tabbedSearchResultsRenderer.tabs"); tabs.IsArray() {
		list := tabs.Array()
		if len(list) == 0 {
			return nil
		}
		chosen := list[0]
		for _, tab := range list {
			if title := strings.ToLower(tab.Get("tabRenderer.title").String()); title == "songs" || title == "歌曲" {
				chosen = tab
				break
			}
		}
		return shelfItems(chosen.Get("tabRenderer.content.sectionListRenderer.contents"))
	}
	if sections := root.Get("contents.sectionListRenderer.contents"); sections.Exists() {
		return shelfItems(sections)
	}
	if tabs := root.Get("contents.singleColumnBrowseResultsRenderer.tabs"); tabs.Exists() {
		return shelfItems(tabs.Get("0.tabRenderer.content.sectionListRenderer.contents"))
	}
	if root.IsArray() {
		return root.Array()
	}
	return root.Get("items").Array()
}

func shelfItems(sections gjson.Result) []gjson.Result {
	var items []gjson.Result
	for _, section := range sections.Array() {
		items = append(items, section.Get("musicShelfRenderer.contents").Array()...)
	}
	return items
}

func flexRuns(renderer gjson.Result, column int) gjson.Result {
	return renderer.Get(fmt.Sprintf("flexColumns.%d.musicResponsiveListItemFlexColumnRenderer.text.runs", column))
}

func searchTrack(item gjson.Result) (core.Track, bool) {
	r := item.Get("musicResponsiveListItemRenderer")
	if !r.Exists() {
		r = item
	}

	id := firstString(r,
		"videoId",
		"playlistItemData.videoId",
		"navigationEndpoint.watchEndpoint.videoId",
		"overlay.musicItemThumbnailOverlayRenderer.content.musicPlayButtonRenderer.playNavigationEndpoint.watchEndpoint.videoId",
		"flexColumns.0.musicResponsiveListItemFlexColumnRenderer.text.runs.0.navigationEndpoint.watchEndpoint.videoId",
	)
	title := firstString(r,
		"flexColumns.0.musicResponsiveListItemFlexColumnRenderer.text.runs.0.text",
		"title.runs.0.text",
		"title.text",
		"title",
	)
	if id == "" || title == "" {
		return core.Track{}, false
	}

	var artist string
	if runs := flexRuns(r, 1); runs.IsArray() {
		var parts []string
		for _, run := range runs.Array() {
			if t := run.Get("text").String(); isContentRun(t) {
				parts = append(parts, t)
			}
		}
		artist = strings.TrimSpace(strings.Join(parts, " "))
	} else {
		artist = firstString(r, "artists.0.name", "artist.name", "longBylineText.runs.0.text")
	}

	thumbnail := firstString(r,
		"thumbnail.musicThumbnailRenderer.thumbnail.thumbnails.0.url",
		"thumbnails.0.url",
		"thumbnail.thumbnails.0.url",
	)
	if thumbnail == "" {
		thumbnail = fallbackThumbnail(id)
	}

	return core.Track{
		ID:     id,
		Title:  title,
		Artist: artist,
		Album: firstString(r,
			"flexColumns.2.musicResponsiveListItemFlexColumnRenderer.text.runs.0.text",
			"album.name",
			"album",
		),
		DurationText: firstString(r,
			"fixedColumns.0.musicResponsiveListItemFixedColumnRenderer.text.runs.0.text",
			"duration.text",
			"duration.runs.0.text",
			"duration",
		),
		ThumbnailURL: thumbnail,
	}, true
}

func isContentRun(t string) bool {
	t = strings.TrimSpace(t)
	return t != "" && t != separatorRun
}

// firstString returns the first candidate that holds a non-empty string.
func firstString(r gjson.Result, paths ...string) string {
	for _, path := range paths {
		if v := r.Get(path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// firstNumber returns the first present, non-null candidate as a number.
// Numeric strings are accepted, including "m:ss" clock text. NaN, infinities
// and anything else count as 0 without falling through to later candidates.
func firstNumber(r gjson.Result, paths ...string) float64 {
	for _, path := range paths {
		v := r.Get(path)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		switch v.Type {
		case gjson.Number:
			return v.Num
		case gjson.String:
			s := strings.TrimSpace(v.Str)
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					return 0
				}
				return f
			}
			if f, err := text.ParseDuration(s); err == nil {
				return f
			}
		}
		return 0
	}
	return 0
}

// firstBool returns the first present, non-null candidate as a bool.
func firstBool(r gjson.Result, paths ...string) (bool, bool) {
	for _, path := range paths {
		v := r.Get(path)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		return v.Bool(), true
	}
	return false, false
}

func lastURL(thumbnails gjson.Result) string {
	list := thumbnails.Array()
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1].Get("url").String()
}
