// Package musiclink turns YouTube and YouTube Music links into video ids and
// fetches display metadata for them.
package musiclink

import "errors"

var (
	// ErrNotYouTube is returned for links to other sites.
	ErrNotYouTube = errors.New("not a YouTube link")
	// ErrNoVideoID is returned for YouTube links that do not point at a video.
	ErrNoVideoID = errors.New("no video id in link")
)

// Metadata describes a video as reported by oEmbed.
type Metadata struct {
	VideoID      string
	Title        string
	Artist       string
	ThumbnailURL string
}
