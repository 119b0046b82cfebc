package musiclink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// OEmbedURL is the YouTube oEmbed endpoint.
	OEmbedURL = "https://www.youtube.com/oembed"
	// RequestTimeout bounds a single oEmbed request.
	RequestTimeout = 10 * time.Second
)

var (
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

	// Video decorations stripped from oEmbed titles.
	titleNoise = regexp.MustCompile(`(?i)\s*[(\[](official (music )?video|official audio|lyric video|lyrics|visualizer|hd|4k)[)\]]`)

	camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
)

// pathPrefixes carry the id as the next path segment.
var pathPrefixes = []string{"shorts", "embed", "live", "v"}

// IsVideoID reports whether s has the shape of a YouTube video id.
func IsVideoID(s string) bool {
	return videoIDPattern.MatchString(s)
}

// IsYouTubeHost reports whether host serves YouTube or YouTube Music pages.
func IsYouTubeHost(host string) bool {
	switch strings.ToLower(host) {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// VideoID extracts the video id from a bare id or any common YouTube link form.
func VideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if IsVideoID(input) {
		return input, nil
	}

	if !strings.Contains(input, "://") {
		input = "https://" + input
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("failed to parse link: %w", err)
	}
	if !IsYouTubeHost(u.Hostname()) {
		return "", ErrNotYouTube
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch {
	case strings.EqualFold(u.Hostname(), "youtu.be"):
		id = segments[0]
	case u.Query().Get("v") != "":
		id = u.Query().Get("v")
	case len(segments) == 2:
		for _, prefix := range pathPrefixes {
			if segments[0] == prefix {
				id = segments[1]
			}
		}
	}

	if !IsVideoID(id) {
		return "", ErrNoVideoID
	}
	return id, nil
}

// Resolver looks up video metadata through oEmbed.
type Resolver struct {
	client   *http.Client
	endpoint string
}

// NewResolver creates a resolver against the public oEmbed endpoint.
func NewResolver() *Resolver {
	return &Resolver{
		client:   &http.Client{Timeout: RequestTimeout},
		endpoint: OEmbedURL,
	}
}

type oEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Resolve parses input with VideoID and fetches the video's title and artist.
func (r *Resolver) Resolve(ctx context.Context, input string) (Metadata, error) {
	id, err := VideoID(input)
	if err != nil {
		return Metadata{}, err
	}

	watchURL := "https://www.youtube.com/watch?v=" + id
	reqURL := fmt.Sprintf("%s?url=%s&format=json", r.endpoint, url.QueryEscape(watchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to create oEmbed request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to fetch oEmbed data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("oEmbed returned status %d", resp.StatusCode)
	}

	var body oEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Metadata{}, fmt.Errorf("failed to decode oEmbed response: %w", err)
	}

	return Metadata{
		VideoID:      id,
		Title:        CleanTitle(body.Title),
		Artist:       ArtistFrom(body.Title, body.AuthorName),
		ThumbnailURL: body.ThumbnailURL,
	}, nil
}

// CleanTitle drops decorations such as "(Official Video)" from a video title.
func CleanTitle(title string) string {
	return strings.TrimSpace(titleNoise.ReplaceAllString(title, ""))
}

// ArtistFrom guesses the artist from the channel name, falling back to an
// "Artist - Title" video title and then to the channel name itself.
func ArtistFrom(title, channel string) string {
	switch {
	case strings.HasSuffix(channel, "VEVO"):
		return camelBoundary.ReplaceAllString(strings.TrimSuffix(channel, "VEVO"), "$1 $2")
	case strings.HasSuffix(channel, " - Topic"):
		return strings.TrimSuffix(channel, " - Topic")
	}
	if artist, _, ok := strings.Cut(title, " - "); ok {
		return strings.TrimSpace(artist)
	}
	return channel
}
