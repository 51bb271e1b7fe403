package resolver

import "strings"

// IsYouTubeURL reports whether raw points at YouTube.
func IsYouTubeURL(raw string) bool {
	return strings.Contains(raw, "youtube.com") || strings.Contains(raw, "youtu.be")
}

// IsYouTubePlaylistURL reports whether raw is a playlist page rather
// than a single video that merely carries a "list=" parameter (radio
// mixes and autoplay queues attach one to every watch URL).
func IsYouTubePlaylistURL(raw string) bool {
	return strings.Contains(raw, "/playlist?") && strings.Contains(raw, "list=")
}
