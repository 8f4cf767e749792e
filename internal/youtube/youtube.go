// Package youtube normalizes user-supplied video references to bare video IDs.
package youtube

import (
	"regexp"
	"strings"
)

// IDLength is the length of every YouTube video ID.
const IDLength = 11

// idPattern captures the ID segment of the URL shapes YouTube hands out:
// youtu.be/<id>, /v/<id>, /u/<x>/<id>, embed/<id>, watch?v=<id> and &v=<id>.
var idPattern = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

// LooksLikeURL reports whether raw should be parsed as a YouTube URL rather
// than taken as an already-resolved ID.
func LooksLikeURL(raw string) bool {
	s := strings.ToLower(raw)
	return strings.Contains(s, "youtube.com") || strings.Contains(s, "youtu.be")
}

// NormalizeID returns the video ID for raw.
//
// Non-URL input is returned unchanged (after trimming). For URL input the
// extracted segment must be exactly IDLength characters; anything else yields
// "" which callers treat as "no valid ID".
func NormalizeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if !LooksLikeURL(raw) {
		return raw
	}

	m := idPattern.FindStringSubmatch(raw)
	if m == nil || len(m[2]) != IDLength {
		return ""
	}
	return m[2]
}
