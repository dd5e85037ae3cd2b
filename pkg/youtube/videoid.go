package youtube

import (
	"regexp"
	"strings"
)

var (
	bareIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	urlIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?(?:[^#\s]*&)?v=|youtu\.be/|youtube\.com/embed/)([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/shorts/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/v/([A-Za-z0-9_-]{11})`),
	}
)

// ExtractVideoID returns the 11 character video id from a bare id or one of
// the known watch, short-link, embed, shorts and /v/ URL shapes.
func ExtractVideoID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if bareIDPattern.MatchString(input) {
		return input, true
	}
	for _, re := range urlIDPatterns {
		if m := re.FindStringSubmatch(input); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// WatchURL returns the canonical watch page of a video.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
