package analytics

import (
	"fmt"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/elonfeng/vidpulse/internal/store"
)

// Level is the severity of a suggestion.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Suggestion is one optimization hint for a video.
type Suggestion struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Suggest applies the optimization rules to a video and its latest
// snapshot. A nil video or snapshot yields no suggestions.
func Suggest(v *store.Video, latest *store.StatSnapshot) []Suggestion {
	if v == nil || latest == nil {
		return nil
	}

	var out []Suggestion
	add := func(l Level, title, msg string) {
		out = append(out, Suggestion{Level: l, Title: title, Message: msg})
	}

	views := latest.ViewCount
	switch {
	case views < 1000:
		add(LevelWarning, "Low views",
			fmt.Sprintf("%s views so far. Rework the title and thumbnail and make the first 30 seconds count.", humanize.Comma(views)))
	case views < 10000:
		add(LevelInfo, "Room to grow",
			fmt.Sprintf("%s views so far. Compare with your best performing videos and tighten the structure.", humanize.Comma(views)))
	}

	if latest.LikeCount > 0 && views > 0 {
		rate := float64(latest.LikeCount) / float64(views) * 100
		if rate < 2 {
			add(LevelWarning, "Low like rate",
				fmt.Sprintf("Like rate is %.2f%%. Ask viewers to like and comment in the video.", rate))
		}
	}

	if latest.CommentCount < 10 {
		add(LevelInfo, "Few comments", "End the video with a question to start a discussion.")
	}

	switch n := utf8.RuneCountInString(v.Title); {
	case n < 30:
		add(LevelInfo, "Short title", "Use a longer title with more keywords to rank better in search.")
	case n > 100:
		add(LevelWarning, "Long title", "Shorten the title and keep the key information in the first 50 characters.")
	}

	if utf8.RuneCountInString(v.Description) < 200 {
		add(LevelInfo, "Short description", "Add keywords and a summary of the content to the description.")
	}
	return out
}

// LengthStatus grades a text length against a recommended range.
type LengthStatus string

const (
	LengthShort LengthStatus = "short"
	LengthGood  LengthStatus = "good"
	LengthLong  LengthStatus = "long"
)

// LengthCheck is the graded length of one field.
type LengthCheck struct {
	Length int          `json:"length"`
	Min    int          `json:"min"`
	Max    int          `json:"max"`
	Status LengthStatus `json:"status"`
}

// SEOReport grades the title and description lengths.
type SEOReport struct {
	Title       LengthCheck `json:"title"`
	Description LengthCheck `json:"description"`
}

// SEO checks the title against 30 to 60 characters and the description
// against 200 to 500.
func SEO(v *store.Video) SEOReport {
	return SEOReport{
		Title:       checkLength(v.Title, 30, 60),
		Description: checkLength(v.Description, 200, 500),
	}
}

func checkLength(s string, lo, hi int) LengthCheck {
	n := utf8.RuneCountInString(s)
	c := LengthCheck{Length: n, Min: lo, Max: hi, Status: LengthGood}
	switch {
	case n < lo:
		c.Status = LengthShort
	case n > hi:
		c.Status = LengthLong
	}
	return c
}
