package analytics

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/elonfeng/vidpulse/internal/store"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// stopwords covers common English function words and frequent Chinese
// particles.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "must": true, "shall": true, "can": true, "need": true,
	"dare": true, "this": true, "that": true, "these": true, "those": true,
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "me": true, "him": true, "her": true, "us": true,
	"them": true, "my": true, "your": true, "his": true, "its": true,
	"our": true, "their": true, "mine": true, "yours": true, "hers": true,
	"ours": true, "theirs": true, "what": true, "which": true, "who": true,
	"whom": true, "whose": true, "when": true, "where": true, "why": true,
	"how": true, "if": true, "then": true, "else": true, "because": true,
	"although": true, "though": true, "but": true, "and": true, "or": true,
	"so": true, "for": true, "nor": true, "yet": true, "both": true,
	"either": true, "neither": true, "not": true, "only": true, "own": true,
	"same": true, "than": true, "too": true, "very": true, "just": true,
	"also": true, "now": true, "here": true, "there": true, "all": true,
	"any": true, "some": true, "no": true, "each": true, "every": true,
	"few": true, "many": true, "much": true, "more": true, "most": true,
	"less": true, "least": true, "another": true, "such": true,
	"whatever": true, "whichever": true,
	"的": true, "了": true, "是": true, "在": true, "我": true, "有": true,
	"和": true, "就": true, "不": true, "人": true, "都": true, "一": true,
	"一个": true, "上": true, "也": true, "很": true, "到": true, "说": true,
	"要": true, "去": true, "你": true, "会": true, "着": true, "没有": true,
	"看": true, "好": true, "自己": true, "这": true,
}

// tokens splits text into lowercase words longer than two runes, dropping
// URLs, punctuation and stop words.
func tokens(text string) []string {
	text = urlPattern.ReplaceAllString(text, " ")
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	var out []string
	for _, w := range words {
		if utf8.RuneCountInString(w) > 2 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

// WordCount is a word and how often it occurs.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// WordFrequency returns the most frequent words across comments, highest
// count first. Ties are ordered alphabetically. A limit of zero or less
// returns every word.
func WordFrequency(comments []store.Comment, limit int) []WordCount {
	counts := make(map[string]int)
	for _, c := range comments {
		for _, w := range tokens(c.Text) {
			counts[w]++
		}
	}

	out := make([]WordCount, 0, len(counts))
	for w, n := range counts {
		out = append(out, WordCount{Word: w, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Default sentiment lexicons, matched as lowercase substrings.
var (
	DefaultPositive = []string{
		"好", "棒", "赞", "喜欢", "爱",
		"great", "good", "love", "like", "amazing", "excellent", "awesome",
	}
	DefaultNegative = []string{
		"差", "坏", "讨厌", "不好",
		"hate", "bad", "terrible", "awful", "worst", "dislike",
	}
)

// Polarity is the sentiment class of one comment.
type Polarity int

const (
	Neutral Polarity = iota
	Positive
	Negative
)

// Lexicon classifies text by keyword match.
type Lexicon struct {
	positive []string
	negative []string
}

// NewLexicon creates a lexicon from the default word lists plus extras.
func NewLexicon(extraPositive, extraNegative []string) *Lexicon {
	return &Lexicon{
		positive: lowered(DefaultPositive, extraPositive),
		negative: lowered(DefaultNegative, extraNegative),
	}
}

func lowered(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, w := range append(append([]string(nil), base...), extra...) {
		out = append(out, strings.ToLower(w))
	}
	return out
}

// Classify returns Positive if any positive word occurs in text, otherwise
// Negative if any negative word occurs, otherwise Neutral.
func (l *Lexicon) Classify(text string) Polarity {
	lower := strings.ToLower(text)
	if containsAny(lower, l.positive) {
		return Positive
	}
	if containsAny(lower, l.negative) {
		return Negative
	}
	return Neutral
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// SentimentCounts tallies comments per polarity.
type SentimentCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
	Total    int `json:"total"`
}

var defaultLexicon = NewLexicon(nil, nil)

// Sentiment classifies comments with the default lexicon.
func Sentiment(comments []store.Comment) SentimentCounts {
	return defaultLexicon.Sentiment(comments)
}

// Sentiment classifies every comment and counts the classes.
func (l *Lexicon) Sentiment(comments []store.Comment) SentimentCounts {
	s := SentimentCounts{Total: len(comments)}
	for _, c := range comments {
		switch l.Classify(c.Text) {
		case Positive:
			s.Positive++
		case Negative:
			s.Negative++
		default:
			s.Neutral++
		}
	}
	return s
}

// Commenter is an author and how many comments they left.
type Commenter struct {
	AuthorName   string `json:"author_name"`
	ChannelURL   string `json:"channel_url"`
	CommentCount int    `json:"comment_count"`
}

// TopCommenters returns the n most active authors. Ties keep the order
// in which authors first appear.
func TopCommenters(comments []store.Comment, n int) []Commenter {
	index := make(map[string]int)
	var out []Commenter
	for _, c := range comments {
		i, ok := index[c.AuthorName]
		if !ok {
			i = len(out)
			index[c.AuthorName] = i
			out = append(out, Commenter{AuthorName: c.AuthorName, ChannelURL: c.AuthorChannelURL})
		}
		out[i].CommentCount++
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CommentCount > out[j].CommentCount
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// MostLiked returns the n comments with the most likes.
func MostLiked(comments []store.Comment, n int) []store.Comment {
	out := append([]store.Comment(nil), comments...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LikeCount > out[j].LikeCount
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CommentInsights bundles the comment reports for one video.
type CommentInsights struct {
	Words      []WordCount     `json:"words"`
	Sentiment  SentimentCounts `json:"sentiment"`
	Commenters []Commenter     `json:"top_commenters"`
	MostLiked  []store.Comment `json:"most_liked"`
}

// Insights computes every comment report at once.
func Insights(comments []store.Comment, words, top int) CommentInsights {
	return CommentInsights{
		Words:      WordFrequency(comments, words),
		Sentiment:  Sentiment(comments),
		Commenters: TopCommenters(comments, top),
		MostLiked:  MostLiked(comments, top),
	}
}
