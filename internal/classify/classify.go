// Package classify matches free-form issue text against configured keyword
// buckets. Matching is plain lowercase substring containment: keywords are
// short human phrases ("no audio", "black screen") and false negatives are
// acceptable, so no stemming or punctuation stripping is done.
package classify

import (
	"strings"

	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/domain"
)

// bucket pairs a category with its configured keyword list.
type bucket struct {
	category domain.Category
	keywords []string
}

// Classifier holds per-media-type keyword buckets in fixed priority order.
// First matching bucket wins. For movies the wrong-movie bucket is evaluated
// first so that "wrong movie, audio is fine" can never land in audio.
type Classifier struct {
	movie  []bucket
	series []bucket
}

// NewFromConfig builds a Classifier from the comma-separated keyword lists in cfg.
func NewFromConfig(cfg *config.Config) *Classifier {
	return &Classifier{
		movie: []bucket{
			{domain.CategoryWrong, splitKeywords(cfg.MovieWrongKeywords)},
			{domain.CategoryVideo, splitKeywords(cfg.MovieVideoKeywords)},
			{domain.CategoryAudio, splitKeywords(cfg.MovieAudioKeywords)},
			{domain.CategorySubtitle, splitKeywords(cfg.MovieSubtitleKeywords)},
			{domain.CategoryOther, splitKeywords(cfg.MovieOtherKeywords)},
		},
		series: []bucket{
			{domain.CategoryVideo, splitKeywords(cfg.TVVideoKeywords)},
			{domain.CategoryAudio, splitKeywords(cfg.TVAudioKeywords)},
			{domain.CategorySubtitle, splitKeywords(cfg.TVSubtitleKeywords)},
			{domain.CategoryOther, splitKeywords(cfg.TVOtherKeywords)},
		},
	}
}

// Classify returns the first bucket whose keyword appears in text, along with
// the keyword that matched. Empty or keyword-free text yields CategoryNone.
func (c *Classifier) Classify(text string, mediaType domain.MediaType) (domain.Category, string) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return domain.CategoryNone, ""
	}

	for _, b := range c.buckets(mediaType) {
		for _, kw := range b.keywords {
			if strings.Contains(lowered, kw) {
				return b.category, kw
			}
		}
	}
	return domain.CategoryNone, ""
}

// Keywords returns the configured keywords for a category, used to build
// coaching comments. Returns nil for an unknown category.
func (c *Classifier) Keywords(mediaType domain.MediaType, category domain.Category) []string {
	for _, b := range c.buckets(mediaType) {
		if b.category == category {
			return b.keywords
		}
	}
	return nil
}

// AllKeywords returns every configured keyword for a media type, bucket order
// preserved. Used for coaching when the reported issue type is unknown.
func (c *Classifier) AllKeywords(mediaType domain.MediaType) []string {
	var all []string
	for _, b := range c.buckets(mediaType) {
		all = append(all, b.keywords...)
	}
	return all
}

func (c *Classifier) buckets(mediaType domain.MediaType) []bucket {
	if mediaType == domain.MediaMovie {
		return c.movie
	}
	return c.series
}

// splitKeywords parses a comma-separated config string into lowercase,
// trimmed, non-empty keywords.
func splitKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
