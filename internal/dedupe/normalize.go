package dedupe

import (
	"fmt"
	"regexp"
	"strings"
)

// Promotional prefixes commonly pasted into social captions. Stripped before
// computing identity so "Live: Jazz Night" and "Jazz Night" collide.
var titlePrefixes = []string{
	"live:",
	"tonight:",
	"presents:",
	"this weekend:",
	"show:",
	"event:",
}

// Leading articles stripped from venue names before comparison.
var venueArticles = []string{"the", "a", "an"}

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeTitle produces the canonical comparison form of an event title:
// lowercase, promotional prefixes stripped, punctuation removed, whitespace
// collapsed. Never used for display.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))

	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(t, prefix) {
			t = strings.TrimSpace(t[len(prefix):])
			break
		}
	}

	t = punctRe.ReplaceAllString(t, " ")
	t = spaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// NormalizeVenueName produces the canonical comparison form of a venue name:
// lowercase, punctuation stripped, whitespace collapsed, leading articles
// removed.
func NormalizeVenueName(name string) string {
	v := strings.ToLower(strings.TrimSpace(name))
	v = punctRe.ReplaceAllString(v, " ")
	v = spaceRe.ReplaceAllString(v, " ")
	v = strings.TrimSpace(v)

	words := strings.Fields(v)
	for len(words) > 1 {
		stripped := false
		for _, article := range venueArticles {
			if words[0] == article {
				words = words[1:]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return strings.Join(words, " ")
}

// UniqueKey derives the identity of an event: normalized title, ISO date,
// and resolved venue id. One Event row exists per key.
func UniqueKey(title, eventDate string, venueID int64) string {
	return fmt.Sprintf("%s|%s|%d", NormalizeTitle(title), eventDate, venueID)
}
