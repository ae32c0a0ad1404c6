package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxDescriptionLength keeps descriptions under the platform's 5000 character limit.
const MaxDescriptionLength = 4900

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	chapterRe    = regexp.MustCompile(`\bChapter\s*(\d+)\b`)
)

// SanitizeText collapses whitespace and marks chapter headings
func SanitizeText(text string) string {
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	return chapterRe.ReplaceAllString(text, "==== Chapter $1 ====")
}

// TruncateDescription cuts s to MaxDescriptionLength runes and appends an ellipsis
func TruncateDescription(s string) string {
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxDescriptionLength]) + "..."
}

// ParseTags parses tag strings into arrays
func ParseTags(tagStr string) []string {
	if tagStr == "" {
		return []string{}
	}

	// Remove brackets if present
	tagStr = strings.Trim(tagStr, "[]")

	// Split by comma and clean up
	tags := strings.Split(tagStr, ",")
	var cleanTags []string

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.Trim(tag, "\"'") // Remove quotes
		if tag != "" {
			cleanTags = append(cleanTags, tag)
		}
	}

	return cleanTags
}
