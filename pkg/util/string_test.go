package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	got := SanitizeText("  A tale\n\nof  two\tcities. Chapter 1 begins. Chapter12 ends.  ")
	require.Equal(t, "A tale of two cities. ==== Chapter 1 ==== begins. ==== Chapter 12 ==== ends.", got)
}

func TestTruncateDescription(t *testing.T) {
	short := "short"
	require.Equal(t, short, TruncateDescription(short))

	long := strings.Repeat("x", MaxDescriptionLength+10)
	got := TruncateDescription(long)
	require.Equal(t, MaxDescriptionLength+3, len(got))
	require.True(t, strings.HasSuffix(got, "..."))
}

func TestParseTags(t *testing.T) {
	require.Equal(t, []string{}, ParseTags(""))
	require.Equal(t, []string{"space", "aliens", "hero"}, ParseTags(" space, aliens ,,'hero'"))
	require.Equal(t, []string{"a", "b"}, ParseTags(`["a","b"]`))
}
