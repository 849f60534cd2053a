package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHashtags(t *testing.T) {
	got := ExtractHashtags("Learning #Go and #go routines with #study_group!")
	assert.Equal(t, []string{"go", "study_group"}, got)
	assert.Nil(t, ExtractHashtags("no tags here"))
}

func TestDedupeStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, DedupeStrings([]string{"a", " ", "b", "a"}))
}
