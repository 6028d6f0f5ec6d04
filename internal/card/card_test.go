package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDefaultsNil(t *testing.T) {
	var m *CardMetadata
	out := m.WithDefaults()
	assert.Equal(t, "todo", out.Status)
	assert.Equal(t, "medium", out.Priority)
}

func TestWithDefaultsPreservesSetFields(t *testing.T) {
	m := &CardMetadata{Status: "done", Priority: "high"}
	out := m.WithDefaults()
	assert.Equal(t, "done", out.Status)
	assert.Equal(t, "high", out.Priority)
}

func TestWithDefaultsFillsOnlyMissing(t *testing.T) {
	m := &CardMetadata{Status: "in-progress"}
	out := m.WithDefaults()
	assert.Equal(t, "in-progress", out.Status)
	assert.Equal(t, "medium", out.Priority)
}

func TestHasTagCaseInsensitive(t *testing.T) {
	m := &CardMetadata{Tags: []string{"Backend", "urgent"}}
	assert.True(t, m.HasTag("backend"))
	assert.True(t, m.HasTag("URGENT"))
	assert.False(t, m.HasTag("frontend"))
}

func TestHasTagNilReceiver(t *testing.T) {
	var m *CardMetadata
	assert.False(t, m.HasTag("anything"))
}

func TestAnchorWithRangeExtendsToNextSameLevel(t *testing.T) {
	a := Anchor{Slug: "intro", Header: "Intro", Level: 2, StartLine: 5, EndLine: 5}
	next := &Anchor{Slug: "body", Header: "Body", Level: 2, StartLine: 12}
	out := a.WithRange(next)
	assert.Equal(t, 11, out.EndLine)
}

func TestAnchorWithRangeUnchangedForDeeperHeading(t *testing.T) {
	a := Anchor{Slug: "top", Header: "Top", Level: 2, StartLine: 5, EndLine: 5}
	next := &Anchor{Slug: "sub", Header: "Sub", Level: 3, StartLine: 12}
	out := a.WithRange(next)
	assert.Equal(t, 5, out.EndLine, "a deeper sub-heading belongs inside the section, so WithRange leaves EndLine untouched and expects the caller to keep probing forward")
}

func TestAnchorWithRangeExtendsToNextHigherLevel(t *testing.T) {
	a := Anchor{Slug: "sub", Header: "Sub", Level: 3, StartLine: 5, EndLine: 5}
	next := &Anchor{Slug: "top", Header: "Top", Level: 2, StartLine: 12}
	out := a.WithRange(next)
	assert.Equal(t, 11, out.EndLine)
}

func TestAnchorWithRangeNilNext(t *testing.T) {
	a := Anchor{Slug: "only", Header: "Only", Level: 1, StartLine: 1, EndLine: 1}
	out := a.WithRange(nil)
	assert.Equal(t, a, out)
}

func TestRecognizedPrioritiesOrdering(t *testing.T) {
	assert.Greater(t, RecognizedPriorities["critical"], RecognizedPriorities["high"])
	assert.Greater(t, RecognizedPriorities["high"], RecognizedPriorities["medium"])
	assert.Greater(t, RecognizedPriorities["medium"], RecognizedPriorities["low"])
}
