package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	messages []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func TestAssertTextNormalizesByDefault(t *testing.T) {
	rec := &recordingT{}
	ok := AssertText(rec, "a\nb", "\na  \nb\n")
	assert.True(t, ok, "trailing whitespace and surrounding blank lines MUST be ignored by default")
	assert.Empty(t, rec.messages)
}

func TestAssertTextReportsUnifiedDiff(t *testing.T) {
	rec := &recordingT{}
	ok := AssertText(rec, "one\ntwo\n", "one\nthree\n")
	assert.False(t, ok)
	if assert.Len(t, rec.messages, 1) {
		assert.True(t, strings.Contains(rec.messages[0], "-two"), "diff MUST show the removed line")
		assert.True(t, strings.Contains(rec.messages[0], "+three"), "diff MUST show the added line")
	}
}

func TestAssertTextOptions(t *testing.T) {
	rec := &recordingT{}
	assert.False(t, AssertText(rec, "a", "a ", WithExactWhitespace()))
	assert.True(t, AssertText(rec, "a\nb", "a\n\nb", WithIgnoreEmptyLines()))
}
