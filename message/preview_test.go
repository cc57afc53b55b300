package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPreviewNormalizesWhitespace(t *testing.T) {
	assert.Equal(t, "line one line two", FormatPreview("line one\n\tline two"))
}

func TestFormatPreviewClampsLength(t *testing.T) {
	long := strings.Repeat("a", previewMaxLen+50)
	assert.Len(t, FormatPreview(long), previewMaxLen)
}

func TestFormatPreviewEmpty(t *testing.T) {
	assert.Equal(t, "", FormatPreview(""))
}
