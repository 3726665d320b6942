package tgtext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUTF16Len(t *testing.T) {
	assert.Equal(t, 0, UTF16Len(""))
	assert.Equal(t, 5, UTF16Len("hello"))
	assert.Equal(t, 6, UTF16Len("привет"))
	// Emoji outside the BMP take two UTF-16 code units.
	assert.Equal(t, 2, UTF16Len("😀"))
	assert.Equal(t, 4, UTF16Len("a😀b"))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "", Clip("anything", 0))
	assert.Equal(t, "short", Clip("short", 10))
	assert.Equal(t, "short", Clip("  short  ", 10))

	clipped := Clip(strings.Repeat("a", 50), 10)
	assert.Equal(t, 10, UTF16Len(clipped))
	assert.True(t, strings.HasSuffix(clipped, ellipsis))

	// Never cut inside a surrogate pair.
	clipped = Clip(strings.Repeat("😀", 50), 11)
	assert.LessOrEqual(t, UTF16Len(clipped), 11)
	assert.True(t, strings.HasSuffix(clipped, ellipsis))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "bold and italic", StripHTML("<b>bold</b> and <i>italic</i>"))
	assert.Equal(t, "a < b", StripHTML("a &lt; b"))
	assert.Equal(t, "spaced out", StripHTML("spaced \t  out"))
}

func TestPreparePhotoCaptionFits(t *testing.T) {
	caption, overflow, parseMode := PreparePhotoCaption("<b>Заголовок</b>\n\nТекст поста")
	assert.Equal(t, "<b>Заголовок</b>\n\nТекст поста", caption)
	assert.Empty(t, overflow)
	assert.Equal(t, "HTML", parseMode)
}

func TestPreparePhotoCaptionOverflow(t *testing.T) {
	long := "<b>head</b> " + strings.Repeat("слово ", 400)
	caption, overflow, parseMode := PreparePhotoCaption(long)

	assert.LessOrEqual(t, UTF16Len(caption), PhotoCaptionLimit)
	assert.NotContains(t, caption, "<b>")
	assert.Contains(t, overflow, "head")
	assert.NotContains(t, overflow, "<b>")
	assert.Empty(t, parseMode)
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, ChunkText("", 100))
	assert.Equal(t, []string{"fits"}, ChunkText("fits", 100))

	// Prefers the paragraph boundary over a hard cut.
	text := strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60)
	chunks := ChunkText(text, 100)
	assert.Equal(t, []string{strings.Repeat("a", 60), strings.Repeat("b", 60)}, chunks)

	// Hard cut when there is no boundary at all.
	chunks = ChunkText(strings.Repeat("c", 250), 100)
	assert.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, UTF16Len(chunk), 100)
	}
	assert.Equal(t, strings.Repeat("c", 250), strings.Join(chunks, ""))
}
