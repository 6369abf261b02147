package chunker

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"formfill-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultChunker() *Chunker {
	return New(config.ChunkerConfig{
		SmallDocumentThreshold: 1500,
		TargetSize:             1000,
		MinSize:                200,
		MaxSize:                1500,
	})
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func sentence(i int) string {
	return "Sentence number " + strings.Repeat("x", i%7+3) + " describes prior work at a company in some detail."
}

func paragraph(n, offset int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sentence(i + offset)
	}
	return strings.Join(parts, " ")
}

func assertBounds(t *testing.T, c *Chunker, chunks []Chunk) {
	t.Helper()
	for i, ch := range chunks {
		n := utf8.RuneCountInString(ch.Text)
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, len(chunks), ch.Total)
		assert.LessOrEqual(t, n, c.max, "chunk %d", i)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, n, c.min, "chunk %d", i)
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	assert.Nil(t, defaultChunker().Split(""))
	assert.Nil(t, defaultChunker().Split(" \n\t "))
}

func TestSplit_SmallDocumentIsOneTrimmedChunk(t *testing.T) {
	inputs := []string{
		"hello",
		"  Jane Doe\n\nSoftware engineer.  \n",
		strings.Repeat("a", 1500),
		"  " + strings.Repeat("é", 1500) + "\n",
	}
	for _, in := range inputs {
		chunks := defaultChunker().Split(in)
		require.Len(t, chunks, 1)
		assert.Equal(t, Chunk{Index: 0, Total: 1, Text: strings.TrimSpace(in)}, chunks[0])
	}
}

func TestSplit_ResumeWithTwoParagraphs(t *testing.T) {
	c := defaultChunker()
	first := paragraph(45, 0)
	second := paragraph(45, 3)
	text := first + "\n\n" + second
	require.GreaterOrEqual(t, len(text), 6000)

	chunks := c.Split(text)

	assert.GreaterOrEqual(t, len(chunks), 2)
	assertBounds(t, c, chunks)
}

func TestSplit_NoContentLoss(t *testing.T) {
	c := defaultChunker()
	texts := []string{
		paragraph(50, 1) + "\n\n" + paragraph(3, 2) + "\n   \n" + paragraph(20, 5),
		strings.Repeat("Short line.\n\n", 400),
		strings.Repeat("word ", 2000),
		strings.Repeat("z", 5000),
		"Intro.\n\n" + strings.Repeat("Ünïcödé text here! Another sentence? Yes. ", 100),
	}
	for _, text := range texts {
		chunks := c.Split(text)
		var rebuilt strings.Builder
		for _, ch := range chunks {
			rebuilt.WriteString(ch.Text)
		}
		assert.Equal(t, stripSpace(text), stripSpace(rebuilt.String()))
		assertBounds(t, c, chunks)
	}
}

func TestSplit_ManyTinyParagraphsAreMerged(t *testing.T) {
	c := defaultChunker()
	text := strings.Repeat("Tiny paragraph.\n\n", 200)

	chunks := c.Split(text)

	require.NotEmpty(t, chunks)
	assert.Less(t, len(chunks), 200)
	assertBounds(t, c, chunks)
}

func TestSplit_SmallPieceMergesIntoLargeNeighbourWithinMax(t *testing.T) {
	c := defaultChunker()
	text := strings.Repeat("a", 150) + "\n\n" + strings.Repeat("b", 900) + "\n\n" + strings.Repeat("c", 900)

	chunks := c.Split(text)

	require.Len(t, chunks, 2)
	n := utf8.RuneCountInString(chunks[0].Text)
	assert.Equal(t, 150+2+900, n)
	assert.Greater(t, n, 2*c.min)
	assert.LessOrEqual(t, n, c.max)
	assert.Equal(t, strings.Repeat("c", 900), chunks[1].Text)
	assertBounds(t, c, chunks)
}

func TestSplit_TrailingRemainderMergedBackWhenItFits(t *testing.T) {
	c := defaultChunker()
	text := strings.Repeat("b", 900) + "\n\n" + strings.Repeat("c", 700) + "\n\n" + "tail"

	chunks := c.Split(text)

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[1].Text, "\n\ntail"))
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Dr. smith works here. He is great!  Really? yes. Done.")
	assert.Equal(t, []string{"Dr. smith works here.", "He is great!", "Really? yes.", "Done."}, got)
}

func TestHardSplit(t *testing.T) {
	parts := hardSplit("aaaa bbbb cccc dddd", 9)
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, parts)

	parts = hardSplit("aaaa bbbbbb cc", 8)
	assert.Equal(t, []string{"aaaa", "bbbbbb", "cc"}, parts)

	parts = hardSplit(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, parts)
}

func TestNew_FixesInconsistentSizes(t *testing.T) {
	c := New(config.ChunkerConfig{TargetSize: 100, MinSize: 500, MaxSize: 50})
	assert.Equal(t, 20, c.min)
	assert.Equal(t, 122, c.max)
	assert.Equal(t, 122, c.threshold)
}
