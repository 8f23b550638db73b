package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconstruct concatenates chunks, dropping each overlapped prefix.
func reconstruct(chunks []string, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch)
			continue
		}
		b.WriteString(string([]rune(ch)[overlap:]))
	}
	return b.String()
}

func TestSplit_Defaults(t *testing.T) {
	c := New()
	assert.Equal(t, 500, c.Size())
	assert.Equal(t, 50, c.Overlap())
}

func TestSplit_TwelveHundredCharacters(t *testing.T) {
	// 120 words of 9 letters plus a space: exactly 1200 characters.
	text := strings.Repeat("abcdefghi ", 120)
	require.Equal(t, 1200, len(text))

	chunks := New().Split(text)

	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 500, "chunk %d too long", i)
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		assert.Equal(t, string(prev[len(prev)-50:]), string([]rune(chunks[i])[:50]), "chunk %d overlap", i)
	}
	assert.Equal(t, text, reconstruct(chunks, 50))
}

func TestSplit_ShortText(t *testing.T) {
	chunks := New().Split("A short note about Go.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short note about Go.", chunks[0])
}

func TestSplit_EmptyText(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, New().Split(""))
	})
	t.Run("whitespace only", func(t *testing.T) {
		assert.Empty(t, New().Split("  \n\t \n"))
	})
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("word ", 70) // 350 characters
	second := strings.Repeat("more ", 70)
	text := first + "\n\n" + second

	chunks := New().Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"), "first chunk should end at the paragraph break")
	assert.Equal(t, text, reconstruct(chunks, 50))
}

func TestSplit_PrefersSentenceOverWord(t *testing.T) {
	sentence := strings.Repeat("x", 300) + ". "
	text := sentence + strings.Repeat("tail ", 100)

	chunks := New().Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0], ". "))
}

func TestSplit_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("z", 1100)

	chunks := New().Split(text)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	assert.Equal(t, text, reconstruct(chunks, 50))
}

func TestSplit_MultibyteCharacters(t *testing.T) {
	text := strings.Repeat("日本語のテキスト。", 100)

	chunks := New(WithChunkSize(120), WithOverlap(20)).Split(text)

	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch))
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 120)
	}
	assert.Equal(t, text, reconstruct(chunks, 20))
}

func TestSplit_CoverageProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdefg hij.\n, ")

	for n := 0; n < 50; n++ {
		length := 1 + rng.Intn(3000)
		runes := make([]rune, length)
		for i := range runes {
			runes[i] = alphabet[rng.Intn(len(alphabet))]
		}
		text := "x" + string(runes)

		c := New()
		chunks := c.Split(text)

		require.NotEmpty(t, chunks)
		for i, ch := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(ch), c.Size())
			if i > 0 {
				prev := []rune(chunks[i-1])
				cur := []rune(ch)
				assert.Equal(t, string(prev[len(prev)-c.Overlap():]), string(cur[:c.Overlap()]))
			}
		}
		assert.Equal(t, text, reconstruct(chunks, c.Overlap()))
	}
}

func TestNew_ClampsOverlap(t *testing.T) {
	c := New(WithChunkSize(100), WithOverlap(80))
	assert.Equal(t, 25, c.Overlap())

	c = New(WithChunkSize(-1), WithOverlap(-5))
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultChunkOverlap, c.Overlap())
}
