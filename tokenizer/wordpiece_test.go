package tokenizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPieces = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"the", "cat", "play", "##ing", ",", ".", "cafe", "un", "##aff", "##able",
}

func newTestTokenizer(t *testing.T, opts Options) *WordPiece {
	vocab, err := NewVocab(testPieces)
	require.NoError(t, err)
	wp, err := New(vocab, opts)
	require.NoError(t, err)
	return wp
}

func TestLoadVocab(t *testing.T) {
	file := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(file, []byte(strings.Join(testPieces, "\r\n")), 0644))

	vocab, err := LoadVocab(file)
	require.NoError(t, err)
	assert.Equal(t, 7, vocab["##ing"])
	assert.Equal(t, 2, vocab[ClsToken])
}

func TestNewVocabMissingSpecial(t *testing.T) {
	_, err := NewVocab([]string{"[PAD]", "[UNK]", "the"})
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	wp := newTestTokenizer(t, Options{LowerCase: true, StripAccents: true})
	text := "The cat, playing."

	tokens, err := wp.Tokenize(text)
	require.NoError(t, err)

	expected := []Token{
		{ID: 4, Piece: "the", Begin: 0, End: 3, Word: 0},
		{ID: 5, Piece: "cat", Begin: 4, End: 7, Word: 1},
		{ID: 8, Piece: ",", Begin: 7, End: 8, Word: 2},
		{ID: 6, Piece: "play", Begin: 9, End: 13, Word: 3},
		{ID: 7, Piece: "##ing", Begin: 13, End: 16, Word: 3, IsContinuation: true},
		{ID: 9, Piece: ".", Begin: 16, End: 17, Word: 4},
	}
	if diff := cmp.Diff(expected, tokens); diff != "" {
		t.Errorf("Tokenize() mismatch (-want +got):\n%s", diff)
	}

	var texts []string
	for _, token := range tokens {
		texts = append(texts, token.Text(text))
	}
	assert.Equal(t, []string{"The", "cat", ",", "play", "ing", "."}, texts)
}

func TestTokenizeNormalization(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		text     string
		expected []string
		pieces   []string
	}{
		{
			name:     "accents stripped",
			opts:     Options{LowerCase: true, StripAccents: true},
			text:     "Café",
			expected: []string{"Café"},
			pieces:   []string{"cafe"},
		},
		{
			name:     "accents kept",
			opts:     Options{LowerCase: true},
			text:     "Café",
			expected: []string{"Café"},
			pieces:   []string{UnknownToken},
		},
		{
			name:     "case kept",
			opts:     Options{StripAccents: true},
			text:     "The cat",
			expected: []string{"The", "cat"},
			pieces:   []string{UnknownToken, "cat"},
		},
		{
			name:     "multiple continuations",
			opts:     Options{LowerCase: true},
			text:     "unaffable",
			expected: []string{"un", "aff", "able"},
			pieces:   []string{"un", "##aff", "##able"},
		},
		{
			name:     "control characters dropped",
			opts:     Options{LowerCase: true},
			text:     "the\u0000 \u200bcat",
			expected: []string{"the", "cat"},
			pieces:   []string{"the", "cat"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wp := newTestTokenizer(t, tt.opts)
			tokens, err := wp.Tokenize(tt.text)
			require.NoError(t, err)

			var texts, pieces []string
			for _, token := range tokens {
				texts = append(texts, token.Text(tt.text))
				pieces = append(pieces, token.Piece)
			}
			assert.Equal(t, tt.expected, texts)
			assert.Equal(t, tt.pieces, pieces)
		})
	}
}

func TestTokenizeEmpty(t *testing.T) {
	wp := newTestTokenizer(t, Options{LowerCase: true})
	tokens, err := wp.Tokenize("  \n\t ")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestTokenizeInvalidUTF8(t *testing.T) {
	wp := newTestTokenizer(t, Options{})
	_, err := wp.Tokenize("the \xff cat")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestTokenizeLongWord(t *testing.T) {
	wp := newTestTokenizer(t, Options{MaxInputCharsPerWord: 4})
	tokens, err := wp.Tokenize("unaffable")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, UnknownToken, tokens[0].Piece)
	assert.Equal(t, 0, tokens[0].Begin)
	assert.Equal(t, 9, tokens[0].End)
}

func wordsOf(windows [][]Token) [][]int {
	var res [][]int
	for _, w := range windows {
		var words []int
		for _, t := range w {
			words = append(words, t.Word)
		}
		res = append(res, words)
	}
	return res
}

func tokensForWords(words ...int) []Token {
	tokens := make([]Token, len(words))
	for i, w := range words {
		tokens[i] = Token{Word: w, IsContinuation: i > 0 && words[i-1] == w}
	}
	return tokens
}

func TestWindows(t *testing.T) {
	assert.Nil(t, Windows(nil, 4))

	windows := Windows(tokensForWords(0, 0, 1, 2, 2, 2, 3), 3)
	assert.Equal(t, [][]int{{0, 0, 1}, {2, 2, 2}, {3}}, wordsOf(windows))

	windows = Windows(tokensForWords(0, 1, 1, 2), 2)
	assert.Equal(t, [][]int{{0}, {1, 1}, {2}}, wordsOf(windows))

	// a word longer than the window is cut
	windows = Windows(tokensForWords(0, 0, 0, 0, 1), 2)
	assert.Equal(t, [][]int{{0, 0}, {0, 0}, {1}}, wordsOf(windows))

	windows = Windows(tokensForWords(0, 1), 10)
	assert.Equal(t, [][]int{{0, 1}}, wordsOf(windows))
}

func TestEncode(t *testing.T) {
	wp := newTestTokenizer(t, Options{LowerCase: true})
	tokens, err := wp.Tokenize("the cat")
	require.NoError(t, err)

	ids, mask := wp.Encode(tokens, 6)
	assert.Equal(t, []int{2, 4, 5, 3, 0, 0}, ids)
	assert.Equal(t, []int{1, 1, 1, 1, 0, 0}, mask)

	ids, mask = wp.Encode(tokens, 0)
	assert.Equal(t, []int{2, 4, 5, 3}, ids)
	assert.Equal(t, []int{1, 1, 1, 1}, mask)
}
