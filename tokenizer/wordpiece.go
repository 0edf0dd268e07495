// Package tokenizer splits text into BERT WordPiece tokens and keeps, for
// every token, the byte span of the original text it was produced from.
package tokenizer

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultContinuationPrefix   = "##"
	DefaultMaxInputCharsPerWord = 100
)

var ErrInvalidUTF8 = errors.New("text is not valid UTF-8")

type Options struct {
	LowerCase            bool
	StripAccents         bool
	ContinuationPrefix   string
	MaxInputCharsPerWord int
}

// Token is a single WordPiece. Begin and End are byte offsets into the text
// passed to Tokenize. Word is the index of the pre-tokenized word the piece
// belongs to.
type Token struct {
	ID             int
	Piece          string
	Begin          int
	End            int
	Word           int
	IsContinuation bool
}

type WordPiece struct {
	vocab Vocab
	opts  Options
	unkID int
	clsID int
	sepID int
	padID int
}

func New(vocab Vocab, opts Options) (*WordPiece, error) {
	if opts.ContinuationPrefix == "" {
		opts.ContinuationPrefix = DefaultContinuationPrefix
	}
	if opts.MaxInputCharsPerWord == 0 {
		opts.MaxInputCharsPerWord = DefaultMaxInputCharsPerWord
	}
	ids := make(map[string]int, 4)
	for _, special := range []string{UnknownToken, ClsToken, SepToken, PadToken} {
		id, ok := vocab[special]
		if !ok {
			return nil, errors.New("vocabulary has no " + special + " token")
		}
		ids[special] = id
	}
	return &WordPiece{
		vocab: vocab,
		opts:  opts,
		unkID: ids[UnknownToken],
		clsID: ids[ClsToken],
		sepID: ids[SepToken],
		padID: ids[PadToken],
	}, nil
}

func (wp *WordPiece) ClsID() int { return wp.clsID }
func (wp *WordPiece) SepID() int { return wp.sepID }
func (wp *WordPiece) PadID() int { return wp.padID }

// Tokenize never returns special tokens; the caller frames sequences.
func (wp *WordPiece) Tokenize(text string) ([]Token, error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidUTF8
	}

	var tokens []Token
	for i, w := range wp.splitWords(text) {
		tokens = append(tokens, wp.wordPieces(w, i)...)
	}
	return tokens, nil
}

// normalizedRune is one rune after casing/accent normalization together with
// the byte span of the original rune it came from.
type normalizedRune struct {
	r     rune
	begin int
	end   int
}

type word []normalizedRune

func (w word) begin() int { return w[0].begin }
func (w word) end() int   { return w[len(w)-1].end }

// splitWords is BERT's basic tokenizer: clean control characters, split on
// whitespace, isolate punctuation and CJK ideographs, normalize each rune.
func (wp *WordPiece) splitWords(text string) []word {
	var words []word
	var current word

	flush := func() {
		if len(current) > 0 {
			words = append(words, current)
			current = nil
		}
	}

	for offset, r := range text {
		size := utf8.RuneLen(r)
		switch {
		case r == 0 || r == utf8.RuneError || isControl(r):
			continue
		case isWhitespace(r):
			flush()
			continue
		}

		normalized := wp.normalize(r)
		if len(normalized) == 0 {
			continue
		}

		if isPunctuation(r) || isChineseChar(r) {
			flush()
			single := make(word, 0, len(normalized))
			for _, nr := range normalized {
				single = append(single, normalizedRune{r: nr, begin: offset, end: offset + size})
			}
			words = append(words, single)
			continue
		}

		for _, nr := range normalized {
			current = append(current, normalizedRune{r: nr, begin: offset, end: offset + size})
		}
	}
	flush()

	return words
}

func (wp *WordPiece) normalize(r rune) []rune {
	if wp.opts.LowerCase {
		r = unicode.ToLower(r)
	}
	if !wp.opts.StripAccents {
		return []rune{r}
	}
	var res []rune
	for _, nr := range norm.NFD.String(string(r)) {
		if unicode.Is(unicode.Mn, nr) {
			continue
		}
		res = append(res, nr)
	}
	return res
}

// wordPieces is the greedy longest-match-first WordPiece algorithm.
func (wp *WordPiece) wordPieces(w word, wordIndex int) []Token {
	unknown := []Token{{
		ID:    wp.unkID,
		Piece: UnknownToken,
		Begin: w.begin(),
		End:   w.end(),
		Word:  wordIndex,
	}}
	if len(w) > wp.opts.MaxInputCharsPerWord {
		return unknown
	}

	runes := make([]rune, len(w))
	for i, nr := range w {
		runes[i] = nr.r
	}

	var tokens []Token
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for start < end {
			piece := string(runes[start:end])
			if start > 0 {
				piece = wp.opts.ContinuationPrefix + piece
			}
			if id, ok := wp.vocab[piece]; ok {
				tokens = append(tokens, Token{
					ID:             id,
					Piece:          piece,
					Begin:          w[start].begin,
					End:            w[end-1].end,
					Word:           wordIndex,
					IsContinuation: start > 0,
				})
				found = true
				break
			}
			end--
		}
		if !found {
			return unknown
		}
		start = end
	}

	return mergeSharedSpans(tokens)
}

// mergeSharedSpans keeps spans disjoint when several normalized runes come from
// one original rune (e.g. a ligature split across two pieces).
func mergeSharedSpans(tokens []Token) []Token {
	for i := 1; i < len(tokens); i++ {
		if tokens[i].Begin < tokens[i-1].End {
			tokens[i].Begin = tokens[i-1].End
		}
		if tokens[i].End < tokens[i].Begin {
			tokens[i].End = tokens[i].Begin
		}
	}
	return tokens
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r) || unicode.In(r, unicode.Cf)
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isChineseChar(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}

// Text returns the original text covered by the token.
func (t Token) Text(source string) string {
	if t.Begin < 0 || t.End > len(source) || t.Begin > t.End {
		return strings.TrimPrefix(t.Piece, DefaultContinuationPrefix)
	}
	return source[t.Begin:t.End]
}

// Windows splits tokens into consecutive chunks of at most size tokens.
// Chunks end on word boundaries; a single word longer than size is cut.
func Windows(tokens []Token, size int) [][]Token {
	if len(tokens) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	var windows [][]Token
	start := 0
	for start < len(tokens) {
		end := start + size
		if end >= len(tokens) {
			windows = append(windows, tokens[start:])
			break
		}
		cut := end
		for cut > start && tokens[cut].Word == tokens[cut-1].Word {
			cut--
		}
		if cut == start {
			cut = end
		}
		windows = append(windows, tokens[start:cut])
		start = cut
	}
	return windows
}

// Encode frames a window with [CLS] and [SEP] and pads it to length.
// The mask marks real tokens with 1.
func (wp *WordPiece) Encode(window []Token, length int) (ids []int, mask []int) {
	n := len(window) + 2
	if length < n {
		length = n
	}
	ids = make([]int, length)
	mask = make([]int, length)
	ids[0] = wp.clsID
	mask[0] = 1
	for i, t := range window {
		ids[i+1] = t.ID
		mask[i+1] = 1
	}
	ids[n-1] = wp.sepID
	mask[n-1] = 1
	for i := n; i < length; i++ {
		ids[i] = wp.padID
	}
	return ids, mask
}
