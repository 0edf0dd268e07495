package pos

import (
	"strings"
	"unicode"
)

const (
	prefixLength = 4
	suffixLength = 4

	continuationPrefix = "##"
	sentenceBegin      = "*SB*"
	sentenceEnd        = "*SE*"
)

type ContextGenerator interface {
	GetContext(index int, pieces []string, priorDecisions []string) []string
}

type defaultContextGenerator struct {
	dict map[string]bool
}

func (g *defaultContextGenerator) GetContext(index int, pieces []string, tags []string) []string {
	var nextnext, prevprev string
	var tagprev, tagprevprev string

	next := sentenceEnd
	prev := sentenceBegin

	piece := pieces[index]
	lex := strings.TrimPrefix(piece, continuationPrefix)
	if len(pieces) > index+1 {
		next = pieces[index+1]
		nextnext = sentenceEnd
		if len(pieces) > index+2 {
			nextnext = pieces[index+2]
		}
	}

	if index > 0 {
		prev = pieces[index-1]
		prevprev = sentenceBegin
		tagprev = tags[index-1]

		if index >= 2 {
			prevprev = pieces[index-2]
			tagprevprev = tags[index-2]
		}
	}

	contexts := []string{"default", "w=" + lex}
	if lex != piece {
		contexts = append(contexts, "cont")
	}

	if isOk := g.dict[lex]; !isOk {
		for _, suf := range getSuffixes(lex) {
			contexts = append(contexts, "suf="+suf)
		}

		for _, pref := range getPrefixes(lex) {
			contexts = append(contexts, "pre="+pref)
		}

		if strings.ContainsRune(lex, '-') {
			contexts = append(contexts, "h")
		}

		if strings.IndexFunc(lex, unicode.IsUpper) >= 0 {
			contexts = append(contexts, "c")
		}

		if strings.IndexFunc(lex, unicode.IsDigit) >= 0 {
			contexts = append(contexts, "d")
		}
	}

	contexts = append(contexts, "p="+prev)

	if len(tagprev) > 0 {
		contexts = append(contexts, "t="+tagprev)
	}

	if len(prevprev) > 0 {
		contexts = append(contexts, "pp="+prevprev)

		if len(tagprevprev) > 0 {
			contexts = append(contexts, "t2="+tagprevprev+","+tagprev)
		}
	}

	contexts = append(contexts, "n="+next)
	if len(nextnext) > 0 {
		contexts = append(contexts, "nn="+nextnext)
	}

	return contexts
}

// getPrefixes and getSuffixes work on runes so multi-byte pieces are never
// split inside a character.
func getPrefixes(lex string) []string {
	runes := []rune(lex)
	prefs := make([]string, prefixLength)
	for li := 0; li < prefixLength; li++ {
		idx := len(runes)
		if idx > li+1 {
			idx = li + 1
		}
		prefs[li] = string(runes[:idx])
	}
	return prefs
}

func getSuffixes(lex string) []string {
	runes := []rune(lex)
	suffs := make([]string, suffixLength)
	for li := 0; li < suffixLength; li++ {
		idx := len(runes) - li - 1
		if idx < 0 {
			idx = 0
		}
		suffs[li] = string(runes[idx:])
	}
	return suffs
}

// NewContextGenerator builds the generator; pieces found in dict get no
// affix features.
func NewContextGenerator(dict map[string]bool) ContextGenerator {
	return &defaultContextGenerator{dict: dict}
}
