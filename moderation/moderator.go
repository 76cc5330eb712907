// Package moderation masks blocked terms in message content before it is
// persisted or delivered. Marketplace chats are a common channel for payment
// scams, so the default lists target off-platform payment bait.
package moderation

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed blocked/*.txt
var blockedFolder embed.FS

type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
}

// textMapping links the normalized search text back to rune positions in the
// original, so masking preserves spacing and punctuation.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the Aho-Corasick automaton over normalized patterns.
func NewModerator(blockedTerms []string, censoredChar rune) (Moderator, error) {
	patterns := make([][]rune, 0, len(blockedTerms))
	for _, term := range blockedTerms {
		norm := normalizeTerm(term)
		if len(norm) == 0 {
			continue
		}
		patterns = append(patterns, norm)
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, censoredChar: censoredChar}, nil
}

// NewDefaultModerator loads the embedded term lists.
func NewDefaultModerator(censoredChar rune) (Moderator, error) {
	terms, err := LoadBlockedTerms()
	if err != nil {
		return Moderator{}, err
	}
	return NewModerator(terms, censoredChar)
}

// LoadBlockedTerms reads every embedded list, one term per line, '#' comments.
func LoadBlockedTerms() ([]string, error) {
	var terms []string
	err := fs.WalkDir(blockedFolder, "blocked", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		file, err := blockedFolder.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			terms = append(terms, line)
		}
		return scanner.Err()
	})
	return terms, err
}

// Censor replaces every occurrence of a blocked term with the censored rune,
// ignoring case and separator characters between the term's letters.
func (m *Moderator) Censor(original string) string {
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original
	}

	origRunes := []rune(original)
	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}

		origStart := mapping.origIdx[normStart]
		origEnd := mapping.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.censoredChar
		}
	}
	return string(origRunes)
}

func normalizeTerm(term string) []rune {
	mapping := normalize(term)
	return mapping.normalized
}

// normalize lowercases and drops everything that is not a letter or digit,
// keeping an index back into the original runes.
func normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			continue
		}
		norm = append(norm, unicode.ToLower(r))
		origIdx = append(origIdx, i)
	}
	return textMapping{normalized: norm, origIdx: origIdx}
}
