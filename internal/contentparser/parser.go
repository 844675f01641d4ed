// Package contentparser turns user-submitted bodies into the plain text the
// content hash is computed over.
package contentparser

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const HashPrefix = "sha256:"

// Parsed is the normalised form of one body.
type Parsed struct {
	Text    string `json:"text"`
	Hash    string `json:"hash"`
	Snippet string `json:"snippet"`
	Lang    string `json:"lang"`
}

// Parse strips markup from body, collapses whitespace and hashes the result.
// Two bodies that render to the same text share a hash.
func Parse(body string) (*Parsed, error) {
	text, err := PlainText(body)
	if err != nil {
		return nil, err
	}
	return &Parsed{
		Text:    text,
		Hash:    Hash(text),
		Snippet: Snippet(text, 200),
		Lang:    GuessLanguage(text),
	}, nil
}

func PlainText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}

func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return HashPrefix + hex.EncodeToString(sum[:])
}

// Snippet cuts text to at most n runes.
func Snippet(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

func GuessLanguage(text string) string {
	if text == "" {
		return "unknown"
	}

	var cyrillic, latin, arabic, cjk, total int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			cjk++
		}
	}
	if total == 0 {
		return "unknown"
	}

	share := func(n int) float64 { return float64(n) / float64(total) }
	switch {
	case share(cyrillic) >= 0.3:
		return "ru"
	case share(arabic) >= 0.3:
		return "ar"
	case share(cjk) >= 0.3:
		return "zh"
	case share(latin) >= 0.3:
		return "en"
	default:
		return "other"
	}
}
