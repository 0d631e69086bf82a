package scoring

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minTokenLen = 3

// stopWords are dropped from both script and candidate tokens. Generic
// image-file words are included so "avatar_07.png" carries no signal.
var stopWords = map[string]struct{}{ //nolint:gochecknoglobals // static lookup table
	// english
	"the": {}, "and": {}, "for": {}, "with": {}, "you": {}, "your": {}, "this": {}, "that": {},
	"are": {}, "our": {}, "from": {}, "how": {}, "what": {}, "will": {}, "can": {}, "all": {},
	// spanish / portuguese
	"los": {}, "las": {}, "del": {}, "por": {}, "para": {}, "con": {}, "una": {}, "uno": {},
	"que": {}, "como": {}, "mas": {}, "sus": {}, "tus": {}, "este": {}, "esta": {},
	"com": {}, "uma": {}, "nos": {},
	// file names
	"avatar": {}, "img": {}, "image": {}, "photo": {}, "foto": {}, "pic": {}, "copy": {},
	"final": {}, "edit": {}, "jpg": {}, "jpeg": {}, "png": {}, "webp": {}, "new": {},
}

// foldAccents strips combining marks: "educación" -> "educacion".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokenize lowercases, folds accents and splits s into content words.
// Short words, numbers and stop words are dropped; order is preserved and
// duplicates removed.
func Tokenize(s string) []string {
	s = strings.ToLower(foldAccents(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTokenLen || isNumeric(f) {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// FilenameTokens tokenizes a file name without its extension.
func FilenameTokens(name string) []string {
	base := filepath.Base(name)
	return Tokenize(strings.TrimSuffix(base, filepath.Ext(base)))
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
