package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var pronounI = regexp.MustCompile(`\bi(['’](?:m|d|ll|ve|re|s))?\b`)

// abbreviations end with a period that does not close a sentence.
var abbreviations = map[string]struct{}{
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "jr": {},
	"e.g": {}, "i.e": {}, "cf": {}, "vs": {}, "approx": {}, "no": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {},
	"aug": {}, "sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {},
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError || !unicode.IsLower(r) {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

// capitalizeSentences upper-cases the first letter of every sentence and the
// pronoun "I" including its contractions.
func capitalizeSentences(text string) string {
	words := strings.Split(text, " ")
	start := true
	for i, word := range words {
		if start {
			words[i] = capitalizeFirstLetter(word)
		}
		start = endsSentence(word)
	}
	return capitalizePronounI(strings.Join(words, " "))
}

func capitalizePronounI(text string) string {
	var out strings.Builder
	out.Grow(len(text))

	last := 0
	for _, m := range pronounI.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if partOfInitialism(text, start, end) {
			continue
		}
		out.WriteString(text[last:start])
		out.WriteByte('I')
		last = start + 1
	}
	out.WriteString(text[last:])
	return out.String()
}

// partOfInitialism reports whether the i at text[start:end] is a letter of
// something like "i.e." rather than the pronoun.
func partOfInitialism(text string, start int, end int) bool {
	if end+1 < len(text) && text[end] == '.' {
		next, _ := utf8.DecodeRuneInString(text[end+1:])
		if unicode.IsLetter(next) {
			return true
		}
	}
	return start > 0 && text[start-1] == '.' && end < len(text) && text[end] == '.'
}

// capitalizeFirstLetter skips leading quotes and brackets.
func capitalizeFirstLetter(word string) string {
	for i, r := range word {
		if unicode.IsLetter(r) {
			return word[:i] + string(unicode.ToUpper(r)) + word[i+utf8.RuneLen(r):]
		}
		if unicode.IsDigit(r) {
			return word
		}
	}
	return word
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"'’”)]`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '!', '?':
		return true
	case '.':
		token := strings.ToLower(strings.TrimLeft(strings.TrimSuffix(trimmed, "."), `"'‘“([`))
		if _, ok := abbreviations[token]; ok {
			return false
		}
		// Initialisms such as u.s. keep their period.
		if strings.Contains(token, ".") {
			return false
		}
		return token != ""
	default:
		return false
	}
}
