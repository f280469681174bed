package message

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrNoSeparator is returned when every separator candidate occurs in the
// list being encoded.
var ErrNoSeparator = errors.New("no usable list separator")

// separatorCandidates are probed in order; the first one absent from every
// element is used.
const separatorCandidates = ";:|,!^~#@%&*+=/\\<>?$"

// EncodeList serializes items as a single string whose first character is the
// separator, followed by each element prefixed with that separator.
// An empty list encodes to "".
func EncodeList(items []string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}

	sep, ok := chooseSeparator(items)
	if !ok {
		return "", ErrNoSeparator
	}

	var b strings.Builder
	for _, item := range items {
		b.WriteRune(sep)
		b.WriteString(item)
	}
	return b.String(), nil
}

// DecodeList reverses EncodeList. The first rune is taken as the separator and
// the remainder is split on it; empty elements are kept.
// Decoding "" yields an empty, non-nil list.
func DecodeList(text string) []string {
	if text == "" {
		return []string{}
	}
	sep, size := utf8.DecodeRuneInString(text)
	return strings.Split(text[size:], string(sep))
}

func chooseSeparator(items []string) (rune, bool) {
	for _, c := range separatorCandidates {
		used := false
		for _, item := range items {
			if strings.ContainsRune(item, c) {
				used = true
				break
			}
		}
		if !used {
			return c, true
		}
	}
	return 0, false
}
