package diagram

import (
	"strings"
	"unicode/utf8"
)

// DefaultWrapWidth is the soft line width for node labels, in characters.
const DefaultWrapWidth = 30

// Wrap greedily packs the whitespace-separated words of text into lines of at most
// width characters. A word longer than width is placed on a line of its own.
func Wrap(text string, width int) []string {
	if width <= 0 {
		width = DefaultWrapWidth
	}

	var (
		lines   []string
		current []string
		length  int
	)
	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word)
		if len(current) > 0 && length+1+n > width {
			lines = append(lines, strings.Join(current, " "))
			current, length = current[:0], 0
		}
		if len(current) == 0 {
			length = n
		} else {
			length += 1 + n
		}
		current = append(current, word)
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}
