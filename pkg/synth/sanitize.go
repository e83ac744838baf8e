package synth

import (
	"strings"
	"unicode"
)

// pictographs covers the Unicode blocks that synthesis models try to
// vocalize, producing overlapping speech artifacts. Stripped before every
// request.
var pictographs = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1}, // zero-width joiner
		{Lo: 0x2190, Hi: 0x21ff, Stride: 1}, // arrows
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1}, // misc symbols, dingbats
		{Lo: 0x2b00, Hi: 0x2bff, Stride: 1}, // misc symbols and arrows
		{Lo: 0xfe00, Hi: 0xfe0f, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1f0ff, Stride: 1}, // mahjong, dominoes, cards
		{Lo: 0x1f100, Hi: 0x1f1ff, Stride: 1}, // enclosed, regional indicators
		{Lo: 0x1f300, Hi: 0x1f5ff, Stride: 1}, // misc symbols and pictographs
		{Lo: 0x1f600, Hi: 0x1f64f, Stride: 1}, // emoticons
		{Lo: 0x1f680, Hi: 0x1f6ff, Stride: 1}, // transport and map
		{Lo: 0x1f900, Hi: 0x1f9ff, Stride: 1}, // supplemental symbols
		{Lo: 0x1fa00, Hi: 0x1faff, Stride: 1}, // extended pictographs
	},
}

// Sanitize strips emoji and other pictographic runes from text and trims
// the result. The returned string may be empty, in which case the caller
// skips synthesis entirely.
func Sanitize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.Is(pictographs, r) {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(cleaned)
}
