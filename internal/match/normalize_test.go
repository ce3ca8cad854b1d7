package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"feat clause in parens", "Lose Yourself (feat. Eminem) [Remix]", "lose yourself"},
		{"inline feat tail", "Forgot About Dre feat. Eminem", "forgot about dre"},
		{"remix tag", "One More Time (Radio Edit)", "one more time"},
		{"case folding", "RADIOHEAD", "radiohead"},
		{"punctuation stripped", "AC/DC", "acdc"},
		{"diacritics folded", "Café del Mar", "cafe del mar"},
		{"whitespace collapse", "  two   words  ", "two words"},
		// NFKD splits й into и plus a combining breve, and the
		// non-word strip drops the mark.
		{"cyrillic folded lossily", "Лунный город", "лунныи город"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Lose Yourself (feat. Eminem) [Remix]",
		"Café del Mar",
		"Смоки Мо",
		"AC/DC — Back In Black",
		"",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "radiohead|||creep", Key("Radiohead", "Creep"))
	assert.Equal(t, Key("radiohead", "creep"), Key("RADIOHEAD", "Creep (Explicit)"))
}

func TestTransliterate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"жук", "zhuk"},
		{"щука", "shchuka"},
		{"юла", "yula"},
		{"объём", "obyom"},
		{"лунный город", "lunnyy gorod"},
		{"mixed Текст text", "mixed Tekst text"},
		{"no cyrillic", "no cyrillic"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Transliterate(tt.in), "input %q", tt.in)
	}
}
