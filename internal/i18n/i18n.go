// Package i18n translates display strings using a fixed table keyed by
// language and English source text.
package i18n

import (
	_ "embed"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed translations.yaml
var rawTable []byte

var loadTable = sync.OnceValue(func() map[string]map[string]string {
	table := map[string]map[string]string{}
	if err := yaml.Unmarshal(rawTable, &table); err != nil {
		return map[string]map[string]string{}
	}
	return table
})

// DetectLanguage maps a locale tag such as "nb-NO" or "nn_NO.UTF-8" to a
// supported language by its two-letter prefix. Anything unrecognised yields
// English.
func DetectLanguage(tag string) language.Tag {
	if len(tag) < 2 {
		return language.English
	}
	switch strings.ToLower(tag[:2]) {
	case "no", "nb", "nn":
		return language.Norwegian
	}
	return language.English
}

// DetectFromEnv detects the language from the POSIX locale variables.
func DetectFromEnv() language.Tag {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return DetectLanguage(v)
		}
	}
	return language.English
}

// Translator looks up display strings for one language.
type Translator struct {
	lang  language.Tag
	table map[string]string
}

// New returns a Translator for lang. Languages without a table translate
// every string to itself.
func New(lang language.Tag) *Translator {
	base, _ := lang.Base()
	return &Translator{
		lang:  lang,
		table: loadTable()[base.String()],
	}
}

// Language returns the translator's language.
func (t *Translator) Language() language.Tag {
	if t == nil {
		return language.English
	}
	return t.lang
}

// Translate returns the translation of the trimmed text, or text unchanged
// when there is none.
func (t *Translator) Translate(text string) string {
	if t == nil || t.table == nil {
		return text
	}
	if tr := t.table[strings.TrimSpace(text)]; tr != "" {
		return tr
	}
	return text
}

// Printer returns a message printer for localized number output.
func (t *Translator) Printer() *message.Printer {
	return message.NewPrinter(t.Language())
}
