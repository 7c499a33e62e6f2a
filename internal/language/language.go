package language

import (
	"sort"
	"strings"

	"github.com/abadojack/whatlanggo"
	xlanguage "golang.org/x/text/language"
)

// DefaultVoiceID is the synthesis voice used when no per-language override is
// configured.
const DefaultVoiceID = "694f9389-aac1-45b6-b726-9d9369183238"

// Language describes one supported dubbing target.
type Language struct {
	Code    string
	Name    string
	VoiceID string
}

type entry struct {
	code2   string
	code3   string
	display string
}

var languages = []entry{
	{"pt", "por", "Portuguese"},
	{"es", "spa", "Spanish"},
	{"fr", "fra", "French"},
	{"de", "deu", "German"},
}

var byCode2 map[string]*entry

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	for i := range languages {
		byCode2[languages[i].code2] = &languages[i]
	}
}

// Canonical reduces code to its ISO 639-1 base language, or returns the
// lowercased input when x/text cannot parse it.
func Canonical(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return code
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No {
		return code
	}
	return base.String()
}

func lookup(code string) *entry {
	return byCode2[Canonical(code)]
}

// Supported reports whether code names a dubbing target.
func Supported(code string) bool {
	return lookup(code) != nil
}

// DisplayName returns the human-readable name for code, or the uppercased
// code when unsupported.
func DisplayName(code string) string {
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// Codes lists the supported codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(languages))
	for _, e := range languages {
		codes = append(codes, e.code2)
	}
	sort.Strings(codes)
	return codes
}

// Detect guesses the ISO 639-1 code of text, or "" for empty text.
func Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return whatlanggo.DetectLang(text).Iso6391()
}

// Table binds the supported languages to their synthesis voices.
type Table struct {
	voices map[string]string
}

// NewTable builds a table with the default voice for every language,
// replaced by any entry in overrides. Override keys are canonicalized;
// entries for unsupported languages are ignored.
func NewTable(overrides map[string]string) *Table {
	voices := make(map[string]string, len(languages))
	for _, e := range languages {
		voices[e.code2] = DefaultVoiceID
	}
	for code, voice := range overrides {
		e := lookup(code)
		voice = strings.TrimSpace(voice)
		if e == nil || voice == "" {
			continue
		}
		voices[e.code2] = voice
	}
	return &Table{voices: voices}
}

// Lookup resolves code to a supported language with its voice.
func (t *Table) Lookup(code string) (Language, bool) {
	e := lookup(code)
	if e == nil {
		return Language{}, false
	}
	voice := DefaultVoiceID
	if t != nil {
		if v, ok := t.voices[e.code2]; ok {
			voice = v
		}
	}
	return Language{Code: e.code2, Name: e.display, VoiceID: voice}, true
}

// All returns every supported language ordered by code.
func (t *Table) All() []Language {
	out := make([]Language, 0, len(languages))
	for _, code := range Codes() {
		lang, _ := t.Lookup(code)
		out = append(out, lang)
	}
	return out
}
