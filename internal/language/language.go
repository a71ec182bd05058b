package language

import (
	"fmt"
	"slices"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Target is a dub target language.
type Target struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// supported is the set of dub targets, as ISO 639-1 codes.
var supported = []string{
	"en", "pa", "hi", "es", "fr", "de", "ja", "zh", "ru", "pt", "ar", "it",
	"ko", "nl", "tr", "pl", "id", "th", "vi", "bn", "ur", "fa", "uk", "sv",
	"no", "fi", "da", "el", "cs", "ro", "hu", "he", "ms", "tl", "ta", "te",
	"mr", "gu", "kn", "ml", "sw", "af", "bg", "hr", "sr", "sk", "sl", "et",
	"lv", "lt",
}

// iso2Aliases maps the canonical base x/text assigns a supported code back to
// that code when they differ (Parse canonicalizes "tl" to "fil").
var iso2Aliases = map[string]string{}

// byWord maps lower-case English names of supported targets to their codes.
var byWord map[string]string

func init() {
	byWord = map[string]string{
		"filipino": "tl",
		"mandarin": "zh",
		"farsi":    "fa",
	}
	for _, code := range supported {
		if tag, err := xlanguage.Parse(code); err == nil {
			if base, _ := tag.Base(); base.String() != code {
				iso2Aliases[base.String()] = code
			}
		}
		byWord[strings.ToLower(DisplayName(code))] = code
	}
}

// Supported returns every dub target with its display name.
func Supported() []Target {
	out := make([]Target, 0, len(supported))
	for _, code := range supported {
		out = append(out, Target{Code: code, Name: DisplayName(code)})
	}
	return out
}

// ParseTarget resolves code (ISO 639-1/2, BCP 47 or an English name) to a
// supported dub target.
func ParseTarget(code string) (Target, error) {
	iso2 := ToISO2(code)
	if iso2 == "" {
		return Target{}, fmt.Errorf("unknown language %q", code)
	}
	if !slices.Contains(supported, iso2) {
		return Target{}, fmt.Errorf("language %q (%s) is not a supported dub target", code, DisplayName(iso2))
	}
	return Target{Code: iso2, Name: DisplayName(iso2)}, nil
}

func parseBase(code string) (xlanguage.Base, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return xlanguage.Base{}, false
	}
	if mapped, ok := byWord[strings.ToLower(code)]; ok {
		code = mapped
	}
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return xlanguage.Base{}, false
	}
	base, conf := tag.Base()
	if conf == xlanguage.No {
		return xlanguage.Base{}, false
	}
	return base, true
}

// ToISO2 converts any recognized language code or word to ISO 639-1 (2-letter).
// Returns empty string for unrecognized input or languages without a
// 2-letter code.
func ToISO2(code string) string {
	base, ok := parseBase(code)
	if !ok {
		return ""
	}
	iso2 := base.String()
	if alias, ok := iso2Aliases[iso2]; ok {
		iso2 = alias
	}
	if len(iso2) != 2 {
		return ""
	}
	return iso2
}

// ToISO3 converts any recognized language code to ISO 639-2 (3-letter).
// Returns "und" for unrecognized input.
func ToISO3(code string) string {
	base, ok := parseBase(code)
	if !ok {
		return "und"
	}
	return base.ISO3()
}

// DisplayName returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty input, or the uppercased code for unrecognized input.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	tag, err := xlanguage.Parse(trimmed)
	if err == nil {
		base, conf := tag.Base()
		if conf != xlanguage.No {
			if name := display.English.Languages().Name(base); name != "" {
				return name
			}
		}
	}
	if mapped, ok := byWord[strings.ToLower(trimmed)]; ok {
		return DisplayName(mapped)
	}
	return strings.ToUpper(trimmed)
}

// ExtractFromTags extracts and normalizes the language from stream metadata tags.
// Checks common tag keys: language, LANGUAGE, Language, language_ietf, lang, LANG.
func ExtractFromTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := []string{"language", "LANGUAGE", "Language", "language_ietf", "lang", "LANG"}
	for _, key := range keys {
		if value, ok := tags[key]; ok {
			value = strings.TrimSpace(strings.ReplaceAll(value, "\u0000", ""))
			if value != "" {
				return strings.ToLower(value)
			}
		}
	}
	return ""
}
