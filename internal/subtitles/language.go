package subtitles

import (
	"strings"

	"golang.org/x/text/language"
)

// Undetermined is the code used for tracks without a language tag.
const Undetermined = "und"

// languageCodes maps ISO 639-2 (B and T), English names, regional
// variants and common non-standard tags onto ISO 639-1.
var languageCodes = map[string]string{
	"en": "en", "eng": "en", "english": "en", "en-us": "en", "en-gb": "en",
	"ko": "ko", "kor": "ko", "korean": "ko", "kr": "ko", "ko-kr": "ko",
	"ja": "ja", "jpn": "ja", "japanese": "ja", "jp": "ja", "ja-jp": "ja",
	"zh": "zh", "chi": "zh", "zho": "zh", "chinese": "zh", "chs": "zh", "cht": "zh",
	"zh-cn": "zh", "zh-tw": "zh", "zh-hk": "zh", "zh-hans": "zh", "zh-hant": "zh",
	"fr": "fr", "fre": "fr", "fra": "fr", "french": "fr", "fr-ca": "fr", "fr-fr": "fr",
	"de": "de", "ger": "de", "deu": "de", "german": "de",
	"es": "es", "spa": "es", "spanish": "es", "es-419": "es", "es-es": "es", "es-mx": "es",
	"it": "it", "ita": "it", "italian": "it",
	"pt": "pt", "por": "pt", "portuguese": "pt", "pt-br": "pt", "pt-pt": "pt",
	"ru": "ru", "rus": "ru", "russian": "ru",
	"ar": "ar", "ara": "ar", "arabic": "ar",
	"hi": "hi", "hin": "hi", "hindi": "hi",
	"th": "th", "tha": "th", "thai": "th",
	"vi": "vi", "vie": "vi", "vietnamese": "vi",
	"id": "id", "ind": "id", "indonesian": "id",
	"ms": "ms", "may": "ms", "msa": "ms", "malay": "ms",
	"nl": "nl", "dut": "nl", "nld": "nl", "dutch": "nl",
	"sv": "sv", "swe": "sv", "swedish": "sv",
	"no": "no", "nor": "no", "nob": "no", "nno": "no", "norwegian": "no",
	"da": "da", "dan": "da", "danish": "da",
	"fi": "fi", "fin": "fi", "finnish": "fi",
	"pl": "pl", "pol": "pl", "polish": "pl",
	"tr": "tr", "tur": "tr", "turkish": "tr",
	"el": "el", "gre": "el", "ell": "el", "greek": "el",
	"he": "he", "heb": "he", "hebrew": "he",
	"cs": "cs", "cze": "cs", "ces": "cs", "czech": "cs",
	"hu": "hu", "hun": "hu", "hungarian": "hu",
	"ro": "ro", "rum": "ro", "ron": "ro", "romanian": "ro",
	"uk": "uk", "ukr": "uk", "ukrainian": "uk",
	"fa": "fa", "per": "fa", "fas": "fa", "persian": "fa",
	"tl": "tl", "tgl": "tl", "fil": "tl", "tagalog": "tl", "filipino": "tl",
	"und": Undetermined, "undetermined": Undetermined, "unknown": Undetermined,
}

// MapLanguage converts a stream language tag to an ISO 639-1 code.
// Empty tags become "und". Tags that cannot be mapped are returned
// unchanged with mapped set to false.
func MapLanguage(tag string) (code string, mapped bool) {
	raw := strings.TrimSpace(tag)
	if raw == "" {
		return Undetermined, true
	}
	key := strings.ReplaceAll(strings.ToLower(raw), "_", "-")

	if code, ok := languageCodes[key]; ok {
		return code, true
	}
	if i := strings.IndexByte(key, '-'); i > 0 {
		if code, ok := languageCodes[key[:i]]; ok {
			return code, true
		}
	}

	// Valid ISO 639 codes absent from the table.
	if base, err := language.ParseBase(key); err == nil {
		if s := base.String(); len(s) == 2 {
			return s, true
		}
	}
	return raw, false
}
