// Package i18n localizes the user-facing messages of the API.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	English    = "en"
	Indonesian = "id"
)

var (
	supported = []language.Tag{language.English, language.Indonesian}
	matcher   = language.NewMatcher(supported)
	cat       = catalog.NewBuilder(catalog.Fallback(language.English))
	known     = map[string]struct{}{}
)

// Indonesian renderings keyed by the canonical English message.
var indonesian = map[string]string{
	"Prompt is required":                                "Prompt wajib diisi",
	"Not enough credits":                                "Kredit tidak mencukupi",
	"A generation is already in progress":               "Masih ada proses pembuatan gambar yang berjalan",
	"generation failed":                                 "Pembuatan gambar gagal",
	"provider returned no output":                       "Penyedia tidak mengembalikan hasil",
	"generation interrupted by shutdown":                "Pembuatan gambar terhenti karena layanan dimatikan",
	"unknown error":                                     "Kesalahan tidak diketahui",
	"invalid generation request":                        "Permintaan pembuatan gambar tidak valid",
	"the generation provider reported an error":         "Penyedia pembuatan gambar melaporkan kesalahan",
	"could not reach the generation provider":           "Tidak dapat menghubungi penyedia pembuatan gambar",
	"the provider did not acknowledge the cancellation": "Penyedia tidak mengonfirmasi pembatalan",
	"the request timed out":                             "Permintaan melewati batas waktu",
	"the request was canceled":                          "Permintaan dibatalkan",
	"malformed inference response":                      "Respons penyedia tidak valid",
	"invalid request body":                              "Isi permintaan tidak valid",
	"unauthorized":                                      "Tidak memiliki akses",
	"too many requests":                                 "Terlalu banyak permintaan",
	"internal error":                                    "Terjadi kesalahan internal",
	"no generation found":                               "Belum ada proses pembuatan gambar",
}

func init() {
	for en, id := range indonesian {
		known[en] = struct{}{}
		_ = cat.SetString(language.English, en, en)
		_ = cat.SetString(language.Indonesian, en, id)
	}
}

// Match picks the supported locale closest to an Accept-Language style value.
// It returns "" when nothing in the header parses.
func Match(accept string) string {
	accept = strings.TrimSpace(accept)
	if accept == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, idx, _ := matcher.Match(tags...)
	return code(supported[idx])
}

// Normalize maps any locale string to a supported locale code, defaulting to
// English.
func Normalize(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return English
	}
	_, idx, _ := matcher.Match(tag)
	return code(supported[idx])
}

// Translate returns msg in locale. Messages without a translation, such as
// provider supplied error text, are returned unchanged.
func Translate(locale, msg string) string {
	if _, ok := known[msg]; !ok {
		return msg
	}
	tag := language.English
	if Normalize(locale) == Indonesian {
		tag = language.Indonesian
	}
	return message.NewPrinter(tag, message.Catalog(cat)).Sprintf(msg)
}

func code(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}
