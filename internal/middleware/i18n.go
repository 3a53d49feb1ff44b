package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"charagen/internal/i18n"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// edgeCountryHeaders are set by CDNs and load balancers in front of the API.
var edgeCountryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

type localeResolver struct {
	fallback string
	lookup   CountryLookup
}

// I18N stores the caller's locale and country on the request context and
// announces the locale in Content-Language. The locale comes from X-Locale,
// then Accept-Language, then the country, then defaultLocale.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	res := localeResolver{fallback: i18n.Normalize(defaultLocale), lookup: lookup}
	if strings.TrimSpace(defaultLocale) == "" {
		res.fallback = i18n.English
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := res.country(r)
			locale := res.locale(r, country)

			h := w.Header()
			h.Set("Content-Language", locale)
			h.Add("Vary", "Accept-Language")
			h.Add("Vary", "X-Locale")

			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (res localeResolver) locale(r *http.Request, country string) string {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return i18n.Normalize(v)
	}
	if v := i18n.Match(r.Header.Get("Accept-Language")); v != "" {
		return v
	}
	switch {
	case country == "ID":
		return i18n.Indonesian
	case country != "":
		return i18n.English
	}
	return res.fallback
}

// country prefers edge headers, then an explicit region in the requested
// locale, then the GeoIP lookup of the client address.
func (res localeResolver) country(r *http.Request) string {
	for _, key := range edgeCountryHeaders {
		if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
			return strings.ToUpper(v)
		}
	}
	if region := explicitRegion(r.Header.Get("X-Locale"), r.Header.Get("Accept-Language")); region != "" {
		return region
	}
	if res.lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := res.lookup(ip)
	if err != nil {
		LoggerFromContext(r.Context()).Debug().Err(err).Str("ip", ip).Msg("i18n: country lookup failed")
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(country))
}

// explicitRegion returns the region subtag of the first locale value that
// names one, e.g. "AU" for "en-AU". A bare "id" implies Indonesia.
func explicitRegion(values ...string) string {
	for _, v := range values {
		tags, _, err := language.ParseAcceptLanguage(strings.ReplaceAll(v, "_", "-"))
		if err != nil || len(tags) == 0 {
			continue
		}
		if region, conf := tags[0].Region(); conf == language.Exact {
			return region.String()
		}
		if base, _ := tags[0].Base(); base.String() == i18n.Indonesian {
			return "ID"
		}
	}
	return ""
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return i18n.English
}

// CountryFromContext returns the ISO country code stored by I18N, if any.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}
