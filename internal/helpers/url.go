package helpers

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":     {},
	"utm_medium":     {},
	"utm_campaign":   {},
	"utm_term":       {},
	"utm_content":    {},
	"utm_id":         {},
	"gclid":          {},
	"fbclid":         {},
	"msclkid":        {},
	"igshid":         {},
	"oc":             {},
	"ref":            {},
	"ref_src":        {},
	"cx_testid":      {},
	"cx_testvariant": {},
}

// CanonicalLink normalises a link so the same article reached through different feeds
// compares equal: lower-case scheme and host, default port removed, path cleaned, fragment
// dropped, tracking parameters removed and the remaining query sorted.
func CanonicalLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" && u.Host == "" {
		if u, err = url.Parse("https://" + strings.TrimPrefix(raw, "//")); err != nil {
			return "", err
		}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("url missing host")
	}
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host

	p := u.Path
	if p == "" {
		p = "/"
	}
	clean := path.Clean(p)
	if clean != "/" && strings.HasSuffix(p, "/") {
		clean += "/"
	}
	u.Path = clean
	u.RawPath = ""
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for key := range q {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			q.Del(key)
		}
	}
	for key := range q {
		sort.Strings(q[key])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LinkOrCanonical returns the canonical form of raw, or raw trimmed when it cannot be parsed.
func LinkOrCanonical(raw string) string {
	if c, err := CanonicalLink(raw); err == nil {
		return c
	}
	return strings.TrimSpace(raw)
}
