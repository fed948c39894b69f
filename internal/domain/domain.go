package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// LimitRule grants a domain a daily time budget. Unique by domain.
type LimitRule struct {
	Domain       string `json:"domain"`
	LimitMinutes int    `json:"limitMinutes"`
}

// LimitSeconds returns the daily budget in seconds.
func (r LimitRule) LimitSeconds() int {
	return r.LimitMinutes * 60
}

// BlockRule marks a domain as permanently blocked. Unique by domain.
// A block always wins over a limit on the same domain.
type BlockRule struct {
	Domain string `json:"domain"`
}

// Normalize extracts the tracked domain from a full URL: hostname,
// lowercased, with a leading "www." stripped. Returns false for
// unparseable input or input without a hostname.
func Normalize(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", false
	}
	return host, true
}

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+\-.]*://`)
var portRe = regexp.MustCompile(`:[0-9]+$`)

// NormalizeInput turns free-text user input into a bare hostname. It
// tolerates full URLs, paths, queries, fragments and ports, so both
// "https://www.twitter.com/home?q=1#top" and "twitter.com" yield
// "twitter.com". Returns "" when nothing resembling a hostname remains.
func NormalizeInput(input string) string {
	s := strings.TrimSpace(input)
	s = schemeRe.ReplaceAllString(s, "")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = portRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "www.")
	return strings.ToLower(s)
}

// Matches reports whether domain d falls under ruleDomain: either an
// exact match or a subdomain of it. "notfacebook.com" does not match a
// rule for "facebook.com".
func Matches(ruleDomain, d string) bool {
	return d == ruleDomain || strings.HasSuffix(d, "."+ruleDomain)
}

// MatchLimit returns the limit rule covering d. When several rules
// match (e.g. both "x.com" and "sub.x.com" carry limits and d is
// "a.sub.x.com"), the most specific rule wins: the one with the
// longest domain suffix.
func MatchLimit(rules []LimitRule, d string) (LimitRule, bool) {
	var best LimitRule
	found := false
	for _, r := range rules {
		if !Matches(r.Domain, d) {
			continue
		}
		if !found || len(r.Domain) > len(best.Domain) {
			best = r
			found = true
		}
	}
	return best, found
}

// MatchBlock reports whether d is covered by any block rule.
func MatchBlock(rules []BlockRule, d string) bool {
	for _, r := range rules {
		if Matches(r.Domain, d) {
			return true
		}
	}
	return false
}
