package domain

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the URL parse cache. Browsing sessions revisit
// the same handful of URLs constantly, so a small cache absorbs nearly
// all parsing work on the tick path.
const DefaultCacheSize = 512

type cachedDomain struct {
	domain string
	ok     bool
}

// Matcher resolves URLs to tracked domains, caching parse results.
// Matching itself stays pure; only the URL→domain step is memoized.
type Matcher struct {
	cache *lru.Cache[string, cachedDomain]
}

// NewMatcher creates a matcher with an LRU parse cache of the given
// size. Size <= 0 uses DefaultCacheSize.
func NewMatcher(cacheSize int) (*Matcher, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedDomain](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Matcher{cache: cache}, nil
}

// DomainOf returns the normalized domain for a URL, consulting the
// parse cache first.
func (m *Matcher) DomainOf(rawURL string) (string, bool) {
	if hit, ok := m.cache.Get(rawURL); ok {
		return hit.domain, hit.ok
	}
	d, ok := Normalize(rawURL)
	m.cache.Add(rawURL, cachedDomain{domain: d, ok: ok})
	return d, ok
}
