package domain

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{"plain https", "https://youtube.com/watch?v=abc", "youtube.com", true},
		{"www stripped", "https://www.youtube.com/watch", "youtube.com", true},
		{"uppercase host", "https://WWW.Twitter.COM/home", "twitter.com", true},
		{"port kept out", "http://reddit.com:8080/r/golang", "reddit.com", true},
		{"subdomain kept", "https://music.youtube.com/", "music.youtube.com", true},
		{"extension page", "chrome-extension://abcdef/blocked.html", "abcdef", true},
		{"no hostname", "about:blank", "", false},
		{"empty", "", "", false},
		{"garbage", "://///", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("Normalize(%q) ok = %v, want %v", tt.url, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare domain", "twitter.com", "twitter.com"},
		{"full url", "https://www.twitter.com/home?q=1#top", "twitter.com"},
		{"scheme only", "http://reddit.com", "reddit.com"},
		{"path", "youtube.com/watch?v=abc", "youtube.com"},
		{"port", "localhost:8080", "localhost"},
		{"www prefix", "www.example.com", "example.com"},
		{"uppercase", "YouTube.COM", "youtube.com"},
		{"whitespace", "  facebook.com  ", "facebook.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeInput(tt.input); got != tt.want {
				t.Fatalf("NormalizeInput(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name       string
		ruleDomain string
		domain     string
		want       bool
	}{
		{"exact", "facebook.com", "facebook.com", true},
		{"subdomain", "facebook.com", "m.facebook.com", true},
		{"deep subdomain", "x.com", "a.sub.x.com", true},
		{"suffix but not subdomain", "facebook.com", "notfacebook.com", false},
		{"different domain", "facebook.com", "twitter.com", false},
		{"parent of rule", "m.facebook.com", "facebook.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.ruleDomain, tt.domain); got != tt.want {
				t.Fatalf("Matches(%q, %q) = %v, want %v", tt.ruleDomain, tt.domain, got, tt.want)
			}
		})
	}
}

func TestMatchLimitMostSpecific(t *testing.T) {
	rules := []LimitRule{
		{Domain: "x.com", LimitMinutes: 60},
		{Domain: "sub.x.com", LimitMinutes: 5},
	}

	rule, ok := MatchLimit(rules, "a.sub.x.com")
	if !ok {
		t.Fatal("expected a match for a.sub.x.com")
	}
	if rule.Domain != "sub.x.com" {
		t.Fatalf("expected most specific rule sub.x.com, got %s", rule.Domain)
	}

	rule, ok = MatchLimit(rules, "other.x.com")
	if !ok {
		t.Fatal("expected a match for other.x.com")
	}
	if rule.Domain != "x.com" {
		t.Fatalf("expected rule x.com, got %s", rule.Domain)
	}

	if _, ok := MatchLimit(rules, "example.com"); ok {
		t.Fatal("expected no match for example.com")
	}
}

func TestMatchBlock(t *testing.T) {
	rules := []BlockRule{{Domain: "reddit.com"}}

	if !MatchBlock(rules, "reddit.com") {
		t.Fatal("expected reddit.com to be blocked")
	}
	if !MatchBlock(rules, "old.reddit.com") {
		t.Fatal("expected old.reddit.com to be blocked")
	}
	if MatchBlock(rules, "notreddit.com") {
		t.Fatal("expected notreddit.com not to be blocked")
	}
}

func TestMatcherCaches(t *testing.T) {
	m, err := NewMatcher(4)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}

	d, ok := m.DomainOf("https://www.youtube.com/watch")
	if !ok || d != "youtube.com" {
		t.Fatalf("DomainOf = %q, %v", d, ok)
	}

	// Second lookup must come from the cache and agree.
	d2, ok2 := m.DomainOf("https://www.youtube.com/watch")
	if !ok2 || d2 != d {
		t.Fatalf("cached DomainOf = %q, %v", d2, ok2)
	}
}
