package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestGenerators_PrefixAndCharset(t *testing.T) {
	for _, tc := range []struct {
		name   string
		gen    func() (string, error)
		prefix string
	}{
		{"Project", Project, ProjectPrefix},
		{"Config", Config, ConfigPrefix},
		{"User", User, UserPrefix},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(tc.prefix) + `[a-zA-Z0-9]{` + "10" + `}$`)
			for i := 0; i < 100; i++ {
				id, err := tc.gen()
				if err != nil {
					t.Fatalf("error on iteration %d: %v", i, err)
				}
				if !pattern.MatchString(id) {
					t.Fatalf("id %q does not match %s", id, pattern)
				}
			}
		})
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := Config()
		if err != nil {
			t.Fatalf("Config() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	id, err := GenerateWithPrefix("test-")
	if err != nil {
		t.Fatalf("GenerateWithPrefix() error: %v", err)
	}
	if !strings.HasPrefix(id, "test-") || len(id) != len("test-")+Length {
		t.Errorf("GenerateWithPrefix() = %q", id)
	}
}

func TestVersion(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{32}$`)
	a, err := Version()
	if err != nil {
		t.Fatalf("Version() error: %v", err)
	}
	b, _ := Version()
	if !pattern.MatchString(a) {
		t.Errorf("Version() = %q, want 32 hex chars", a)
	}
	if a == b {
		t.Error("two version tokens are equal")
	}
}

func TestAuthToken(t *testing.T) {
	tok, err := AuthToken()
	if err != nil {
		t.Fatalf("AuthToken() error: %v", err)
	}
	if len(tok) != TokenLength {
		t.Errorf("len = %d, want %d", len(tok), TokenLength)
	}
}
