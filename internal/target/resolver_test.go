package target

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testManifest() *Manifest {
	return &Manifest{Docs: map[string]string{
		"api/users.md":   "User management API",
		"guides/auth.md": "Authentication guide",
	}}
}

func TestResolvePicksManifestEntry(t *testing.T) {
	completer := &fakeCompleter{response: "api/users.md"}
	r := NewResolver(completer, 0, nil)

	got := r.Resolve(context.Background(), testManifest(), []string{"src/routes/users.ts"})
	if got != "api/users.md" {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(completer.prompts[0], "User management API") {
		t.Error("prompt missing manifest topics")
	}
	if !strings.Contains(completer.prompts[0], "src/routes/users.ts") {
		t.Error("prompt missing changed files")
	}
}

func TestResolveSanitizesDecoration(t *testing.T) {
	cases := []string{
		"`api/users.md`",
		"\"api/users.md\"",
		"  api/users.md  \n",
		"```\napi/users.md\n```",
	}
	for _, resp := range cases {
		completer := &fakeCompleter{response: resp}
		r := NewResolver(completer, 0, nil)
		if got := r.Resolve(context.Background(), testManifest(), nil); got != "api/users.md" {
			t.Errorf("response %q resolved to %q", resp, got)
		}
	}
}

func TestResolveFallbacks(t *testing.T) {
	cases := []struct {
		name     string
		response string
		err      error
	}{
		{name: "none answer", response: "NONE"},
		{name: "traversal", response: "../secrets.md"},
		{name: "absolute", response: "/etc/passwd"},
		{name: "not markdown", response: "api/users.md.sh"},
		{name: "empty", response: "   "},
		{name: "provider error", err: errors.New("down")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			completer := &fakeCompleter{response: tc.response, err: tc.err}
			r := NewResolver(completer, 0, nil)
			if got := r.Resolve(context.Background(), testManifest(), nil); got != FallbackPath {
				t.Fatalf("got %q, want fallback", got)
			}
		})
	}
}

func TestResolveAcceptsNewPath(t *testing.T) {
	completer := &fakeCompleter{response: "api-reference/new-endpoint.md"}
	r := NewResolver(completer, 0, nil)

	manifest := &Manifest{Docs: map[string]string{"guides/auth.md": "Authentication guide"}}
	got := r.Resolve(context.Background(), manifest, []string{"src/routes/endpoint.ts"})
	if got != "api-reference/new-endpoint.md" {
		t.Fatalf("got %q, want the suggested path", got)
	}
}

func TestResolveNoManifestAsksModel(t *testing.T) {
	completer := &fakeCompleter{response: "guides/getting-started.md"}
	r := NewResolver(completer, 0, nil)

	got := r.Resolve(context.Background(), nil, []string{"src/main.ts"})
	if got != "guides/getting-started.md" {
		t.Fatalf("got %q", got)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("expected one model call, got %d", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[0], "No existing documentation structure") {
		t.Error("prompt should say no structure was found")
	}
	if !strings.Contains(completer.prompts[0], "src/main.ts") {
		t.Error("prompt missing changed files")
	}
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{"docs": {"api/users.md": "Users"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.Docs["api/users.md"] != "Users" {
		t.Fatalf("unexpected manifest: %+v", m)
	}

	if _, err := ParseManifest([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed manifest")
	}
}

func TestValidPath(t *testing.T) {
	cases := map[string]bool{
		"api/users.md":       true,
		"README.md":          true,
		"../escape.md":       false,
		"a/../../escape.md":  false,
		"/abs.md":            false,
		"a\\b.md":            false,
		"api/users.md/extra": false,
		"":                   false,
	}
	for p, want := range cases {
		if got := validPath(p); got != want {
			t.Errorf("validPath(%q) = %v, want %v", p, got, want)
		}
	}
}
