package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func publishedEvent() Event {
	return Event{
		Kind:        DocPRPublished,
		Repo:        "acme/widgets",
		SourcePR:    17,
		DocPRURL:    "https://github.com/acme/docs/pull/7",
		DocPRNumber: 7,
		DocPath:     "api/users.md",
	}
}

func failedEvent() Event {
	return Event{
		Kind:     IndexingFailed,
		Repo:     "acme/widgets",
		SourcePR: 0,
		Error:    "tree fetch failed after 3 attempts",
	}
}

func TestBuildSlackPayload_Published(t *testing.T) {
	payload := BuildSlackPayload(publishedEvent())

	if len(payload.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(payload.Blocks))
	}
	if payload.Blocks[0].Text.Text != "Documentation PR Published" {
		t.Errorf("unexpected header: %q", payload.Blocks[0].Text.Text)
	}
	if !strings.Contains(payload.Blocks[1].Text.Text, "acme/widgets #17") {
		t.Errorf("source block missing trigger: %q", payload.Blocks[1].Text.Text)
	}
	body := payload.Blocks[2].Text.Text
	if !strings.Contains(body, "api/users.md") || !strings.Contains(body, "pull/7") {
		t.Errorf("docs PR block incomplete: %q", body)
	}
}

func TestBuildSlackPayload_Failed(t *testing.T) {
	payload := BuildSlackPayload(failedEvent())

	if payload.Blocks[0].Text.Text != "Repository Indexing Failed" {
		t.Errorf("unexpected header: %q", payload.Blocks[0].Text.Text)
	}
	// No PR number, so the source is just the repo.
	if !strings.Contains(payload.Blocks[1].Text.Text, "*acme/widgets*") {
		t.Errorf("source block wrong: %q", payload.Blocks[1].Text.Text)
	}
	if !strings.Contains(payload.Blocks[2].Text.Text, "tree fetch failed") {
		t.Errorf("error block missing message: %q", payload.Blocks[2].Text.Text)
	}
}

func TestBuildDiscordPayload(t *testing.T) {
	payload := BuildDiscordPayload(publishedEvent())

	if len(payload.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(payload.Embeds))
	}
	embed := payload.Embeds[0]
	if embed.Color != colorGreen {
		t.Errorf("color = %d", embed.Color)
	}
	if embed.URL != "https://github.com/acme/docs/pull/7" {
		t.Errorf("url = %q", embed.URL)
	}
	if len(embed.Fields) != 3 {
		t.Errorf("fields = %d", len(embed.Fields))
	}

	failed := BuildDiscordPayload(failedEvent())
	if failed.Embeds[0].Color != colorRed {
		t.Errorf("failure color = %d", failed.Embeds[0].Color)
	}
}

func TestSlackNotifier_Sends(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	if err := n.Notify(context.Background(), publishedEvent()); err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(received, &parsed); err != nil {
		t.Fatalf("invalid payload sent: %v", err)
	}
	if _, ok := parsed["blocks"]; !ok {
		t.Error("payload missing blocks")
	}
}

func TestDiscordNotifier_ReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL)
	err := n.Notify(context.Background(), publishedEvent())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error missing status: %v", err)
	}
}

type mockNotifier struct {
	called bool
	err    error
}

func (m *mockNotifier) Notify(ctx context.Context, event Event) error {
	m.called = true
	return m.err
}

func TestMultiNotifier_ContinuesOnError(t *testing.T) {
	n1 := &mockNotifier{err: errors.New("n1 failed")}
	n2 := &mockNotifier{}

	multi := NewMultiNotifier(n1, n2)
	err := multi.Notify(context.Background(), publishedEvent())
	if err == nil {
		t.Fatal("expected error from failing notifier")
	}
	if !n1.called || !n2.called {
		t.Error("all notifiers should be called")
	}
}

func TestNewNotifier(t *testing.T) {
	if _, err := NewNotifier("", ""); err == nil {
		t.Error("expected error with no URLs")
	}
	n, err := NewNotifier("https://slack.example/hook", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(*SlackNotifier); !ok {
		t.Errorf("got %T", n)
	}
	n, err = NewNotifier("https://slack.example/hook", "https://discord.example/hook")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := n.(*MultiNotifier); !ok {
		t.Errorf("got %T", n)
	}
}

func TestTruncateError(t *testing.T) {
	long := strings.Repeat("x", 600)
	if got := TruncateError(long); len(got) != maxErrorChars+3 {
		t.Errorf("len = %d", len(got))
	}
	if got := TruncateError("short"); got != "short" {
		t.Errorf("got %q", got)
	}
}
