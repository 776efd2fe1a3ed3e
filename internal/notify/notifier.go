package notify

import (
	"context"
	"fmt"
	"log"
)

// EventKind distinguishes the notification types.
type EventKind string

const (
	// DocPRPublished fires when a documentation pull request is opened.
	DocPRPublished EventKind = "doc_pr_published"
	// IndexingFailed fires when an indexing job exhausts its attempts.
	IndexingFailed EventKind = "indexing_failed"
)

// Event describes something worth telling humans about.
type Event struct {
	Kind EventKind
	// Repo is the repository the event concerns, as "owner/name".
	Repo string
	// SourcePR is the pull request that triggered a documentation update.
	SourcePR int
	// DocPRURL and DocPRNumber identify the published documentation PR.
	DocPRURL    string
	DocPRNumber int
	// DocPath is the documentation file that was updated.
	DocPath string
	// Error carries the failure message for IndexingFailed events.
	Error string
}

// Notifier sends notifications about pipeline events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify sends the event to all configured notifiers. It logs errors from
// individual notifiers but continues to the rest. Returns the last error
// encountered, if any.
func (m *MultiNotifier) Notify(ctx context.Context, event Event) error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			log.Printf("notifier error: %v", err)
			lastErr = err
		}
	}
	return lastErr
}

// NewNotifier creates a Notifier from the configured webhook URLs. With both
// URLs set, events fan out to both channels.
func NewNotifier(slackURL, discordURL string) (Notifier, error) {
	switch {
	case slackURL != "" && discordURL != "":
		return NewMultiNotifier(NewSlackNotifier(slackURL), NewDiscordNotifier(discordURL)), nil
	case slackURL != "":
		return NewSlackNotifier(slackURL), nil
	case discordURL != "":
		return NewDiscordNotifier(discordURL), nil
	default:
		return nil, fmt.Errorf("no notification webhook configured")
	}
}
