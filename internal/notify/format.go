package notify

import "fmt"

// maxErrorChars bounds error messages in chat payloads.
const maxErrorChars = 500

// Title returns the headline for an event.
func Title(event Event) string {
	switch event.Kind {
	case DocPRPublished:
		return "Documentation PR Published"
	case IndexingFailed:
		return "Repository Indexing Failed"
	default:
		return "Notification"
	}
}

// Source formats the triggering change, e.g. "acme/widgets #17".
func Source(event Event) string {
	if event.SourcePR > 0 {
		return fmt.Sprintf("%s #%d", event.Repo, event.SourcePR)
	}
	return event.Repo
}

// TruncateError bounds an error message for display.
func TruncateError(msg string) string {
	if len(msg) > maxErrorChars {
		return msg[:maxErrorChars] + "..."
	}
	return msg
}
