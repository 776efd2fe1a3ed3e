package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Discord embed colors.
const (
	colorGreen = 3066993
	colorRed   = 15158332
)

// DiscordNotifier sends pipeline notifications to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordNotifier creates a DiscordNotifier with the given webhook URL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// discordEmbed represents a Discord embed object.
type discordEmbed struct {
	Title  string         `json:"title"`
	URL    string         `json:"url,omitempty"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields"`
}

// discordField represents a field in a Discord embed.
type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// discordPayload is the top-level Discord webhook payload.
type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// BuildDiscordPayload creates the Discord embed message for an event.
func BuildDiscordPayload(event Event) discordPayload {
	embed := discordEmbed{
		Title: Title(event),
		Fields: []discordField{
			{Name: "Source", Value: Source(event), Inline: true},
		},
	}

	switch event.Kind {
	case DocPRPublished:
		embed.URL = event.DocPRURL
		embed.Color = colorGreen
		embed.Fields = append(embed.Fields,
			discordField{Name: "Docs PR", Value: fmt.Sprintf("#%d", event.DocPRNumber), Inline: true},
			discordField{Name: "File", Value: fmt.Sprintf("`%s`", event.DocPath), Inline: true},
		)
	case IndexingFailed:
		embed.Color = colorRed
		embed.Fields = append(embed.Fields,
			discordField{Name: "Error", Value: TruncateError(event.Error), Inline: false},
		)
	}

	return discordPayload{Embeds: []discordEmbed{embed}}
}

// Notify sends the event to the Discord webhook.
func (d *DiscordNotifier) Notify(ctx context.Context, event Event) error {
	payload := BuildDiscordPayload(event)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
