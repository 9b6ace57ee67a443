// Package extraction turns free-form email text into structured meeting
// fields via the OpenAI chat API. The model is instructed to answer with a
// JSON object as the sole response content.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"mailcal/internal/config"
	"mailcal/internal/events"
)

const systemPrompt = `Extract the meeting schedule from the following email content. ` +
	`Respond with a JSON object only, no other text. Example: ` +
	`{ "parsedTitle": "Weekly sync", "parsedStartAt": "2025-04-02T10:00:00", ` +
	`"parsedEndAt": "2025-04-02T11:00:00", "parsedLocation": "Room A" }`

// ParsedSchedule is the structured output of one extraction call
type ParsedSchedule struct {
	Title    string `json:"parsedTitle"`
	StartAt  string `json:"parsedStartAt"`
	EndAt    string `json:"parsedEndAt"`
	Location string `json:"parsedLocation"`
}

// Client calls the extraction collaborator
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates an extraction client from configuration
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	return &Client{
		api:     openai.NewClient(cfg.OpenAIKey),
		model:   openai.GPT4o,
		timeout: time.Duration(cfg.OpenAITimeout) * time.Second,
	}, nil
}

// ParseSchedule extracts meeting fields from an email body. Any failure,
// including a non-JSON model response, is returned as an error for the
// handler boundary to convert into a FAILURE result.
func (c *Client) ParseSchedule(ctx context.Context, body string) (*ParsedSchedule, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: body},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction returned no choices")
	}

	return parseResponse(resp.Choices[0].Message.Content)
}

// parseResponse validates the model output and returns the structured fields
func parseResponse(content string) (*ParsedSchedule, error) {
	cleaned := cleanResponse(content)

	var parsed ParsedSchedule
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("extraction response is not valid JSON: %v", err)
	}
	if parsed.Title == "" {
		return nil, fmt.Errorf("extraction response missing parsedTitle")
	}
	if _, err := events.ParseEventTime(parsed.StartAt); err != nil {
		return nil, fmt.Errorf("extraction response has invalid parsedStartAt: %v", err)
	}
	if _, err := events.ParseEventTime(parsed.EndAt); err != nil {
		return nil, fmt.Errorf("extraction response has invalid parsedEndAt: %v", err)
	}
	return &parsed, nil
}

// cleanResponse strips markdown code fences the model sometimes wraps
// around its JSON answer
func cleanResponse(content string) string {
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")
	return strings.TrimSpace(content)
}
