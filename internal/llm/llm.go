// Package llm wraps the Anthropic client as a structured-ask capability:
// prompt in, parsed JSON out, with fence stripping and repair between.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rotisserie/eris"

	"github.com/centinela-labs/centinela/pkg/anthropic"
)

// Asker is the capability the pipeline stages depend on. Implementations
// must never panic on malformed model output; parse failures surface as
// *ParseError with the raw text attached.
type Asker interface {
	// AskStructured sends prompt and unmarshals the JSON reply into out.
	AskStructured(ctx context.Context, prompt string, temperature float64, out any) error
	// AskText sends prompt and returns the raw text reply.
	AskText(ctx context.Context, prompt string, temperature float64) (string, error)
}

// ParseError reports model output that could not be parsed as JSON even
// after cleanup and repair. RawText carries the cleaned reply so callers
// can log or inspect it.
type ParseError struct {
	RawText string
}

func (e *ParseError) Error() string {
	preview := e.RawText
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	return fmt.Sprintf("llm: response is not valid JSON: %q", preview)
}

// IsParseError reports whether err (or its cause) is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return eris.As(err, &pe)
}

type claudeAsker struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates an Asker backed by the given Anthropic client and model.
func New(client anthropic.Client, model string, maxTokens int64) Asker {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &claudeAsker{client: client, model: model, maxTokens: maxTokens}
}

func (a *claudeAsker) AskText(ctx context.Context, prompt string, temperature float64) (string, error) {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: ask text")
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (a *claudeAsker) AskStructured(ctx context.Context, prompt string, temperature float64, out any) error {
	text, err := a.AskText(ctx, prompt, temperature)
	if err != nil {
		return err
	}
	return Unmarshal(text, out)
}

// Unmarshal parses model output into out: first as-is after fence
// stripping, then after jsonrepair. Returns *ParseError when both fail.
func Unmarshal(text string, out any) error {
	cleaned := CleanJSON(text)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return &ParseError{RawText: cleaned}
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return &ParseError{RawText: cleaned}
	}
	return nil
}

// CleanJSON extracts a JSON object or array from text that may carry
// markdown code fences or prose around it.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Keep whichever of {...} or [...] starts first.
	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		if end := strings.LastIndex(text, "}"); end > objStart {
			text = text[objStart : end+1]
		}
	case arrStart >= 0:
		if end := strings.LastIndex(text, "]"); end > arrStart {
			text = text[arrStart : end+1]
		}
	}

	return strings.TrimSpace(text)
}
