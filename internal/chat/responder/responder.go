// Package responder produces automated replies for ai_active chat rooms.
package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/chat/domain"
	"leadflow_backend/platform/logger"

	"google.golang.org/genai"
)

// Responder turns a room transcript into the next automated reply. The
// metadata map describes how the reply was produced and is stored with the
// message; it may be nil.
type Responder interface {
	Reply(ctx context.Context, history []domain.Message, inbound string) (string, map[string]any, error)
}

const systemPrompt = `You are a helpful assistant for a business software consultancy.
Answer visitor questions about products, consultations and pricing briefly and
politely. If you cannot help, say that a member of the team will follow up.`

// GeminiResponder calls the Gemini API for replies.
type GeminiResponder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

// NewGemini creates a Gemini-backed responder.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration, log *logger.Logger) (*GeminiResponder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GeminiResponder{client: client, model: model, timeout: timeout, log: log}, nil
}

// Reply generates the next assistant message for the conversation.
func (r *GeminiResponder) Reply(ctx context.Context, history []domain.Message, inbound string) (string, map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nConversation so far:\n")
	for _, msg := range history {
		switch msg.Type {
		case domain.SenderVisitor:
			sb.WriteString("Visitor: ")
		case domain.SenderAI:
			sb.WriteString("Assistant: ")
		default:
			continue
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("Visitor: ")
	sb.WriteString(inbound)
	sb.WriteString("\nAssistant:")

	resp, err := r.client.Models.GenerateContent(ctx, r.model, genai.Text(sb.String()), nil)
	if err != nil {
		return "", nil, fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", nil, fmt.Errorf("empty model response")
	}

	meta := map[string]any{"model": r.model}
	if len(resp.Candidates) > 0 && resp.Candidates[0].AvgLogprobs != 0 {
		meta["avgLogprobs"] = resp.Candidates[0].AvgLogprobs
	}
	return text, meta, nil
}
