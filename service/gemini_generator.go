package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lifedash-backend/logger"

	"github.com/google/generative-ai-go/genai"
)

// GenerateRequest is one structured-output call to the model
type GenerateRequest struct {
	Prompt      string
	Schema      *genai.Schema
	Temperature float32
}

// Generator produces a JSON document for a prompt
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

var ErrEmptyGeneration = errors.New("model returned empty content")

// GeminiGenerator calls a Gemini model in JSON mode
type GeminiGenerator struct {
	client *genai.Client
	model  string
	log    *logger.Logger
}

// NewGeminiGenerator creates a generator for the named model
func NewGeminiGenerator(client *genai.Client, model string, log *logger.Logger) *GeminiGenerator {
	if log == nil {
		log = logger.Nop()
	}
	return &GeminiGenerator{client: client, model: model, log: log.With("component", "gemini")}
}

// Generate sends the prompt and concatenates the text parts of the first candidate
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if g.client == nil {
		return "", errors.New("gemini client not set")
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(req.Temperature)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = req.Schema

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", permanent(fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyGeneration
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		g.log.Warn("candidate finished early", "model", g.model, "finish_reason", candidate.FinishReason.String())
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("candidate has no parts (finish reason: %s)", candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyGeneration
	}
	return sb.String(), nil
}
