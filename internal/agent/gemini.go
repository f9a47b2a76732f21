package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/carolina/internal/domain"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiResponder generates replies with Google's Gemini API.
type GeminiResponder struct {
	client *genai.Client
	model  string
}

// NewGeminiResponder creates a Gemini-backed responder.
func NewGeminiResponder(ctx context.Context, apiKey, model string) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiResponder{client: client, model: model}, nil
}

// Respond implements Responder.
func (g *GeminiResponder) Respond(ctx context.Context, req Request) (*Reply, error) {
	contents := geminiContents(req)

	var config *genai.GenerateContentConfig
	if instruction := systemInstruction(req); instruction != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}
	return &Reply{Response: resp.Text()}, nil
}

func geminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range TrimHistory(req.History) {
		role := genai.Role(genai.RoleUser)
		if turn.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))
}

// systemInstruction joins the persona prompt and the core context banner.
func systemInstruction(req Request) string {
	switch {
	case req.SystemPrompt != "" && req.CoreContext != "":
		return req.SystemPrompt + "\n\n" + req.CoreContext
	case req.SystemPrompt != "":
		return req.SystemPrompt
	default:
		return req.CoreContext
	}
}
