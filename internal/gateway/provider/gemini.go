package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"interpharma-gateway/internal/gateway/prompt"
	"interpharma-gateway/internal/models"
)

const defaultGeminiModel = "gemini-1.5-flash"

var errEmptyGemini = errors.New("gemini: empty response")

// GeminiBackend uses the Gemini SDK; it has a single shape because the SDK
// fixes the request layout.
type GeminiBackend struct {
	apiKey string
	model  string
	opts   []option.ClientOption
}

func NewGeminiBackend(apiKey, model string, opts ...option.ClientOption) *GeminiBackend {
	model = strings.TrimSpace(model)
	if model == "" || strings.HasPrefix(model, "mistral") {
		model = defaultGeminiModel
	}
	return &GeminiBackend{apiKey: strings.TrimSpace(apiKey), model: model, opts: opts}
}

func (g *GeminiBackend) Name() string     { return "gemini" }
func (g *GeminiBackend) Endpoint() string { return "generativelanguage.googleapis.com" }
func (g *GeminiBackend) Model() string    { return g.model }
func (g *GeminiBackend) Shapes() []Shape  { return []Shape{ShapeGemini} }

func (g *GeminiBackend) Send(ctx context.Context, _ Shape, p prompt.Prompt) (interface{}, int, error) {
	if g.apiKey == "" {
		return nil, 0, errors.New("gemini: api key is empty")
	}

	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, g.opts...)...)
	if err != nil {
		return nil, 0, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.model)
	if p.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}
	if p.Kind == models.KindStructured {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}

	user := p.User
	if user == "" {
		user = p.Text
	}
	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return nil, 0, err
	}

	text := firstText(resp)
	if text == "" {
		return nil, 0, errEmptyGemini
	}
	return map[string]interface{}{"text": text}, 200, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok && strings.TrimSpace(string(t)) != "" {
				return string(t)
			}
		}
	}
	return ""
}
