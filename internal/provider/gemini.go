package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// LongContextMaxChars is the document text cap for the long-context backend.
const LongContextMaxChars = 100000

type GeminiConfig struct {
	APIKey   string
	Model    string
	MaxChars int
}

// generateFunc performs one schema-constrained generation.
type generateFunc func(ctx context.Context, schema *genai.Schema, parts ...genai.Part) (string, error)

// Gemini is the long-context / vision adapter. It accepts inline image and
// PDF payloads and enforces the output schema natively.
type Gemini struct {
	model    string
	maxChars int
	client   *genai.Client
	generate generateFunc
}

// NewGemini creates the adapter. Without an API key the adapter is
// returned unavailable rather than failing.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	g := &Gemini{
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
	}
	if g.model == "" {
		g.model = "gemini-2.0-flash"
	}
	if g.maxChars <= 0 {
		g.maxChars = LongContextMaxChars
	}
	if cfg.APIKey == "" {
		return g, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	g.generate = g.generateContent
	return g, nil
}

func (g *Gemini) Name() string {
	return g.model
}

func (g *Gemini) Available() bool {
	return g.generate != nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) Invoke(ctx context.Context, call Call) (string, error) {
	if !g.Available() {
		return "", &Error{Provider: g.model, Err: ErrMissingCredential}
	}

	parts, err := g.parts(call)
	if err != nil {
		return "", &Error{Provider: g.model, Err: err}
	}

	text, err := g.generate(ctx, toGenaiSchema(call.Schema), parts...)
	if err != nil {
		return "", wrapErr(g.model, ctx, err)
	}
	return text, nil
}

func (g *Gemini) parts(call Call) ([]genai.Part, error) {
	var b strings.Builder
	b.WriteString(call.Instructions)
	if content := strings.TrimSpace(call.Content); content != "" {
		b.WriteString("\n\nDocument content:\n")
		b.WriteString(Truncate(content, g.maxChars))
	}

	parts := []genai.Part{genai.Text(b.String())}
	if call.Image != "" {
		data, err := DecodeBase64(call.Image)
		if err != nil {
			return nil, err
		}
		parts = append(parts, genai.Blob{
			MIMEType: DetectMediaType(call.Image),
			Data:     data,
		})
	}
	return parts, nil
}

func (g *Gemini) generateContent(ctx context.Context, schema *genai.Schema, parts ...genai.Part) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = schema

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no candidates in response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("empty response")
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		return "", errors.New("response truncated at max tokens")
	}
	return b.String(), nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        toGenaiType(s.Type),
		Description: s.Description,
		Nullable:    s.Nullable,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func toGenaiType(t SchemaType) genai.Type {
	switch t {
	case TypeObject:
		return genai.TypeObject
	case TypeArray:
		return genai.TypeArray
	case TypeString:
		return genai.TypeString
	case TypeInteger:
		return genai.TypeInteger
	case TypeNumber:
		return genai.TypeNumber
	case TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
