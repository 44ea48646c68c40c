package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/extractor"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

// FastTextMaxChars is the document text cap for the fast backend.
const FastTextMaxChars = 15000

type OpenAIConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	MaxChars int
	Timeout  time.Duration
}

// OpenAI is the fast-text adapter for any OpenAI-compatible chat completions
// endpoint. It requests JSON-object mode, which guarantees syntactic JSON
// but not field types.
type OpenAI struct {
	apiKey   string
	model    string
	baseURL  string
	maxChars int
	logger   *utils.Logger
	client   *http.Client
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatMessage content is either a string or a list of contentPart.
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

func NewOpenAI(cfg OpenAIConfig, logger *utils.Logger) *OpenAI {
	o := &OpenAI{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxChars: cfg.MaxChars,
		logger:   logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	if o.model == "" {
		o.model = "gpt-4o-mini"
	}
	if o.baseURL == "" {
		o.baseURL = "https://api.openai.com/v1"
	}
	if o.maxChars <= 0 {
		o.maxChars = FastTextMaxChars
	}
	if o.client.Timeout == 0 {
		o.client.Timeout = 60 * time.Second
	}
	if o.logger == nil {
		o.logger = utils.NopLogger()
	}
	return o
}

func (o *OpenAI) Name() string {
	return o.model
}

func (o *OpenAI) Available() bool {
	return o.apiKey != ""
}

func (o *OpenAI) Invoke(ctx context.Context, call Call) (string, error) {
	if !o.Available() {
		return "", &Error{Provider: o.model, Err: ErrMissingCredential}
	}

	user, err := o.userMessage(call)
	if err != nil {
		return "", &Error{Provider: o.model, Err: err}
	}

	reqBody := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: call.Instructions},
			user,
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	content, err := o.send(ctx, reqBody)
	if err != nil {
		return "", wrapErr(o.model, ctx, err)
	}
	return content, nil
}

// userMessage builds the user turn. Images travel as data-URL image parts;
// PDFs are not images, so their text is extracted and sent inline.
func (o *OpenAI) userMessage(call Call) (chatMessage, error) {
	content := strings.TrimSpace(call.Content)

	if call.Image != "" && DetectMediaType(call.Image) == MediaPDF {
		data, err := DecodeBase64(call.Image)
		if err != nil {
			return chatMessage{}, err
		}
		pdfText, err := extractor.ExtractPDF(data)
		if err != nil {
			return chatMessage{}, fmt.Errorf("PDF payload not readable as text: %w", err)
		}
		if content != "" {
			content += "\n\n"
		}
		content += pdfText
		call.Image = ""
	}

	text := "Document Content:\n" + Truncate(content, o.maxChars)
	if content == "" {
		text = "Analyze the attached document."
	}

	if call.Image == "" {
		return chatMessage{Role: "user", Content: text}, nil
	}
	return chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: text},
			{Type: "image_url", ImageURL: &imageURL{URL: DataURL(call.Image)}},
		},
	}, nil
}

func (o *OpenAI) send(ctx context.Context, reqBody chatRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		o.logger.Error("Chat completion API error", "model", o.model, "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	content := chatResp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("no content in response")
	}
	return content, nil
}
