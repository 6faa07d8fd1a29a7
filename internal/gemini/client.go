package gemini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/thisnaeem/metagen/internal/scheduler"
)

// Settings controls the generated metadata shape and the model used.
type Settings struct {
	Model             string
	TitleLength       int
	KeywordCount      int
	DescriptionLength int
}

// DefaultSettings returns the settings used when the config leaves them unset.
func DefaultSettings() Settings {
	return Settings{
		Model:             "gemini-2.5-flash",
		TitleLength:       70,
		KeywordCount:      25,
		DescriptionLength: 160,
	}
}

// Client implements the scheduler's Generator and Validator against Gemini.
// The API key varies per call (each scheduler assignment carries its own
// key), so a genai client is created per request rather than held.
type Client struct {
	settings Settings
}

// NewClient creates a client with the given settings; zero fields fall back
// to defaults.
func NewClient(settings Settings) *Client {
	def := DefaultSettings()
	if settings.Model == "" {
		settings.Model = def.Model
	}
	if settings.TitleLength <= 0 {
		settings.TitleLength = def.TitleLength
	}
	if settings.KeywordCount <= 0 {
		settings.KeywordCount = def.KeywordCount
	}
	if settings.DescriptionLength <= 0 {
		settings.DescriptionLength = def.DescriptionLength
	}
	return &Client{settings: settings}
}

// Generate produces metadata for one media file. Errors carry the failure
// class the scheduler branches on.
func (c *Client) Generate(ctx context.Context, secret string, req scheduler.Request) (any, error) {
	data, err := os.ReadFile(req.File)
	if err != nil {
		return nil, scheduler.Permanent(fmt.Errorf("failed to read %s: %w", req.File, err))
	}
	format, err := imageFormat(req.File)
	if err != nil {
		return nil, scheduler.Permanent(err)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(secret))
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to create Gemini client: %w", err))
	}
	defer client.Close()

	model := client.GenerativeModel(c.settings.Model)
	model.SetTemperature(0.1) // Low temperature for consistent output
	model.ResponseMIMEType = "application/json"

	prompt := buildPrompt(c.settings)
	if extra, ok := req.Payload.(string); ok && extra != "" {
		prompt = prompt + "\nAdditional instructions: " + extra
	}

	resp, err := model.GenerateContent(ctx, genai.ImageData(format, data), genai.Text(prompt))
	if err != nil {
		return nil, classifyError(err)
	}

	text, err := extractText(resp)
	if err != nil {
		// An empty or blocked reply is a model flake; regeneration
		// usually fixes it.
		return nil, scheduler.Transient(err)
	}

	meta, err := parseMetadata(text)
	if err != nil {
		return nil, scheduler.Transient(err)
	}
	return meta, nil
}

// Validate performs the single lightweight probe for a key: a token count on
// a trivial input. It classifies the key, nothing more; retry policy and
// state transitions belong to the caller.
func (c *Client) Validate(ctx context.Context, secret string) error {
	client, err := genai.NewClient(ctx, option.WithAPIKey(secret))
	if err != nil {
		return classifyError(fmt.Errorf("failed to create Gemini client: %w", err))
	}
	defer client.Close()

	model := client.GenerativeModel(c.settings.Model)
	if _, err := model.CountTokens(ctx, genai.Text("ping")); err != nil {
		return classifyError(err)
	}
	return nil
}

// extractText flattens the text parts of a Gemini response.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// imageFormat maps a file extension to the format tag genai expects.
func imageFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg", nil
	case ".png":
		return "png", nil
	case ".webp":
		return "webp", nil
	default:
		return "", fmt.Errorf("unsupported media type: %s", path)
	}
}
