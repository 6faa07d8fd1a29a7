// Package gemini implements the metadata-generation collaborator against the
// Google Gemini API: one call per media file plus the lightweight key probe.
package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Metadata is the descriptive record generated for one media file.
type Metadata struct {
	Title       string   `json:"title"`
	Keywords    []string `json:"keywords"`
	Description string   `json:"description"`
}

// metadataSchema constrains the model's JSON reply. Replies that do not
// conform are rejected before they reach the caller.
const metadataSchema = `{
  "type": "object",
  "required": ["title", "keywords", "description"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "keywords": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": 1
    },
    "description": {"type": "string", "minLength": 1}
  }
}`

// parseMetadata validates and decodes a model reply. Any malformed reply is
// reported as an error; the caller decides whether to regenerate.
func parseMetadata(raw string) (*Metadata, error) {
	cleaned := cleanJSONBlock(raw)

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(metadataSchema),
		gojsonschema.NewStringLoader(cleaned),
	)
	if err != nil {
		return nil, fmt.Errorf("metadata reply is not valid JSON: %w", err)
	}
	if !result.Valid() {
		var reasons []string
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return nil, fmt.Errorf("metadata reply failed schema validation: %s", strings.Join(reasons, "; "))
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(cleaned), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata reply: %w", err)
	}
	return &meta, nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// buildPrompt renders the generation prompt for one file under the given
// settings.
func buildPrompt(s Settings) string {
	var sb strings.Builder
	sb.WriteString("You are generating stock-asset metadata for the attached image.\n")
	sb.WriteString("Return a single JSON object with exactly these fields:\n")
	fmt.Fprintf(&sb, "  \"title\": a descriptive title of at most %d characters,\n", s.TitleLength)
	fmt.Fprintf(&sb, "  \"keywords\": an array of exactly %d relevant single-word keywords ordered by relevance,\n", s.KeywordCount)
	fmt.Fprintf(&sb, "  \"description\": a factual description of at most %d characters.\n", s.DescriptionLength)
	sb.WriteString("Do not include camera settings or watermark mentions. Respond with JSON only.")
	return sb.String()
}
