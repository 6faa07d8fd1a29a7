package gemini

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata_Valid(t *testing.T) {
	raw := `{"title": "Autumn forest at dawn", "keywords": ["autumn", "forest", "dawn"], "description": "Golden light over a misty autumn forest."}`

	meta, err := parseMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, "Autumn forest at dawn", meta.Title)
	assert.Len(t, meta.Keywords, 3)
	assert.NotEmpty(t, meta.Description)
}

func TestParseMetadata_StripsCodeFences(t *testing.T) {
	raw := "```json\n{\"title\": \"t\", \"keywords\": [\"k\"], \"description\": \"d\"}\n```"

	meta, err := parseMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, "t", meta.Title)
}

func TestParseMetadata_RejectsMissingFields(t *testing.T) {
	raw := `{"title": "no keywords here", "description": "d"}`

	_, err := parseMetadata(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestParseMetadata_RejectsEmptyKeywords(t *testing.T) {
	raw := `{"title": "t", "keywords": [], "description": "d"}`

	_, err := parseMetadata(raw)
	assert.Error(t, err)
}

func TestParseMetadata_RejectsNonJSON(t *testing.T) {
	_, err := parseMetadata("Sure! Here is your metadata: title ...")
	assert.Error(t, err)
}

func TestBuildPrompt_IncludesLimits(t *testing.T) {
	prompt := buildPrompt(Settings{TitleLength: 70, KeywordCount: 25, DescriptionLength: 160})

	assert.True(t, strings.Contains(prompt, "70"))
	assert.True(t, strings.Contains(prompt, "25"))
	assert.True(t, strings.Contains(prompt, "160"))
	assert.Contains(t, prompt, "JSON")
}

func TestImageFormat(t *testing.T) {
	for path, want := range map[string]string{
		"photo.jpg":  "jpeg",
		"photo.JPEG": "jpeg",
		"icon.png":   "png",
		"anim.webp":  "webp",
	} {
		got, err := imageFormat(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got)
	}

	_, err := imageFormat("clip.mp4")
	assert.Error(t, err)
}

func TestDefaultSettingsApplied(t *testing.T) {
	c := NewClient(Settings{})
	assert.Equal(t, DefaultSettings(), c.settings)

	c = NewClient(Settings{Model: "gemini-2.5-pro"})
	assert.Equal(t, "gemini-2.5-pro", c.settings.Model)
	assert.Equal(t, DefaultSettings().KeywordCount, c.settings.KeywordCount)
}
