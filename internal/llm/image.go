package llm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
)

// Image is a generated illustration.
type Image struct {
	Data       []byte
	Resolution string
	Model      string
	MimeType   string // e.g. "image/png", "image/jpeg" (from Gemini blob.MIMEType)
}

// buildImagePrompt builds a children's-book illustration prompt for the
// tale's topic and hero. The prompt explicitly excludes embedded text.
func buildImagePrompt(childName, topic string) string {
	return fmt.Sprintf(
		"A children's book style illustration for a fairy tale about \"%s\", "+
			"featuring a child named %s as the hero. Bright, kind colors, soft "+
			"shapes, focus on the main character. Square composition. No text, "+
			"no letters, no captions.", topic, childName)
}

// GenerateImage generates a tale illustration using strict IMAGE modality.
// Single attempt, no fallback model: any failure is returned to the caller,
// which treats the illustration as absent.
func (c *Client) GenerateImage(ctx context.Context, childName, topic string) (*Image, error) {
	if c.genaiClient == nil {
		return nil, fmt.Errorf("image client not initialized")
	}

	prompt := buildImagePrompt(childName, topic)
	log.Debug().
		Str("prompt", prompt[:minInt(80, len(prompt))]+"...").
		Msg("Generating image")

	model := c.genaiClient.GenerativeModel(c.modelImage)
	// Strict modality: request native image output (required for gemini-3-pro-image-preview)
	setResponseModality(model, []string{"IMAGE"})

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	logGeminiResponse("GenerateImage", fmt.Sprintf("candidates=%d", len(resp.Candidates)))
	for i, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for j, part := range cand.Content.Parts {
			blob, ok := part.(genai.Blob)
			if !ok || len(blob.Data) == 0 {
				continue
			}
			mimeType := blob.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			log.Info().
				Str("caller", "GenerateImage").
				Int64("image_size_bytes", int64(len(blob.Data))).
				Str("mime_type", mimeType).
				Int("candidate", i).
				Int("part", j).
				Msg("Gemini response (image blob)")
			return &Image{
				Data:       blob.Data,
				Resolution: "1024x1024",
				Model:      c.modelImage,
				MimeType:   mimeType,
			}, nil
		}
	}

	log.Warn().
		Str("model", c.modelImage).
		Int("candidates", len(resp.Candidates)).
		Msg("No image blob in Gemini response")
	return nil, fmt.Errorf("no image blob in response (strict modality: expected IMAGE)")
}

// setResponseModality sets model.ResponseModality when the genai SDK exposes it (e.g. for Gemini 3).
// Uses reflection so it no-ops on older SDKs that don't have the field.
func setResponseModality(model *genai.GenerativeModel, modalities []string) {
	v := reflect.ValueOf(model).Elem()
	f := v.FieldByName("ResponseModality")
	if !f.IsValid() || !f.CanSet() {
		log.Debug().Msg("ResponseModality not available on GenerativeModel (SDK may not support it yet)")
		return
	}
	// ResponseModality is []string
	if f.Kind() == reflect.Slice && f.Type().Elem().Kind() == reflect.String {
		f.Set(reflect.ValueOf(modalities))
		log.Debug().Strs("modality", modalities).Msg("Set ResponseModality on GenerativeModel")
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
