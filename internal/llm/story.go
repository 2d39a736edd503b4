package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

// storySystemPrompt is the storyteller persona. It fixes tone (warm,
// non-violent, age-appropriate), length and target language.
const storySystemPrompt = `You are Bultykhvost, a kind storyteller for small children.
Write short fairy tales of 8-12 sentences in %s.
Use simple phrases, a little magic, a warm tone, and always a happy ending.
Never include violence or anything frightening.
Return ONLY the tale text, no titles, explanations or formatting.`

// buildStoryMessages builds the role-tagged prompt for a tale about the
// given topic for the named child.
func buildStoryMessages(childName, topic, language string) []llms.MessageContent {
	system := fmt.Sprintf(storySystemPrompt, language)
	user := fmt.Sprintf("Compose a fairy tale for a child named %s. Topic: %s.", childName, topic)
	return []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextContent{Text: system}}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: user}}},
	}
}

// GenerateStory generates a fairy tale for the given child and topic.
// Tries the primary model first; on any failure or empty output, retries
// once against the fallback model with the identical prompt and
// parameters. An empty result from both models is an error: an empty tale
// is never delivered.
func (c *Client) GenerateStory(ctx context.Context, childName, topic string) (string, error) {
	log.Debug().
		Str("child_name", childName).
		Str("topic", topic).
		Msg("Generating story")

	messages := buildStoryMessages(childName, topic, c.language)
	opts := []llms.CallOption{
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	}

	// Ordered strategies: primary, then fallback. First non-empty wins.
	attempts := []struct {
		model llms.Model
		name  string
	}{
		{c.llmPrimary, c.modelPrimary},
		{c.llmFallback, c.modelFallback},
	}

	var lastErr error
	for _, attempt := range attempts {
		if attempt.model == nil {
			continue
		}
		resp, err := attempt.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			log.Warn().Err(err).Str("model", attempt.name).Msg("Story generation attempt failed")
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			log.Warn().Str("model", attempt.name).Msg("Story model returned no choices")
			lastErr = fmt.Errorf("model %s returned no choices", attempt.name)
			continue
		}
		response := resp.Choices[0].Content
		logGeminiResponse("GenerateStory", response)
		story := strings.TrimSpace(response)
		if story == "" {
			log.Warn().Str("model", attempt.name).Msg("Story model returned empty text")
			lastErr = fmt.Errorf("model %s returned empty text", attempt.name)
			continue
		}
		log.Info().Str("model", attempt.name).Int("story_length", len(story)).Msg("Story generation complete")
		return story, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no story model available")
	}
	return "", fmt.Errorf("story generation failed: %w", lastErr)
}
