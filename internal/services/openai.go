package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

const maxLogLen = 2000

type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey, model string) *OpenAIService {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// newOpenAIServiceWithConfig lets tests point the client at a local server.
func newOpenAIServiceWithConfig(cfg openai.ClientConfig, model string) *OpenAIService {
	return &OpenAIService{client: openai.NewClientWithConfig(cfg), model: model}
}

const analyzeSystemPrompt = `You analyze short animation scripts for a narrated slideshow generator.
Respond with a single JSON object and nothing else:
{
  "characters": [{"id": 1, "name": "", "description": "", "age": "", "gender": "male|female|other",
                  "appearance": "", "clothing": "", "personality": "", "voiceStyle": ""}],
  "setting": {"location": "", "time": "", "mood": "", "artStyle": "", "colors": "", "environment": ""},
  "narrative": {"genre": "", "tone": "", "pacing": "fast|medium|slow", "targetAudience": ""}
}
voiceStyle describes how the character sounds, e.g. "young girl voice" or "deep male voice".
artStyle is a suggested look such as "Pixar style", "anime" or "2D cartoon".`

// AnalyzeScript extracts characters, setting and narrative from a script.
func (s *OpenAIService) AnalyzeScript(ctx context.Context, script string) (*models.Analysis, error) {
	raw, err := s.completeJSON(ctx, analyzeSystemPrompt, "Script:\n"+script)
	if err != nil {
		return nil, err
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		log.Error().Err(err).Str("raw", truncateString(raw, maxLogLen)).Msg("openai analysis parse failed")
		return nil, err
	}

	log.Info().Int("characters", len(analysis.Characters)).Str("location", analysis.Location()).Msg("script analysis complete")
	return analysis, nil
}

const splitSystemPrompt = `You split a script into scenes for a narrated slideshow.
Each scene is one visual moment: a change of place, time or action starts a new scene.
Keep the original wording, do not summarise. Respond with a JSON object:
{"scenes": ["full text of scene 1", "full text of scene 2"]}`

// SplitScenes asks the model to cut a script with no natural breaks into scene blocks.
func (s *OpenAIService) SplitScenes(ctx context.Context, script string, characters []string) ([]string, error) {
	user := "Script:\n" + script
	if len(characters) > 0 {
		user += "\n\nCharacters: " + strings.Join(characters, ", ")
	}

	raw, err := s.completeJSON(ctx, splitSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	blocks, err := parseSceneBlocks(raw)
	if err != nil {
		log.Error().Err(err).Str("raw", truncateString(raw, maxLogLen)).Msg("openai scene split parse failed")
		return nil, err
	}
	return blocks, nil
}

func (s *OpenAIService) completeJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

var (
	codeFence  = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
	jsonObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON strips markdown fences and surrounding prose from a model reply.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if m := jsonObject.FindString(text); m != "" {
		return m
	}
	return text
}

func parseAnalysis(raw string) (*models.Analysis, error) {
	var analysis models.Analysis
	if err := json.Unmarshal([]byte(extractJSON(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}

	if analysis.Characters == nil {
		analysis.Characters = []models.Character{}
	}
	if analysis.Setting == nil {
		analysis.Setting = models.JSONB{}
	}
	if analysis.Narrative == nil {
		analysis.Narrative = models.JSONB{}
	}

	for i := range analysis.Characters {
		c := &analysis.Characters[i]
		if c.ID == 0 {
			c.ID = i + 1
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("Character %d", i+1)
		}
		if c.Age == "" {
			c.Age = "unknown"
		}
		if c.Gender == "" {
			c.Gender = "unknown"
		}
		if c.VoiceStyle == "" {
			c.VoiceStyle = "neutral voice"
		}
	}

	return &analysis, nil
}

// parseSceneBlocks accepts {"scenes": [...]} where entries are strings or
// objects carrying a description.
func parseSceneBlocks(raw string) ([]string, error) {
	var payload struct {
		Scenes []json.RawMessage `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse scenes: %w", err)
	}

	var blocks []string
	for _, item := range payload.Scenes {
		var text string
		if err := json.Unmarshal(item, &text); err != nil {
			var obj struct {
				Description string `json:"description"`
				Text        string `json:"text"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			text = obj.Description
			if text == "" {
				text = obj.Text
			}
		}
		if text = strings.TrimSpace(text); text != "" {
			blocks = append(blocks, text)
		}
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("model returned no scenes")
	}
	return blocks, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
