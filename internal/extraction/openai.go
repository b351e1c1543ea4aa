package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aniketpanjwani/local-media-tools/internal/models"
)

// OpenAIConfig holds configuration for OpenAI API usage.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultOpenAIConfig returns defaults tuned for factual extraction.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:       openai.GPT4oMini,
		Temperature: 0.2,
		MaxTokens:   2000,
		Timeout:     60 * time.Second,
	}
}

// ConfigFromEnv creates config from environment variables with defaults.
func ConfigFromEnv() OpenAIConfig {
	config := DefaultOpenAIConfig()

	config.APIKey = os.Getenv("OPENAI_API_KEY")
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.Model = model
	}
	if tempStr := os.Getenv("OPENAI_TEMPERATURE"); tempStr != "" {
		if temp, err := strconv.ParseFloat(tempStr, 32); err == nil {
			config.Temperature = float32(temp)
		}
	}

	return config
}

// OpenAIExtractor implements Extractor against the OpenAI chat completion
// API with JSON-mode responses.
type OpenAIExtractor struct {
	client *openai.Client
	config OpenAIConfig
	logger *slog.Logger
}

func NewOpenAIExtractor(config OpenAIConfig, logger *slog.Logger) (*OpenAIExtractor, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}
	return &OpenAIExtractor{
		client: openai.NewClient(config.APIKey),
		config: config,
		logger: logger,
	}, nil
}

const classifySystemPrompt = `You classify social media posts from local venues.
Decide whether the post announces one or more upcoming events with a concrete date.
Respond with JSON: {"classification": "event"|"not_event"|"ambiguous", "reason": "...",
"events": [{"title", "venue_name", "event_date" (YYYY-MM-DD), "start_time" (HH:MM, optional),
"description", "category", "price", "is_free", "confidence" (0..1)}]}`

const extractSystemPrompt = `You extract event listings from scraped web page text.
Respond with JSON: {"events": [{"title", "venue_name", "event_date" (YYYY-MM-DD),
"start_time" (HH:MM, optional), "end_time", "description", "category", "price",
"is_free", "ticket_url", "confidence" (0..1)}]}. Omit listings without a concrete date.`

type classifyResponse struct {
	Classification string      `json:"classification"`
	Reason         string      `json:"reason"`
	Events         []draftJSON `json:"events"`
}

type extractResponse struct {
	Events []draftJSON `json:"events"`
}

type draftJSON struct {
	Title       string   `json:"title"`
	VenueName   string   `json:"venue_name"`
	EventDate   string   `json:"event_date"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Price       string   `json:"price"`
	IsFree      bool     `json:"is_free"`
	TicketURL   string   `json:"ticket_url"`
	Confidence  *float64 `json:"confidence"`
}

func (d draftJSON) toDraft(source models.EventSource, sourceURL string) models.EventDraft {
	return models.EventDraft{
		Title:       d.Title,
		VenueName:   d.VenueName,
		EventDate:   d.EventDate,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Source:      source,
		Description: d.Description,
		Category:    models.EventCategory(d.Category),
		Price:       d.Price,
		IsFree:      d.IsFree,
		TicketURL:   d.TicketURL,
		SourceURL:   sourceURL,
		Confidence:  d.Confidence,
	}
}

// ClassifyPost asks the model whether the post announces events and extracts
// drafts when it does.
func (e *OpenAIExtractor) ClassifyPost(ctx context.Context, post models.Post) (Classified, error) {
	content, err := e.complete(ctx, classifySystemPrompt, post.Caption)
	if err != nil {
		return Classified{}, fmt.Errorf("classify post %s: %w", post.PlatformPostID, err)
	}

	var parsed classifyResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Classified{}, fmt.Errorf("classify post %s: bad response: %w", post.PlatformPostID, err)
	}

	classification := models.Classification(parsed.Classification)
	if !classification.Valid() || classification == models.ClassificationUnclassified {
		return Classified{}, fmt.Errorf("classify post %s: unknown verdict %q", post.PlatformPostID, parsed.Classification)
	}

	out := Classified{Classification: classification, Reason: parsed.Reason}
	for _, d := range parsed.Events {
		out.Drafts = append(out.Drafts, d.toDraft(models.SourceSocialProfile, post.PostURL))
	}

	e.logger.Debug("post classified",
		"post", post.PlatformPostID,
		"classification", classification,
		"drafts", len(out.Drafts))
	return out, nil
}

// ExtractEvents pulls event drafts out of an aggregator page's text.
func (e *OpenAIExtractor) ExtractEvents(ctx context.Context, pageURL, content string) ([]models.EventDraft, error) {
	// Stay within token limits on long pages.
	const maxContentLength = 15000
	if len(content) > maxContentLength {
		e.logger.Warn("truncating page content for extraction",
			"url", pageURL, "original_length", len(content))
		content = content[:maxContentLength]
	}

	prompt := fmt.Sprintf("URL: %s\n\nPage text:\n%s", pageURL, content)
	raw, err := e.complete(ctx, extractSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract events from %s: %w", pageURL, err)
	}

	var parsed extractResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("extract events from %s: bad response: %w", pageURL, err)
	}

	drafts := make([]models.EventDraft, 0, len(parsed.Events))
	for _, d := range parsed.Events {
		drafts = append(drafts, d.toDraft(models.SourceWebAggregator, pageURL))
	}

	e.logger.Info("page extracted", "url", pageURL, "drafts", len(drafts))
	return drafts, nil
}

// complete runs one JSON-mode chat completion with retry on rate limits.
func (e *OpenAIExtractor) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	const maxRetries = 3
	baseDelay := 1 * time.Second

	var resp openai.ChatCompletionResponse
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		apiCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		resp, err = e.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
			Model:               e.config.Model,
			Temperature:         e.config.Temperature,
			MaxCompletionTokens: e.config.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		cancel()

		if err == nil {
			break
		}

		errStr := err.Error()
		rateLimited := strings.Contains(errStr, "429") ||
			strings.Contains(errStr, "Too Many Requests") ||
			strings.Contains(errStr, "Rate limit")
		if !rateLimited || attempt == maxRetries-1 {
			break
		}

		delay := baseDelay*time.Duration(1<<uint(attempt)) + time.Duration(rand.Intn(500))*time.Millisecond
		e.logger.Warn("rate limited, retrying with backoff",
			"attempt", attempt+1, "delay_ms", delay.Milliseconds())
		time.Sleep(delay)
	}
	if err != nil {
		return "", fmt.Errorf("openai api call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned from model %s", e.config.Model)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty response from model %s (finish_reason: %s)",
			e.config.Model, resp.Choices[0].FinishReason)
	}
	return content, nil
}
