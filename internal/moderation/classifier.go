package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ToxicThreshold is the score above which text counts as toxic when the
// model does not say so itself.
const ToxicThreshold = 0.7

// Classification is the classifier's opinion of one text.
type Classification struct {
	IsToxic bool    `json:"isToxic"`
	Score   float64 `json:"toxicityScore"`
}

// Classifier rates the toxicity of text. Implementations call out to a
// third-party service and must honour ctx cancellation.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Passthrough is used when no moderation service is configured: every text
// scores zero and human review does the rest.
type Passthrough struct{}

func (Passthrough) Classify(ctx context.Context, text string) (Classification, error) {
	return Classification{}, ctx.Err()
}

const classifierPrompt = `You are a content moderation tool that detects toxic content.
Rate the toxicity of the user's text with a score between 0 and 1.
Set isToxic to true if the score is above 0.7, otherwise false.
Reply with JSON only: {"isToxic": boolean, "toxicityScore": number}.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	Temperature    float64            `json:"temperature"`
	ResponseFormat chatResponseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// LLMClassifier asks an OpenAI-compatible chat completion endpoint to score
// text.
type LLMClassifier struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewLLMClassifier creates a classifier for the given endpoint and model.
func NewLLMClassifier(apiKey, endpoint, model string, timeout time.Duration) *LLMClassifier {
	return &LLMClassifier{
		apiKey:     apiKey,
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Classify sends text to the model and parses its JSON verdict.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: chatResponseFormat{Type: "json_object"},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return Classification{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return Classification{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Classification{}, fmt.Errorf("failed to call moderation API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Classification{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Classification{}, fmt.Errorf("moderation API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return Classification{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return Classification{}, fmt.Errorf("no choices in moderation response")
	}

	return parseVerdict(chat.Choices[0].Message.Content)
}

// parseVerdict reads the model's JSON answer, tolerating a fenced code block.
func parseVerdict(content string) (Classification, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw struct {
		IsToxic *bool    `json:"isToxic"`
		Score   *float64 `json:"toxicityScore"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return Classification{}, fmt.Errorf("failed to parse verdict %q: %w", content, err)
	}
	if raw.Score == nil {
		return Classification{}, fmt.Errorf("verdict missing toxicityScore")
	}
	score := *raw.Score
	if score < 0 || score > 1 {
		return Classification{}, fmt.Errorf("toxicityScore %v out of range", score)
	}

	isToxic := score > ToxicThreshold
	if raw.IsToxic != nil {
		isToxic = *raw.IsToxic
	}
	return Classification{IsToxic: isToxic, Score: score}, nil
}
