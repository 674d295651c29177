package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	domai "github.com/bryanwahyu/defect-tracker/internal/domain/ai"
	"github.com/bryanwahyu/defect-tracker/internal/domain/defects"
	"github.com/bryanwahyu/defect-tracker/internal/infra/ai/prompt"
)

const (
	maxTokens    = 256
	defaultModel = "gpt-4o-mini"
)

type Client struct {
	*openai.Client
	Model string
}

// NewClientWithConfig allows a custom base URL (proxies, compatible gateways, tests).
func NewClientWithConfig(cfg openai.ClientConfig, model string) *Client {
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// Classify asks the model for the defect type and severity of one description.
func (c *Client) Classify(ctx context.Context, description string) (defects.Classification, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.UserPrompt(description)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if isQuotaError(err) {
			return defects.Classification{}, fmt.Errorf("%w: %v", domai.ErrQuotaExceeded, err)
		}
		return defects.Classification{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return defects.Classification{}, errors.New("empty completion")
	}
	return ParseClassification(resp.Choices[0].Message.Content, description), nil
}

// ParseClassification reads {"defect_type", "severity"} from the model answer.
// Anything unparseable falls back to the keyword heuristic.
func ParseClassification(content, description string) defects.Classification {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if !gjson.Valid(content) {
		return prompt.Heuristic(description)
	}
	doc := gjson.Parse(content)
	t, s := doc.Get("defect_type"), doc.Get("severity")
	if !t.Exists() && !s.Exists() {
		return prompt.Heuristic(description)
	}
	return defects.Classification{DefectType: t.String(), Severity: s.String()}.Normalize()
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func isQuotaError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.Type == "insufficient_quota"
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
