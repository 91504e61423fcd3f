// Package openai adapts OpenAI-compatible chat completion APIs to the risk
// classification and elaboration ports.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/llm/prompt"
)

const defaultModel = "gpt-4o-mini"

type Client struct {
	api   *goopenai.Client
	model string
}

// New returns a client. A missing API key is reported as a configuration error so
// the caller can show a fix-it message instead of a generic failure.
func New(apiKey, model, baseURL string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "openai client", errors.New("OPENAI_API_KEY is not set"))
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api:   goopenai.NewClientWithConfig(cfg),
		model: model,
	}, nil
}

type RiskClassifier struct {
	client *Client
}

func NewRiskClassifier(client *Client) *RiskClassifier {
	return &RiskClassifier{client: client}
}

func (c *RiskClassifier) ClassifyCategory(ctx context.Context, text string, category domain.Category, alreadyKnown []string) (domain.CategoryResult, error) {
	content, err := c.client.complete(ctx, "classify", prompt.Category(text, category, alreadyKnown))
	if err != nil {
		return domain.CategoryResult{}, err
	}
	return prompt.ParseCategoryResult(content)
}

type Elaborator struct {
	client *Client
}

func NewElaborator(client *Client) *Elaborator {
	return &Elaborator{client: client}
}

func (e *Elaborator) Elaborate(ctx context.Context, req domain.ElaborationRequest) (domain.Elaboration, error) {
	content, err := e.client.complete(ctx, "elaborate", prompt.Elaboration(req))
	if err != nil {
		return domain.Elaboration{}, err
	}
	return prompt.ParseElaboration(content)
}

func (c *Client) complete(ctx context.Context, operation, userPrompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: prompt.SystemRole},
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", wrapCallError(operation, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrTemporary, operation, errors.New("openai returned no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func wrapCallError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return domain.WrapError(domain.ErrConfiguration, operation, fmt.Errorf("openai: %w", err))
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return domain.WrapError(domain.ErrTemporary, operation, fmt.Errorf("openai: %w", err))
	case status != 0:
		return fmt.Errorf("openai %s: %w", operation, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return fmt.Errorf("openai %s: %w", operation, err)
}
