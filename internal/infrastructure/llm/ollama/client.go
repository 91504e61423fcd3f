package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/llm/prompt"
)

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
}

// New builds a client. The HTTP timeout only guards against hung connections; the
// per-call deadline comes from the retry executor through ctx.
func New(baseURL, genModel string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type RiskClassifier struct {
	client *Client
}

func NewRiskClassifier(client *Client) *RiskClassifier {
	return &RiskClassifier{client: client}
}

func (c *RiskClassifier) ClassifyCategory(ctx context.Context, text string, category domain.Category, alreadyKnown []string) (domain.CategoryResult, error) {
	respText, err := c.client.generateJSON(ctx, "classify", prompt.Category(text, category, alreadyKnown))
	if err != nil {
		return domain.CategoryResult{}, err
	}
	return prompt.ParseCategoryResult(respText)
}

type Elaborator struct {
	client *Client
}

func NewElaborator(client *Client) *Elaborator {
	return &Elaborator{client: client}
}

func (e *Elaborator) Elaborate(ctx context.Context, req domain.ElaborationRequest) (domain.Elaboration, error) {
	respText, err := e.client.generateJSON(ctx, "elaborate", prompt.Elaboration(req))
	if err != nil {
		return domain.Elaboration{}, err
	}
	return prompt.ParseElaboration(respText)
}

// maxResponseBytes bounds one generate response; category results for long
// contracts stay well below it.
const maxResponseBytes = 4 << 20

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *Client) generateJSON(ctx context.Context, operation, userPrompt string) (string, error) {
	response, err := c.generate(ctx, operation, generateRequest{
		Model:  c.genModel,
		System: prompt.SystemRole,
		Prompt: userPrompt,
		Format: "json",
	})
	if err != nil {
		return "", wrapCallError(operation, err)
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) generate(ctx context.Context, operation string, payload generateRequest) (generateResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return generateResponse{}, fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return generateResponse{}, fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return generateResponse{}, &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(detail),
		}
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return generateResponse{}, domain.WrapError(domain.ErrTemporary, operation, fmt.Errorf("decode ollama response: %w", err))
	}
	return out, nil
}
