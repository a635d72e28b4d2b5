package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go/v2"
	openaiopt "github.com/openai/openai-go/v2/option"
	genai "google.golang.org/genai"

	"ragfabric/internal/ragerr"
)

// providerClient is what every provider family client implements. The
// gateway only ever talks to this interface; provider-specific types never
// escape this file (mirrors the teacher's llm.Provider boundary).
type providerClient interface {
	chat(ctx context.Context, model string, msgs []Message, temperature float64, maxTokens int) (ChatResponse, error)
}

// embedClient and rerankClient are separate from providerClient because not
// every provider family implements them (Anthropic and Gemini are
// chat-only in this registry; embed/rerank route to the OpenAI-compatible
// family pointed at a different BaseURL, e.g. Jina/Nebius/SambaNova).
type embedClient interface {
	embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

type rerankClient interface {
	rerank(ctx context.Context, model, query string, documents []string, topN int) ([]RerankResult, error)
}

// --- OpenAI-compatible family (OpenAI, Jina, Nebius, SambaNova via BaseURL) ---

type openAIClient struct {
	sdk        openaisdk.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func newOpenAIClient(apiKey, baseURL string, httpClient *http.Client) *openAIClient {
	opts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(apiKey),
		openaiopt.WithHTTPClient(httpClient),
	}
	if baseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	return &openAIClient{sdk: openaisdk.NewClient(opts...), httpClient: httpClient, baseURL: baseURL, apiKey: apiKey}
}

func (c *openAIClient) chat(ctx context.Context, model string, msgs []Message, temperature float64, maxTokens int) (ChatResponse, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(model),
		Messages: adaptOpenAIMessages(msgs),
	}
	if temperature > 0 {
		params.Temperature = openaisdk.Float(temperature)
	}
	if maxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(maxTokens))
	}
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatResponse{}, classifyOpenAIErr(err)
	}
	if len(comp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("%w: empty choices from model %s", ragerr.ErrInvalidResponse, model)
	}
	return ChatResponse{
		Content:          comp.Choices[0].Message.Content,
		PromptTokens:     int(comp.Usage.PromptTokens),
		CompletionTokens: int(comp.Usage.CompletionTokens),
	}, nil
}

func (c *openAIClient) embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// rerank posts directly to a /rerank endpoint since neither the OpenAI SDK
// nor its compatible providers expose a typed rerank call; shape ported
// from the teacher's internal/sefii/rerank.go RerankRequest/RerankResponse.
func (c *openAIClient) rerank(ctx context.Context, model, query string, documents []string, topN int) ([]RerankResult, error) {
	reqBody, _ := json.Marshal(map[string]any{
		"model":     model,
		"query":     query,
		"top_n":     topN,
		"documents": documents,
	})
	url := strings.TrimSuffix(c.baseURL, "/") + "/rerank"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ragerr.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: rerank status %d: %s", ragerr.ErrProviderUnavailable, resp.StatusCode, string(b))
	}
	var parsed struct {
		Results []RerankResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrInvalidResponse, err)
	}
	return parsed.Results, nil
}

func adaptOpenAIMessages(msgs []Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openaisdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openaisdk.AssistantMessage(m.Content))
		default:
			out = append(out, openaisdk.UserMessage(m.Content))
		}
	}
	return out
}

func classifyOpenAIErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %v", ragerr.ErrRateLimited, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return fmt.Errorf("%w: %v", ragerr.ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ragerr.ErrProviderUnavailable, err)
	}
}

// --- Anthropic family ---

type anthropicClient struct {
	sdk anthropicsdk.Client
}

func newAnthropicClient(apiKey string, httpClient *http.Client) *anthropicClient {
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(apiKey),
		anthropicopt.WithHTTPClient(httpClient),
	}
	return &anthropicClient{sdk: anthropicsdk.NewClient(opts...)}
}

func (c *anthropicClient) chat(ctx context.Context, model string, msgs []Message, temperature float64, maxTokens int) (ChatResponse, error) {
	var system string
	converted := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			system = m.Content
		case "assistant":
			converted = append(converted, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  converted,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, classifyAnthropicErr(err)
	}
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return ChatResponse{
		Content:          content.String(),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func classifyAnthropicErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %v", ragerr.ErrRateLimited, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return fmt.Errorf("%w: %v", ragerr.ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ragerr.ErrProviderUnavailable, err)
	}
}

// --- Gemini family ---

type geminiClient struct {
	client *genai.Client
}

func newGeminiClient(ctx context.Context, apiKey string, httpClient *http.Client) (*geminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init gemini client: %v", ragerr.ErrProviderUnavailable, err)
	}
	return &geminiClient{client: client}, nil
}

func (c *geminiClient) chat(ctx context.Context, model string, msgs []Message, temperature float64, maxTokens int) (ChatResponse, error) {
	var contents []*genai.Content
	var systemInstruction *genai.Content
	for _, m := range msgs {
		role := "user"
		switch strings.ToLower(m.Role) {
		case "system":
			systemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
			continue
		case "assistant":
			role = "model"
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	cfg := &genai.GenerateContentConfig{}
	if temperature > 0 {
		t := float32(temperature)
		cfg.Temperature = &t
	}
	if systemInstruction != nil {
		cfg.SystemInstruction = systemInstruction
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return ChatResponse{}, classifyGeminiErr(err)
	}
	text := resp.Text()
	var promptTokens, completionTokens int
	if resp.UsageMetadata != nil {
		promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return ChatResponse{Content: text, PromptTokens: promptTokens, CompletionTokens: completionTokens}, nil
}

func classifyGeminiErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %v", ragerr.ErrRateLimited, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return fmt.Errorf("%w: %v", ragerr.ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ragerr.ErrProviderUnavailable, err)
	}
}
