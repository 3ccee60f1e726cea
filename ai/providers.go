// Package ai implements the completion providers behind the openai,
// anthropic and gemini node types. Results land in session variables for
// downstream interpolation; provider failures are the caller's problem to
// record, not to fatal on.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zapflow/zapflow/engine"
)

const openaiApiBase = "https://api.openai.com/v1"
const anthropicApiBase = "https://api.anthropic.com/v1"
const geminiApiBase = "https://generativelanguage.googleapis.com/v1beta"

type OpenAIProvider struct {
	client *resty.Client
}

var _ engine.CompletionProvider = new(OpenAIProvider)

func NewOpenAIProvider(apiKey string, timeout time.Duration) *OpenAIProvider {
	return NewOpenAIProviderWithBase(apiKey, openaiApiBase, timeout)
}

func NewOpenAIProviderWithBase(apiKey string, baseUrl string, timeout time.Duration) *OpenAIProvider {
	return &OpenAIProvider{
		client: resty.New().SetBaseURL(baseUrl).SetAuthToken(apiKey).SetTimeout(timeout),
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, modelName string, systemPrompt string, prompt string) (string, error) {
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"model": modelName, "messages": messages}).
		SetResult(&result).
		Post("/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("openai completion failed with status %d", resp.StatusCode())
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

type AnthropicProvider struct {
	client *resty.Client
}

var _ engine.CompletionProvider = new(AnthropicProvider)

func NewAnthropicProvider(apiKey string, timeout time.Duration) *AnthropicProvider {
	return NewAnthropicProviderWithBase(apiKey, anthropicApiBase, timeout)
}

func NewAnthropicProviderWithBase(apiKey string, baseUrl string, timeout time.Duration) *AnthropicProvider {
	client := resty.New().
		SetBaseURL(baseUrl).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetTimeout(timeout)
	return &AnthropicProvider{client: client}
}

func (p *AnthropicProvider) Complete(ctx context.Context, modelName string, systemPrompt string, prompt string) (string, error) {
	if modelName == "" {
		modelName = "claude-3-5-haiku-latest"
	}
	body := map[string]any{
		"model":      modelName,
		"max_tokens": 1024,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	}
	if systemPrompt != "" {
		body["system"] = systemPrompt
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/messages")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("anthropic completion failed with status %d", resp.StatusCode())
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic returned no content")
	}
	return result.Content[0].Text, nil
}

type GeminiProvider struct {
	client *resty.Client
	apiKey string
}

var _ engine.CompletionProvider = new(GeminiProvider)

func NewGeminiProvider(apiKey string, timeout time.Duration) *GeminiProvider {
	return NewGeminiProviderWithBase(apiKey, geminiApiBase, timeout)
}

func NewGeminiProviderWithBase(apiKey string, baseUrl string, timeout time.Duration) *GeminiProvider {
	return &GeminiProvider{
		client: resty.New().SetBaseURL(baseUrl).SetTimeout(timeout),
		apiKey: apiKey,
	}
}

func (p *GeminiProvider) Complete(ctx context.Context, modelName string, systemPrompt string, prompt string) (string, error) {
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]string{{"text": prompt}},
		}},
	}
	if systemPrompt != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": systemPrompt}},
		}
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(body).
		SetResult(&result).
		Post(fmt.Sprintf("/models/%s:generateContent", modelName))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("gemini completion failed with status %d", resp.StatusCode())
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}
