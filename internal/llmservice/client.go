package llmservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

// Client talks to the chat-completion backend configured in LLMConfig.
type Client struct {
	cfg  config.LLMConfig
	http *http.Client
}

func NewClient(cfg config.LLMConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// call llm
func GenerateContent(ctx context.Context, llmConfig *config.LLMConfig, model string, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", model).Int("messages", len(messages)).Msg("Generating content")

	var (
		llm llms.Model
		err error
	)
	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		llm, err = openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(model),
		)
	default:
		llm, err = ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(model),
		)
	}
	if err != nil {
		return nil, err
	}

	return llm.GenerateContent(ctx, messages)
}

// Chat sends the conversation to model and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, model string, messages []models.Turn) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}

	res, err := GenerateContent(ctx, &c.cfg, model, content)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", errors.New("empty response from model")
	}
	return res.Choices[0].Content, nil
}

func messageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type openAIModels struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels returns the model names the backend advertises.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	url := base + "/api/tags"
	if c.cfg.Provider == config.ProviderOpenAI {
		url = base + "/models"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.Key != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimPrefix(c.cfg.Key, "Bearer "))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("list models (status %d): %s", resp.StatusCode, string(body))
	}

	names := []string{}
	if c.cfg.Provider == config.ProviderOpenAI {
		var out openAIModels
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		for _, m := range out.Data {
			names = append(names, m.ID)
		}
		return names, nil
	}

	var out ollamaTags
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
