package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/songzhibin97/walletopt/internal/ai"
	"github.com/songzhibin97/walletopt/internal/models"
)

const defaultMaxToolRounds = 3

// Config OpenAI 兼容接口配置; BaseURL also serves DeepSeek and other
// OpenAI-compatible providers.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float32
	MaxToolRounds int
	Prompt        ai.PromptParams
}

// Oracle implements ai.Oracle with chat completions and function calling.
type Oracle struct {
	client        *openai.Client
	model         string
	temperature   float32
	maxToolRounds int
	systemPrompt  string
}

func NewOracle(cfg Config) *Oracle {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	return &Oracle{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxToolRounds: cfg.MaxToolRounds,
		systemPrompt:  ai.SystemPrompt(cfg.Prompt),
	}
}

var yieldTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        ai.YieldToolName,
		Description: ai.YieldToolDescription,
		Parameters:  ai.YieldToolSchema,
	},
}

// Optimize implements ai.Oracle.
func (o *Oracle) Optimize(ctx context.Context, assets []models.Asset, lookup ai.YieldLookup) (*models.OptimizationResponse, error) {
	prompt, err := ai.BuildUserPrompt(assets)
	if err != nil {
		return nil, err
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	for round := 0; ; round++ {
		req := openai.ChatCompletionRequest{
			Model:       o.model,
			Messages:    messages,
			Temperature: o.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		}
		// the last round withholds the tool so the model has to answer
		if round < o.maxToolRounds {
			req.Tools = []openai.Tool{yieldTool}
		}

		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("openai api error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response from openai")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return ai.DecodeResponse(msg.Content)
		}
		if round >= o.maxToolRounds {
			return nil, fmt.Errorf("model kept calling tools after %d rounds", o.maxToolRounds)
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    ai.RunTool(ctx, call.Function.Name, lookup),
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}
}
