package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/songzhibin97/walletopt/internal/ai"
	"github.com/songzhibin97/walletopt/internal/models"
)

const (
	defaultModel         = "claude-sonnet-4-5"
	defaultMaxTokens     = 4096
	defaultMaxToolRounds = 3
)

type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int64
	Temperature   float64
	MaxToolRounds int
	Prompt        ai.PromptParams
}

// Oracle implements ai.Oracle on the Messages API with tool use.
type Oracle struct {
	client        *anthropic.Client
	model         string
	maxTokens     int64
	temperature   float64
	maxToolRounds int
	systemPrompt  string
}

func NewOracle(cfg Config) *Oracle {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// attempts are bounded by ai.WithAttempts
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}

	client := anthropic.NewClient(opts...)
	return &Oracle{
		client:        &client,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		maxToolRounds: cfg.MaxToolRounds,
		systemPrompt:  ai.SystemPrompt(cfg.Prompt),
	}
}

func yieldTool() anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
		Name:        ai.YieldToolName,
		Description: anthropic.String(ai.YieldToolDescription),
		InputSchema: anthropic.ToolInputSchemaParam{Properties: map[string]any{}},
	}}
}

// Optimize implements ai.Oracle.
func (o *Oracle) Optimize(ctx context.Context, assets []models.Asset, lookup ai.YieldLookup) (*models.OptimizationResponse, error) {
	prompt, err := ai.BuildUserPrompt(assets)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(o.model),
		MaxTokens:   o.maxTokens,
		Temperature: anthropic.Float(o.temperature),
		System:      []anthropic.TextBlockParam{{Text: o.systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for round := 0; ; round++ {
		params.Tools = nil
		if round < o.maxToolRounds {
			params.Tools = []anthropic.ToolUnionParam{yieldTool()}
		}

		resp, err := o.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("claude api error: %w", err)
		}

		var (
			text        strings.Builder
			toolResults []anthropic.ContentBlockParamUnion
		)
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				toolResults = append(toolResults, anthropic.NewToolResultBlock(
					block.ID, ai.RunTool(ctx, block.Name, lookup), false))
			}
		}

		if len(toolResults) == 0 {
			return ai.DecodeResponse(text.String())
		}
		if round >= o.maxToolRounds {
			return nil, fmt.Errorf("model kept calling tools after %d rounds", o.maxToolRounds)
		}

		params.Messages = append(params.Messages, resp.ToParam(), anthropic.NewUserMessage(toolResults...))
	}
}
