package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// OpenAIOptions configure the chat completions backend.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
	Extra       []option.RequestOption
}

// OpenAIGenerator talks to any OpenAI compatible chat completions endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int64
	temperature float64
	timeout     time.Duration
}

func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("generation: api key required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("generation: model required")
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if strings.TrimSpace(opts.BaseURL) != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
	}
	requestOpts = append(requestOpts, opts.Extra...)
	client := openai.NewClient(requestOpts...)

	return &OpenAIGenerator{
		client:      &client,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Reply, error) {
	params := g.params(
		openai.SystemMessage(systemPrompt(req)),
		openai.UserMessage(userPrompt(req)),
	)
	resp, err := g.complete(ctx, params)
	if err != nil {
		return Reply{}, err
	}

	usage := Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
	if len(resp.Choices) == 0 {
		return Reply{Usage: usage}, nil
	}
	content := resp.Choices[0].Message.Content

	var reply Reply
	if raw := extractJSON(content); raw != "" {
		if err := json.Unmarshal([]byte(raw), &reply); err != nil {
			reply = Reply{Messages: []string{strings.TrimSpace(content)}}
		}
	} else {
		reply = Reply{Messages: []string{strings.TrimSpace(content)}}
	}
	reply.Usage = usage
	return reply, nil
}

func (g *OpenAIGenerator) Greeting(ctx context.Context, req GreetingRequest) (string, error) {
	params := g.params(openai.UserMessage(greetingPrompt(req)))
	resp, err := g.complete(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	msg := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"`)
	if msg == "" {
		return "", ErrEmptyReply
	}
	return msg, nil
}

func (g *OpenAIGenerator) params(messages ...openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	}
	if g.maxTokens > 0 {
		params.MaxTokens = param.NewOpt(g.maxTokens)
	}
	if g.temperature > 0 {
		params.Temperature = param.NewOpt(g.temperature)
	}
	return params
}

func (g *OpenAIGenerator) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusServiceUnavailable || apiErr.StatusCode == http.StatusTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrOverloaded, err)
		}
		return nil, fmt.Errorf("generation: chat completion: %w", err)
	}
	return resp, nil
}
