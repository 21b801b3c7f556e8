package advisor

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/domain"
)

// NotConfiguredMessage is the suggestion returned when no LLM is configured.
const NotConfiguredMessage = "AI advisor not configured. Please add OPENAI_API_KEY to your .env file."

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// Advisor turns a decision record into a short action plan.
type Advisor struct {
	tracer  trace.Tracer
	llm     LLMClient
	model   string
	limiter *RateLimiter
}

// NewAdvisor returns an advisor; a nil llm means not configured.
func NewAdvisor(tracer trace.Tracer, llm LLMClient, model string) *Advisor {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Advisor{tracer: tracer, llm: llm, model: model}
}

// SetRateLimiter bounds how often Suggest reaches the LLM. Calls over budget
// fail fast with ErrRateLimited.
func (a *Advisor) SetRateLimiter(l *RateLimiter) {
	a.limiter = l
}

func (a *Advisor) Configured() bool {
	return a != nil && a.llm != nil
}

// Suggest asks the model for a recommendation. On failure the returned text
// describes the error so the caller can still show something; the error is
// returned too for logging.
func (a *Advisor) Suggest(ctx context.Context, rec domain.DecisionRecord) (string, error) {
	if !a.Configured() {
		return NotConfiguredMessage, nil
	}
	ctx, span := a.tracer.Start(ctx, "advisor.suggest")
	defer span.End()
	span.SetAttributes(
		attribute.Int("decision.store", rec.Store),
		attribute.Int("decision.dept", rec.Dept),
		attribute.String("decision.stock_status", string(rec.StockStatus)),
	)
	if a.limiter != nil && !a.limiter.Allow() {
		span.RecordError(ErrRateLimited)
		return "", ErrRateLimited
	}

	reply, err := a.callLLM(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(BuildPrompt(rec)),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Sprintf("Error generating suggestion: %v", err), fmt.Errorf("advisor unavailable: %w", err)
	}
	return reply, nil
}

func (a *Advisor) callLLM(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
) (string, error) {
	ctx, span := a.tracer.Start(ctx, "advisor.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", a.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := a.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
