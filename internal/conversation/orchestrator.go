package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lab.internal.conversation")

const (
	firstPassFallbackText  = "Disculpa, estoy tardando más de lo normal. ¿Podrías repetir tu último mensaje en un momento?"
	secondPassFallbackText = "Ya revisé la información, pero tuve un problema al redactar la respuesta. ¿Me repites qué necesitas?"
)

// OrchestratorConfig holds the per-pass budgets and sampling settings.
type OrchestratorConfig struct {
	FirstPassTimeout  time.Duration
	SecondPassTimeout time.Duration
	MaxTokens         int32
	Temperature       float32
}

// OrchestratorResult is the final text of a turn plus what the tools did.
type OrchestratorResult struct {
	Text     string
	Outcomes []ToolOutcome
	// Fallback is set when the text is a canned or deterministic reply.
	Fallback bool
	TimedOut bool
}

// Booking returns the appointment written during the turn, if any.
func (r *OrchestratorResult) Booking() *scheduling.BookingResult {
	for i := len(r.Outcomes) - 1; i >= 0; i-- {
		if r.Outcomes[i].Booking != nil {
			return r.Outcomes[i].Booking
		}
	}
	return nil
}

// ErrorMeta returns the meta of the last failed tool call.
func (r *OrchestratorResult) ErrorMeta() *scheduling.ErrorMeta {
	for i := len(r.Outcomes) - 1; i >= 0; i-- {
		if r.Outcomes[i].Meta != nil {
			return r.Outcomes[i].Meta
		}
	}
	return nil
}

// Orchestrator runs the fixed two-pass tool protocol: one model call that
// may request tools, the tools in order, and one model call for the reply.
type Orchestrator struct {
	llm     LLMClient
	tools   *ToolExecutor
	specs   []ToolSpec
	cfg     OrchestratorConfig
	metrics *metrics.ChatMetrics
	logger  *logging.Logger
}

// NewOrchestrator wires the protocol. Zero budgets default to 15s each.
func NewOrchestrator(llm LLMClient, tools *ToolExecutor, cfg OrchestratorConfig, m *metrics.ChatMetrics, logger *logging.Logger) (*Orchestrator, error) {
	if llm == nil {
		return nil, errors.New("conversation: llm client required")
	}
	if tools == nil {
		return nil, errors.New("conversation: tool executor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FirstPassTimeout <= 0 {
		cfg.FirstPassTimeout = 15 * time.Second
	}
	if cfg.SecondPassTimeout <= 0 {
		cfg.SecondPassTimeout = 15 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Orchestrator{
		llm:     llm,
		tools:   tools,
		specs:   ToolSpecs(),
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}, nil
}

// Run answers the last message of transcript. It never fails: upstream
// errors and timeouts become canned replies.
func (o *Orchestrator) Run(ctx context.Context, system []string, transcript []ChatMessage) *OrchestratorResult {
	ctx, span := tracer.Start(ctx, "conversation.orchestrate")
	defer span.End()

	first, err := o.complete(ctx, "first_pass", o.cfg.FirstPassTimeout, system, transcript)
	if err != nil {
		span.SetStatus(codes.Error, "first pass failed")
		return &OrchestratorResult{Text: firstPassFallbackText, Fallback: true, TimedOut: errors.Is(err, ErrTimeout)}
	}
	if len(first.ToolCalls) == 0 {
		if strings.TrimSpace(first.Text) == "" {
			return &OrchestratorResult{Text: firstPassFallbackText, Fallback: true}
		}
		return &OrchestratorResult{Text: first.Text}
	}

	span.SetAttributes(attribute.Int("conversation.tool_calls", len(first.ToolCalls)))
	result := &OrchestratorResult{}
	followUp := make([]ChatMessage, 0, len(transcript)+1+len(first.ToolCalls))
	followUp = append(followUp, transcript...)
	followUp = append(followUp, ChatMessage{Role: ChatRoleAssistant, Content: first.Text, ToolCalls: first.ToolCalls})
	for _, call := range first.ToolCalls {
		outcome := o.tools.Execute(ctx, call)
		result.Outcomes = append(result.Outcomes, outcome)
		followUp = append(followUp, ChatMessage{
			Role:       ChatRoleTool,
			Content:    outcome.Payload,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}

	second, err := o.complete(ctx, "second_pass", o.cfg.SecondPassTimeout, system, followUp)
	if err != nil {
		span.SetStatus(codes.Error, "second pass failed")
		result.Text = deterministicReply(result.Outcomes)
		result.Fallback = true
		result.TimedOut = errors.Is(err, ErrTimeout)
		return result
	}
	if len(second.ToolCalls) > 0 {
		o.logger.Warn("ignoring tool calls requested on second pass", "count", len(second.ToolCalls))
	}
	if strings.TrimSpace(second.Text) == "" {
		result.Text = deterministicReply(result.Outcomes)
		result.Fallback = true
		return result
	}
	result.Text = second.Text
	return result
}

func (o *Orchestrator) complete(ctx context.Context, phase string, budget time.Duration, system []string, messages []ChatMessage) (LLMResponse, error) {
	start := time.Now()
	resp, err := raceWithTimeout(ctx, budget, func(ctx context.Context) (LLMResponse, error) {
		return o.llm.Complete(ctx, LLMRequest{
			System:      system,
			Messages:    messages,
			Tools:       o.specs,
			MaxTokens:   o.cfg.MaxTokens,
			Temperature: o.cfg.Temperature,
		})
	})
	o.metrics.ObserveLLM(phase, time.Since(start).Seconds(), errors.Is(err, ErrTimeout))
	if err != nil {
		o.logger.Warn("llm call failed", "phase", phase, "error", err)
	}
	return resp, err
}

// deterministicReply answers from the tool outcomes when the model could
// not: a booking confirmation first, then the last tool message.
func deterministicReply(outcomes []ToolOutcome) string {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].Booking != nil {
			return scheduling.ConfirmationMessage(outcomes[i].Booking)
		}
	}
	for i := len(outcomes) - 1; i >= 0; i-- {
		if msg := strings.TrimSpace(outcomes[i].Message); msg != "" {
			return msg
		}
	}
	return secondPassFallbackText
}
