package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/internal/audit"
	"github.com/wolfman30/lab-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// ErrEmptyHistory is returned when a request carries no user utterance.
var ErrEmptyHistory = errors.New("conversation: history is empty")

const defaultGreeting = "¡Hola! Soy el asistente del laboratorio. Puedo informarte sobre nuestros estudios o agendarte una cita. ¿En qué te ayudo?"

// Turn paths reported in metrics and meta.
const (
	PathInputGuard   = "input_guard"
	PathIntercept    = "intercept"
	PathGreeting     = "greeting"
	PathOrchestrator = "orchestrator"
)

// Service answers one chat turn.
type Service interface {
	Respond(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatPart is one text fragment of a turn.
type ChatPart struct {
	Text string `json:"text"`
}

// ChatTurn is one transcript entry as the web client sends it.
type ChatTurn struct {
	Role  string     `json:"role"`
	Parts []ChatPart `json:"parts"`
}

// ChatRequest is the full client-held transcript; the last entry is the new
// user utterance.
type ChatRequest struct {
	History []ChatTurn `json:"history"`
}

// ResponseMeta is the structured context returned next to the reply.
type ResponseMeta struct {
	Intent       Intent                    `json:"intent,omitempty"`
	IntentSource IntentSource              `json:"intentSource,omitempty"`
	Path         string                    `json:"path"`
	Known        *BookingDraft             `json:"known,omitempty"`
	Error        *scheduling.ErrorMeta     `json:"error,omitempty"`
	Booking      *scheduling.BookingResult `json:"booking,omitempty"`
	Availability any                       `json:"availability,omitempty"`
	Guardrails   []string                  `json:"guardrails,omitempty"`
	Fallback     bool                      `json:"fallback,omitempty"`
	TimedOut     bool                      `json:"timedOut,omitempty"`
}

// ChatResponse is the reply of one turn.
type ChatResponse struct {
	Response string        `json:"response"`
	Meta     *ResponseMeta `json:"meta,omitempty"`
}

// Config holds the per-turn settings of the chat service.
type Config struct {
	ClinicName          string
	Greeting            string
	PromptTemplate      string
	HistoryWindow       int
	AvailabilityTimeout time.Duration
	Calendar            scheduling.Config
}

// ServiceDeps are the collaborators of ChatService. Auditor and Metrics are
// optional.
type ServiceDeps struct {
	Router       *IntentRouter
	Orchestrator *Orchestrator
	Availability *scheduling.AvailabilityResolver
	Auditor      scheduling.Auditor
	Metrics      *metrics.ChatMetrics
	Logger       *logging.Logger
}

// ChatService is the stateless turn pipeline: input screening, early
// intercept, intent routing, the tool orchestrator, then output guardrails.
type ChatService struct {
	cfg          Config
	router       *IntentRouter
	orchestrator *Orchestrator
	availability *scheduling.AvailabilityResolver
	auditor      scheduling.Auditor
	metrics      *metrics.ChatMetrics
	logger       *logging.Logger
}

// NewChatService wires the pipeline.
func NewChatService(cfg Config, deps ServiceDeps) (*ChatService, error) {
	if deps.Router == nil {
		return nil, errors.New("conversation: intent router required")
	}
	if deps.Orchestrator == nil {
		return nil, errors.New("conversation: orchestrator required")
	}
	if deps.Availability == nil {
		return nil, errors.New("conversation: availability resolver required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	if strings.TrimSpace(cfg.Greeting) == "" {
		cfg.Greeting = defaultGreeting
	}
	return &ChatService{
		cfg:          cfg,
		router:       deps.Router,
		orchestrator: deps.Orchestrator,
		availability: deps.Availability,
		auditor:      deps.Auditor,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}, nil
}

// Respond answers the last entry of req.History, which must be a non-empty
// user turn. Upstream and store trouble becomes a canned reply; a history
// without a final user utterance is the only error.
func (s *ChatService) Respond(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !endsWithUserUtterance(req.History) {
		return nil, ErrEmptyHistory
	}
	transcript := windowTranscript(toTranscript(req.History), s.cfg.HistoryWindow)
	if len(transcript) == 0 {
		return nil, ErrEmptyHistory
	}
	last := len(transcript) - 1

	scan := ScanInput(transcript[last].Content)
	if scan.Blocked {
		s.recordBlockedInput(ctx, scan)
		return &ChatResponse{Response: inputBlockedReply, Meta: &ResponseMeta{Path: PathInputGuard}}, nil
	}
	transcript[last].Content = scan.Sanitized
	latest := transcript[last].Content
	history := transcript[:last]

	draft := ExtractKnownSlots(transcript, s.availability.Dates())
	meta := &ResponseMeta{}
	if !draft.Empty() {
		meta.Known = &draft
	}

	if shouldIntercept(history, latest, s.cfg.Greeting) {
		res := interceptAvailability(ctx, s.availability, s.cfg.AvailabilityTimeout, latest)
		meta.Path = PathIntercept
		meta.Error = res.Meta
		meta.TimedOut = res.TimedOut
		meta.Fallback = res.TimedOut
		if res.Availability != nil {
			meta.Availability = res.Availability
		}
		s.metrics.ObserveTurn("availability", PathIntercept)
		s.logger.Info("availability question intercepted", "timed_out", res.TimedOut)
		return &ChatResponse{Response: res.Text, Meta: meta}, nil
	}

	intent, source := s.router.Classify(ctx, history, latest)
	meta.Intent = intent
	meta.IntentSource = source

	if intent == IntentGreeting {
		meta.Path = PathGreeting
		s.metrics.ObserveTurn(string(intent), PathGreeting)
		return &ChatResponse{Response: s.cfg.Greeting, Meta: meta}, nil
	}

	system := BuildSystemPrompt(PromptConfig{
		ClinicName: s.cfg.ClinicName,
		Calendar:   s.cfg.Calendar,
		Template:   s.cfg.PromptTemplate,
	}, draft)
	result := s.orchestrator.Run(ctx, system, transcript)
	meta.Path = PathOrchestrator
	meta.Booking = result.Booking()
	meta.Error = result.ErrorMeta()
	meta.Fallback = result.Fallback
	meta.TimedOut = result.TimedOut
	for i := len(result.Outcomes) - 1; i >= 0; i-- {
		if result.Outcomes[i].Availability != nil {
			meta.Availability = result.Outcomes[i].Availability
			break
		}
	}

	reply := result.Text
	if !result.Fallback {
		guarded := ApplyGuardrails(reply, latest)
		reply = guarded.Text
		if len(guarded.Rules) > 0 {
			meta.Guardrails = guarded.Rules
			s.recordGuardrails(ctx, guarded, draft)
		}
	}

	s.metrics.ObserveTurn(string(intent), PathOrchestrator)
	s.logger.Info("chat turn answered",
		"intent", intent,
		"intent_source", source,
		"tool_calls", len(result.Outcomes),
		"fallback", result.Fallback,
	)
	return &ChatResponse{Response: reply, Meta: meta}, nil
}

func (s *ChatService) recordGuardrails(ctx context.Context, res GuardrailResult, draft BookingDraft) {
	for _, rule := range res.Rules {
		s.metrics.ObserveGuardrail(rule)
	}
	s.logger.Info("guardrails rewrote reply", "rules", res.Rules, "blocked", res.Blocked)
	if s.auditor == nil {
		return
	}
	details, err := json.Marshal(map[string]any{"rules": res.Rules, "blocked": res.Blocked})
	if err != nil {
		return
	}
	s.auditor.Record(ctx, audit.Event{
		Type:    audit.EventGuardrailRewrite,
		Cedula:  draft.Cedula,
		Studies: draft.Studies,
		Details: details,
	})
}

// recordBlockedInput never logs the message itself.
func (s *ChatService) recordBlockedInput(ctx context.Context, scan InputScan) {
	s.metrics.ObserveGuardrail(PathInputGuard)
	s.metrics.ObserveTurn("blocked", PathInputGuard)
	s.logger.Warn("user message blocked before the model", "signals", scan.Signals, "score", scan.Score)
	if s.auditor == nil {
		return
	}
	details, err := json.Marshal(map[string]any{"signals": scan.Signals, "score": scan.Score})
	if err != nil {
		return
	}
	s.auditor.Record(ctx, audit.Event{Type: audit.EventInputBlocked, Details: details})
}

// endsWithUserUtterance reports whether the raw last turn is a non-empty
// user turn. It runs before toTranscript so a blank final entry cannot
// promote the preceding assistant message to the utterance.
func endsWithUserUtterance(turns []ChatTurn) bool {
	if len(turns) == 0 {
		return false
	}
	final := turns[len(turns)-1]
	if turnRole(final.Role) != ChatRoleUser {
		return false
	}
	for _, part := range final.Parts {
		if strings.TrimSpace(part.Text) != "" {
			return true
		}
	}
	return false
}

func turnRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "model", "assistant", "bot":
		return ChatRoleAssistant
	}
	return ChatRoleUser
}

// toTranscript flattens client turns. "model" and "assistant" are the
// assistant; everything else is the user. Empty turns are dropped.
func toTranscript(turns []ChatTurn) []ChatMessage {
	out := make([]ChatMessage, 0, len(turns))
	for _, turn := range turns {
		texts := make([]string, 0, len(turn.Parts))
		for _, part := range turn.Parts {
			if t := strings.TrimSpace(part.Text); t != "" {
				texts = append(texts, t)
			}
		}
		if len(texts) == 0 {
			continue
		}
		out = append(out, ChatMessage{Role: turnRole(turn.Role), Content: strings.Join(texts, "\n")})
	}
	return out
}

// windowTranscript keeps the last n messages and makes sure the window
// opens on a user turn, which both model APIs require.
func windowTranscript(msgs []ChatMessage, n int) []ChatMessage {
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	for len(msgs) > 1 && msgs[0].Role != ChatRoleUser {
		msgs = msgs[1:]
	}
	return msgs
}
