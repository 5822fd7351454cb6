package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// Intent is the routing label of the latest user message.
type Intent string

const (
	IntentStudyInquiry    Intent = "study_inquiry"
	IntentBookAppointment Intent = "book_appointment"
	IntentGreeting        Intent = "greeting"
	IntentUnknown         Intent = "unknown"
)

// IntentSource tells which rule produced the label.
type IntentSource string

const (
	SourceConfirmation IntentSource = "confirmation"
	SourceHistory      IntentSource = "history"
	SourceLLM          IntentSource = "llm"
	SourceDefault      IntentSource = "default"
)

// schedulingKeywords are matched against folded text.
var schedulingKeywords = []string{
	"agendar", "agenda", "cita", "reservar", "reserva", "apartar", "turno",
	"disponibilidad", "disponible", "horario", "hora para", "programar",
	"appointment", "schedule", "book",
}

var confirmationWords = map[string]struct{}{
	"si": {}, "ok": {}, "okay": {}, "okey": {}, "dale": {}, "claro": {}, "perfecto": {},
	"correcto": {}, "exacto": {}, "listo": {}, "vale": {}, "bueno": {}, "confirmo": {},
	"de acuerdo": {}, "esta bien": {}, "por favor": {}, "si por favor": {}, "si claro": {},
	"yes": {}, "sure": {}, "yep": {}, "confirmed": {},
}

const intentInstruction = `Clasifica el último mensaje del paciente de un laboratorio clínico.
Responde con UNA sola etiqueta, sin explicación:
study_inquiry  (pregunta por estudios, precios, preparación o resultados)
book_appointment  (quiere agendar, cambiar o confirmar una cita)
greeting  (solo saluda)
unknown  (cualquier otra cosa)`

// IntentRouter labels the latest message, preferring heuristics over the model.
type IntentRouter struct {
	llm     LLMClient
	timeout time.Duration
	metrics *metrics.ChatMetrics
	logger  *logging.Logger
}

// NewIntentRouter builds a router. llm may be nil, in which case anything
// the heuristics miss is unknown.
func NewIntentRouter(llm LLMClient, timeout time.Duration, m *metrics.ChatMetrics, logger *logging.Logger) *IntentRouter {
	if logger == nil {
		logger = logging.Default()
	}
	return &IntentRouter{llm: llm, timeout: timeout, metrics: m, logger: logger}
}

// Classify labels latest given the prior transcript.
func (r *IntentRouter) Classify(ctx context.Context, history []ChatMessage, latest string) (Intent, IntentSource) {
	if isConfirmation(latest) && transcriptHasScheduling(history, false) {
		return IntentBookAppointment, SourceConfirmation
	}
	if transcriptHasScheduling(history, true) {
		return IntentBookAppointment, SourceHistory
	}
	if r.llm == nil {
		return IntentUnknown, SourceDefault
	}

	start := time.Now()
	resp, err := raceWithTimeout(ctx, r.timeout, func(ctx context.Context) (LLMResponse, error) {
		return r.llm.Complete(ctx, LLMRequest{
			System:      []string{intentInstruction},
			Messages:    append(append([]ChatMessage(nil), history...), ChatMessage{Role: ChatRoleUser, Content: latest}),
			MaxTokens:   10,
			Temperature: 0,
		})
	})
	r.metrics.ObserveLLM("classify", time.Since(start).Seconds(), errors.Is(err, ErrTimeout))
	if err != nil {
		r.logger.Warn("intent classification failed, defaulting to unknown", "error", err)
		return IntentUnknown, SourceDefault
	}
	return parseIntent(resp.Text), SourceLLM
}

// parseIntent takes the model's single token verbatim once trimmed of
// quotes and punctuation; unrecognized labels are unknown.
func parseIntent(text string) Intent {
	label := strings.ToLower(strings.Trim(strings.TrimSpace(text), "\"'`.!,;: \n"))
	if fields := strings.Fields(label); len(fields) > 0 {
		label = fields[0]
	}
	switch Intent(label) {
	case IntentStudyInquiry, IntentBookAppointment, IntentGreeting, IntentUnknown:
		return Intent(label)
	}
	return IntentUnknown
}

// isConfirmation reports a short acknowledgement such as "sí" or "ok, dale".
func isConfirmation(msg string) bool {
	words := strings.FieldsFunc(scheduling.Fold(msg), isWordSeparator)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	if _, ok := confirmationWords[strings.Join(words, " ")]; ok {
		return true
	}
	for _, word := range words {
		if _, ok := confirmationWords[word]; !ok {
			return false
		}
	}
	return true
}

// transcriptHasScheduling scans prior turns for scheduling keywords,
// optionally only the user's own turns.
func transcriptHasScheduling(history []ChatMessage, userOnly bool) bool {
	for _, msg := range history {
		if userOnly && msg.Role != ChatRoleUser {
			continue
		}
		if msg.Role != ChatRoleUser && msg.Role != ChatRoleAssistant {
			continue
		}
		if containsSchedulingKeyword(msg.Content) {
			return true
		}
	}
	return false
}

func containsSchedulingKeyword(text string) bool {
	folded := scheduling.Fold(text)
	for _, word := range strings.FieldsFunc(folded, isWordSeparator) {
		for _, kw := range schedulingKeywords {
			if !strings.Contains(kw, " ") && (word == kw || strings.HasPrefix(word, kw)) {
				return true
			}
		}
	}
	for _, kw := range schedulingKeywords {
		if strings.Contains(kw, " ") && strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

func isWordSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}
