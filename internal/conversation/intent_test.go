package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsConfirmation(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"sí", true},
		{"Si, por favor", true},
		{"ok dale", true},
		{"De acuerdo.", true},
		{"yes", true},
		{"perfecto, confirmo", true},
		{"sí quiero el martes a las 9", false},
		{"no", false},
		{"", false},
		{"hola", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, isConfirmation(tt.msg))
		})
	}
}

func TestContainsSchedulingKeyword(t *testing.T) {
	assert.True(t, containsSchedulingKeyword("Quiero agendar una cita"))
	assert.True(t, containsSchedulingKeyword("¿Tienen DISPONIBILIDAD?"))
	assert.True(t, containsSchedulingKeyword("quisiera una hora para el lunes"))
	assert.True(t, containsSchedulingKeyword("Can I book?"))
	assert.False(t, containsSchedulingKeyword("¿Cuánto cuesta la glicemia?"))
	assert.False(t, containsSchedulingKeyword("resultados de citología"))
}

func TestParseIntent(t *testing.T) {
	assert.Equal(t, IntentGreeting, parseIntent(" greeting\n"))
	assert.Equal(t, IntentStudyInquiry, parseIntent(`"study_inquiry".`))
	assert.Equal(t, IntentBookAppointment, parseIntent("book_appointment because the user asked"))
	assert.Equal(t, IntentUnknown, parseIntent("saludo"))
	assert.Equal(t, IntentUnknown, parseIntent(""))
}

func TestIntentRouter_Classify(t *testing.T) {
	schedulingHistory := []ChatMessage{
		{Role: ChatRoleUser, Content: "Hola"},
		{Role: ChatRoleAssistant, Content: "¿Quieres agendar tu cita para el lunes?"},
	}

	t.Run("confirmation after scheduling context", func(t *testing.T) {
		llm := newScriptedLLM()
		intent, source := NewIntentRouter(llm, time.Second, nil, nil).Classify(context.Background(), schedulingHistory, "sí")
		assert.Equal(t, IntentBookAppointment, intent)
		assert.Equal(t, SourceConfirmation, source)
		assert.Empty(t, llm.requests())
	})

	t.Run("assistant keywords alone do not pin the intent", func(t *testing.T) {
		llm := newScriptedLLM(textStep("study_inquiry"))
		intent, source := NewIntentRouter(llm, time.Second, nil, nil).Classify(context.Background(), schedulingHistory, "¿y cuánto cuesta?")
		assert.Equal(t, IntentStudyInquiry, intent)
		assert.Equal(t, SourceLLM, source)
	})

	t.Run("earlier user scheduling turn", func(t *testing.T) {
		history := []ChatMessage{
			{Role: ChatRoleUser, Content: "Quiero reservar para hematología"},
			{Role: ChatRoleAssistant, Content: "¿Qué día te queda bien?"},
		}
		llm := newScriptedLLM()
		intent, source := NewIntentRouter(llm, time.Second, nil, nil).Classify(context.Background(), history, "el que tengan")
		assert.Equal(t, IntentBookAppointment, intent)
		assert.Equal(t, SourceHistory, source)
		assert.Empty(t, llm.requests())
	})

	t.Run("llm label used verbatim", func(t *testing.T) {
		llm := newScriptedLLM(textStep("greeting"))
		intent, source := NewIntentRouter(llm, time.Second, nil, nil).Classify(context.Background(), nil, "buenas tardes")
		assert.Equal(t, IntentGreeting, intent)
		assert.Equal(t, SourceLLM, source)

		reqs := llm.requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, []string{intentInstruction}, reqs[0].System)
		assert.Equal(t, int32(10), reqs[0].MaxTokens)
		require.Len(t, reqs[0].Messages, 1)
		assert.Equal(t, "buenas tardes", reqs[0].Messages[0].Content)
	})

	t.Run("llm error defaults to unknown", func(t *testing.T) {
		llm := newScriptedLLM(scriptedStep{err: errors.New("boom")})
		intent, source := NewIntentRouter(llm, time.Second, nil, nil).Classify(context.Background(), nil, "xyz")
		assert.Equal(t, IntentUnknown, intent)
		assert.Equal(t, SourceDefault, source)
	})

	t.Run("llm timeout defaults to unknown", func(t *testing.T) {
		llm := newScriptedLLM(scriptedStep{block: true})
		intent, source := NewIntentRouter(llm, 20*time.Millisecond, nil, nil).Classify(context.Background(), nil, "xyz")
		assert.Equal(t, IntentUnknown, intent)
		assert.Equal(t, SourceDefault, source)
	})

	t.Run("open breaker defaults to unknown", func(t *testing.T) {
		inner := newScriptedLLM(scriptedStep{err: errors.New("boom")})
		breaker := NewBreakerLLMClient(inner, BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Minute}, nil)
		router := NewIntentRouter(breaker, time.Second, nil, nil)

		intent, _ := router.Classify(context.Background(), nil, "xyz")
		assert.Equal(t, IntentUnknown, intent)
		intent, source := router.Classify(context.Background(), nil, "xyz")
		assert.Equal(t, IntentUnknown, intent)
		assert.Equal(t, SourceDefault, source)
		assert.Len(t, inner.requests(), 1)
	})

	t.Run("nil llm", func(t *testing.T) {
		intent, source := NewIntentRouter(nil, time.Second, nil, nil).Classify(context.Background(), nil, "hola")
		assert.Equal(t, IntentUnknown, intent)
		assert.Equal(t, SourceDefault, source)
	})
}
