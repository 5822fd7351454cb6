package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfman30/lab-scheduling-assistant/internal/audit"
	"github.com/wolfman30/lab-scheduling-assistant/internal/catalog"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
)

// Wednesday 10:00 clinic time.
var fixedNow = time.Date(2026, 10, 14, 14, 0, 0, 0, time.UTC)

func testCalendar() scheduling.Config {
	cfg := scheduling.DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	return cfg
}

type scriptedStep struct {
	resp  LLMResponse
	err   error
	block bool
}

// scriptedLLM replays steps in order and records every request.
type scriptedLLM struct {
	mu    sync.Mutex
	steps []scriptedStep
	reqs  []LLMRequest
}

func newScriptedLLM(steps ...scriptedStep) *scriptedLLM {
	return &scriptedLLM{steps: steps}
}

func (s *scriptedLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	step := scriptedStep{err: errors.New("script exhausted")}
	if len(s.steps) > 0 {
		step = s.steps[0]
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()

	if step.block {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	}
	return step.resp, step.err
}

func (s *scriptedLLM) requests() []LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LLMRequest(nil), s.reqs...)
}

func textStep(text string) scriptedStep {
	return scriptedStep{resp: LLMResponse{Text: text}}
}

func toolStep(calls ...ToolCall) scriptedStep {
	return scriptedStep{resp: LLMResponse{ToolCalls: calls}}
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAuditor) Record(ctx context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAuditor) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// slowStore stalls every availability read until the caller gives up.
type slowStore struct {
	*scheduling.MemoryStore
}

func (s slowStore) BlockedDaysBetween(ctx context.Context, from, to string) ([]scheduling.BlockedDay, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type testStack struct {
	store  *scheduling.MemoryStore
	writer *scheduling.AppointmentWriter
	tools  *ToolExecutor
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	store := scheduling.NewMemoryStore(testCalendar())
	writer, err := scheduling.NewAppointmentWriter(store, scheduling.WriterConfig{Calendar: testCalendar()})
	require.NoError(t, err)
	cat := catalog.NewService(catalog.NewStaticRepository(catalog.DefaultStudies()), nil, 0, nil)
	tools, err := NewToolExecutor(cat, writer, time.Second, nil, nil)
	require.NoError(t, err)
	return &testStack{store: store, writer: writer, tools: tools}
}

func bookingArgs(studies string) string {
	return `{"patientInfo":{"firstName":"Ana","lastName":"Pérez","cedula":"V-12.345.678","phone":"0414-1234567"},` +
		`"studies":` + studies + `,"date":"lunes","time":"09:00","location":"sede_principal"}`
}
