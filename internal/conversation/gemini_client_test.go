package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiLLMClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiLLMClient(context.Background(), " ", "")
	assert.Error(t, err)
}

func TestGeminiContents_PlainDialogue(t *testing.T) {
	history, tail, err := geminiContents([]ChatMessage{
		{Role: ChatRoleSystem, Content: "ignored"},
		{Role: ChatRoleUser, Content: "hola"},
		{Role: ChatRoleAssistant, Content: "¿En qué te ayudo?"},
		{Role: ChatRoleUser, Content: "quiero una cita"},
	})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("quiero una cita")}, tail)
}

func TestGeminiContents_ToolRound(t *testing.T) {
	history, tail, err := geminiContents([]ChatMessage{
		{Role: ChatRoleUser, Content: "¿el lunes?"},
		{Role: ChatRoleAssistant, ToolCalls: []ToolCall{
			{ID: "call_1", Name: ToolGetAvailability, Args: json.RawMessage(`{"date":"lunes"}`)},
			{ID: "call_2", Name: ToolGetStudiesInfo, Args: json.RawMessage(`{"studyName":"glicemia"}`)},
		}},
		{Role: ChatRoleTool, ToolCallID: "call_1", ToolName: ToolGetAvailability, Content: `{"requestedDate":"2026-10-19"}`},
		{Role: ChatRoleTool, ToolCallID: "call_2", ToolName: ToolGetStudiesInfo, Content: `not json`},
	})
	require.NoError(t, err)

	require.Len(t, history, 2)
	require.Len(t, history[1].Parts, 2)
	call, ok := history[1].Parts[0].(genai.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, ToolGetAvailability, call.Name)
	assert.Equal(t, "lunes", call.Args["date"])

	require.Len(t, tail, 2)
	first, ok := tail[0].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, ToolGetAvailability, first.Name)
	assert.Equal(t, "2026-10-19", first.Response["requestedDate"])
	second := tail[1].(genai.FunctionResponse)
	assert.Equal(t, map[string]any{"result": "not json"}, second.Response)
}

func TestGeminiContents_MergesSameRoleTurns(t *testing.T) {
	history, _, err := geminiContents([]ChatMessage{
		{Role: ChatRoleUser, Content: "hola"},
		{Role: ChatRoleUser, Content: "¿hay alguien?"},
		{Role: ChatRoleAssistant, Content: "Sí"},
		{Role: ChatRoleUser, Content: "bien"},
	})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Len(t, history[0].Parts, 2)
}

func TestGeminiContents_Errors(t *testing.T) {
	_, _, err := geminiContents(nil)
	assert.Error(t, err)

	_, _, err = geminiContents([]ChatMessage{{Role: "narrator", Content: "x"}})
	assert.Error(t, err)

	_, _, err = geminiContents([]ChatMessage{{Role: ChatRoleUser, Content: " "}})
	assert.Error(t, err)
}

func TestGeminiTools(t *testing.T) {
	assert.Nil(t, geminiTools(nil))

	tools := geminiTools(ToolSpecs())
	require.Len(t, tools, 1)
	decls := tools[0].FunctionDeclarations
	require.Len(t, decls, 4)

	schedule := decls[3]
	assert.Equal(t, ToolScheduleAppointment, schedule.Name)
	assert.Equal(t, genai.TypeObject, schedule.Parameters.Type)
	assert.Equal(t, genai.TypeArray, schedule.Parameters.Properties["studies"].Type)
	assert.Equal(t, genai.TypeString, schedule.Parameters.Properties["studies"].Items.Type)
	assert.Equal(t, genai.TypeObject, schedule.Parameters.Properties["patientInfo"].Type)
	assert.Len(t, schedule.Parameters.Properties["location"].Enum, 3)
}

func TestGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []genai.Part{
				genai.Text("Reviso "),
				genai.FunctionCall{Name: ToolGetAvailability, Args: map[string]any{"date": "lunes"}},
				genai.Text("tu fecha."),
				genai.FunctionCall{Name: ToolGetAvailableHours, Args: map[string]any{"date": "lunes"}},
			}},
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 100, CandidatesTokenCount: 20, TotalTokenCount: 120},
	}

	out, err := geminiResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "Reviso tu fecha.", out.Text)
	require.Len(t, out.ToolCalls, 2)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.Equal(t, "call_2", out.ToolCalls[1].ID)
	assert.JSONEq(t, `{"date":"lunes"}`, string(out.ToolCalls[0].Args))
	assert.Equal(t, int32(120), out.Usage.TotalTokens)

	_, err = geminiResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}
