package conversation

import (
	"context"
	"encoding/json"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleTool      = "tool"
)

// ToolCall is a function invocation requested by the model. Providers that
// do not issue call ids get synthetic ones ("call_1", "call_2", ...).
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ChatMessage is an internal message representation that can include system
// prompts, assistant tool calls and tool results.
type ChatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolCallID and ToolName key a ChatRoleTool message to its call.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
}

// ParamSchema is the provider-neutral subset of JSON Schema used to declare
// tool parameters.
type ParamSchema struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Properties  map[string]*ParamSchema `json:"properties,omitempty"`
	Items       *ParamSchema            `json:"items,omitempty"`
	Required    []string                `json:"required,omitempty"`
	Enum        []string                `json:"enum,omitempty"`
}

// toMap renders the schema as plain maps for SDKs that serialize documents
// without honoring json tags.
func (s *ParamSchema) toMap() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": s.Type}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.toMap()
		}
		out["properties"] = props
	}
	if s.Items != nil {
		out["items"] = s.Items.toMap()
	}
	if len(s.Required) > 0 {
		req := make([]any, len(s.Required))
		for i, r := range s.Required {
			req[i] = r
		}
		out["required"] = req
	}
	if len(s.Enum) > 0 {
		enum := make([]any, len(s.Enum))
		for i, e := range s.Enum {
			enum[i] = e
		}
		out["enum"] = enum
	}
	return out
}

// ToolSpec declares one callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *ParamSchema
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	// Model overrides the client's configured model id when set.
	Model       string
	System      []string
	Messages    []ChatMessage
	Tools       []ToolSpec
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
