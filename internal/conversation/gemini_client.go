package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLMClient implements LLMClient using Google's Gemini API with
// function calling.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiLLMClient{
		client:  client,
		modelID: modelID,
	}, nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	modelID := c.modelID
	if strings.TrimSpace(req.Model) != "" {
		modelID = req.Model
	}
	model := c.client.GenerativeModel(modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if tools := geminiTools(req.Tools); tools != nil {
		model.Tools = tools
	}

	systemText := strings.TrimSpace(strings.Join(req.System, "\n\n"))
	history, tail, err := geminiContents(req.Messages)
	if err != nil {
		return LLMResponse{}, err
	}
	if systemText != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, tail...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	return geminiResponse(resp)
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiTools(specs []ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  geminiSchema(spec.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiSchema(s *ParamSchema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       geminiSchema(s.Items),
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = geminiSchema(p)
		}
	}
	return out
}

// geminiContents splits the transcript into chat history and the parts sent
// with the final SendMessage: the last user text, or every trailing tool
// result as function responses.
func geminiContents(messages []ChatMessage) ([]*genai.Content, []genai.Part, error) {
	if len(messages) == 0 {
		return nil, nil, errors.New("conversation: gemini requires at least one message")
	}

	tailStart := len(messages) - 1
	for tailStart > 0 && messages[tailStart].Role == ChatRoleTool && messages[tailStart-1].Role == ChatRoleTool {
		tailStart--
	}

	var history []*genai.Content
	for _, msg := range messages[:tailStart] {
		content, err := geminiContent(msg)
		if err != nil {
			return nil, nil, err
		}
		if content == nil {
			continue
		}
		// Gemini rejects two consecutive turns from the same role.
		if n := len(history); n > 0 && history[n-1].Role == content.Role {
			history[n-1].Parts = append(history[n-1].Parts, content.Parts...)
			continue
		}
		history = append(history, content)
	}

	var tail []genai.Part
	for _, msg := range messages[tailStart:] {
		content, err := geminiContent(msg)
		if err != nil {
			return nil, nil, err
		}
		if content != nil {
			tail = append(tail, content.Parts...)
		}
	}
	if len(tail) == 0 {
		return nil, nil, errors.New("conversation: gemini final message is empty")
	}
	return history, tail, nil
}

func geminiContent(msg ChatMessage) (*genai.Content, error) {
	text := strings.TrimSpace(msg.Content)
	switch msg.Role {
	case ChatRoleSystem:
		return nil, nil
	case ChatRoleUser:
		if text == "" {
			return nil, nil
		}
		return &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(text)}}, nil
	case ChatRoleAssistant:
		var parts []genai.Part
		if text != "" {
			parts = append(parts, genai.Text(text))
		}
		for _, call := range msg.ToolCalls {
			args := map[string]any{}
			if len(call.Args) > 0 {
				if err := json.Unmarshal(call.Args, &args); err != nil {
					return nil, fmt.Errorf("conversation: gemini tool call args: %w", err)
				}
			}
			parts = append(parts, genai.FunctionCall{Name: call.Name, Args: args})
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return &genai.Content{Role: "model", Parts: parts}, nil
	case ChatRoleTool:
		return &genai.Content{Role: "user", Parts: []genai.Part{genai.FunctionResponse{
			Name:     msg.ToolName,
			Response: toolResponseMap(msg.Content),
		}}}, nil
	default:
		return nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
	}
}

// toolResponseMap decodes a JSON object payload; anything else is wrapped.
func toolResponseMap(payload string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"result": payload}
}

func geminiResponse(resp *genai.GenerateContentResponse) (LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned empty content")
	}

	var responseText strings.Builder
	var calls []ToolCall
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			responseText.WriteString(string(p))
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return LLMResponse{}, fmt.Errorf("conversation: gemini function call args: %w", err)
			}
			calls = append(calls, ToolCall{
				ID:   fmt.Sprintf("call_%d", len(calls)+1),
				Name: p.Name,
				Args: args,
			})
		}
	}

	result := LLMResponse{
		Text:       strings.TrimSpace(responseText.String()),
		ToolCalls:  calls,
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}
