package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient implements LLMClient with the Bedrock Converse API,
// including tool use.
type BedrockLLMClient struct {
	api     bedrockConverseAPI
	modelID string
}

func NewBedrockLLMClient(api bedrockConverseAPI, modelID string) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, modelID: modelID}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	modelID := strings.TrimSpace(c.modelID)
	if m := strings.TrimSpace(req.Model); m != "" {
		modelID = m
	}
	if modelID == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}

	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages, extraSystem, err := bedrockMessages(req.Messages)
	if err != nil {
		return LLMResponse{}, err
	}
	systemBlocks = append(systemBlocks, extraSystem...)

	inference := &brtypes.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(req.MaxTokens)
	}
	// Allow callers to omit temperature by passing a negative value.
	if req.Temperature >= 0 {
		inference.Temperature = aws.Float32(req.Temperature)
	}
	if req.TopP != 0 {
		inference.TopP = aws.Float32(req.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		inference = nil
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
		ToolConfig:      bedrockToolConfig(req.Tools),
	})
	if err != nil {
		return LLMResponse{}, err
	}

	text, calls, err := bedrockExtractOutput(out)
	if err != nil {
		return LLMResponse{}, err
	}

	resp := LLMResponse{
		Text:      strings.TrimSpace(text),
		ToolCalls: calls,
	}
	if out.StopReason != "" {
		resp.StopReason = string(out.StopReason)
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
	}
	return resp, nil
}

func bedrockToolConfig(specs []ToolSpec) *brtypes.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(spec.Name),
			Description: aws.String(spec.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(spec.Parameters.toMap())},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

// bedrockMessages converts the transcript. Consecutive tool results are
// merged into one user message as Converse requires.
func bedrockMessages(in []ChatMessage) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	messages := make([]brtypes.Message, 0, len(in))
	var system []brtypes.SystemContentBlock
	for _, msg := range in {
		content := strings.TrimSpace(msg.Content)

		switch msg.Role {
		case ChatRoleSystem:
			if content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: content})
			}
		case ChatRoleUser:
			if content == "" {
				continue
			}
			messages = append(messages, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: content},
				},
			})
		case ChatRoleAssistant:
			var blocks []brtypes.ContentBlock
			if content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: content})
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				if len(call.Args) > 0 {
					if err := json.Unmarshal(call.Args, &args); err != nil {
						return nil, nil, fmt.Errorf("conversation: bedrock tool call args: %w", err)
					}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(call.ID),
					Name:      aws.String(call.Name),
					Input:     document.NewLazyDocument(args),
				}})
			}
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
		case ChatRoleTool:
			block := &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: aws.String(msg.ToolCallID),
				Content: []brtypes.ToolResultContentBlock{
					&brtypes.ToolResultContentBlockMemberText{Value: msg.Content},
				},
			}}
			if n := len(messages); n > 0 && messages[n-1].Role == brtypes.ConversationRoleUser && isToolResultMessage(messages[n-1]) {
				messages[n-1].Content = append(messages[n-1].Content, block)
				continue
			}
			messages = append(messages, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{block},
			})
		default:
			return nil, nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}
	return messages, system, nil
}

func isToolResultMessage(msg brtypes.Message) bool {
	for _, block := range msg.Content {
		if _, ok := block.(*brtypes.ContentBlockMemberToolResult); !ok {
			return false
		}
	}
	return len(msg.Content) > 0
}

func bedrockExtractOutput(out *bedrockruntime.ConverseOutput) (string, []ToolCall, error) {
	if out == nil {
		return "", nil, errors.New("conversation: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", nil, errors.New("conversation: bedrock response did not include a message output")
	}
	if len(msgOut.Value.Content) == 0 {
		return "", nil, errors.New("conversation: bedrock response message was empty")
	}

	var builder strings.Builder
	var calls []ToolCall
	for _, block := range msgOut.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			builder.WriteString(b.Value)
		case *brtypes.ContentBlockMemberToolUse:
			args := json.RawMessage("{}")
			if b.Value.Input != nil {
				raw, err := b.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return "", nil, fmt.Errorf("conversation: bedrock tool input: %w", err)
				}
				args = raw
			}
			id := aws.ToString(b.Value.ToolUseId)
			if id == "" {
				id = fmt.Sprintf("call_%d", len(calls)+1)
			}
			calls = append(calls, ToolCall{ID: id, Name: aws.ToString(b.Value.Name), Args: args})
		}
	}
	outText := builder.String()
	if strings.TrimSpace(outText) == "" && len(calls) == 0 {
		return "", nil, errors.New("conversation: bedrock response contained no text or tool use blocks")
	}
	return outText, calls, nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
