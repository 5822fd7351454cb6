package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/lab-scheduling-assistant/internal/config"
	"github.com/wolfman30/lab-scheduling-assistant/internal/conversation"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// ErrNoLLMProvider is returned when neither Gemini nor Bedrock is configured.
var ErrNoLLMProvider = errors.New("bootstrap: no LLM provider configured (set GEMINI_API_KEY or BEDROCK_MODEL_ID)")

// LLMClients are the model clients of the chat pipeline. Classifier is the
// chat client behind a circuit breaker.
type LLMClients struct {
	Chat       conversation.LLMClient
	Classifier conversation.LLMClient
	Provider   string
}

// BuildLLMClients picks Gemini as the primary model and Bedrock as the
// fallback. Either alone is enough. awsCfg may be nil when Bedrock is off.
func BuildLLMClients(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*LLMClients, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var primary, fallback conversation.LLMClient
	var providers []string
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		primary = gemini
		providers = append(providers, "gemini")
	}
	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: aws config required for bedrock")
		}
		fallback = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), model)
		providers = append(providers, "bedrock")
	}

	var chat conversation.LLMClient
	switch {
	case primary != nil && fallback != nil:
		chat = conversation.NewFallbackLLMClient(primary, fallback, logger)
	case primary != nil:
		chat = primary
	case fallback != nil:
		chat = fallback
	default:
		return nil, ErrNoLLMProvider
	}

	provider := strings.Join(providers, "+")
	logger.Info("llm clients configured", "provider", provider, "gemini_model", cfg.GeminiModelID, "bedrock_model", cfg.BedrockModelID)
	return &LLMClients{
		Chat:       chat,
		Classifier: conversation.NewBreakerLLMClient(chat, conversation.BreakerSettings{Name: "intent-classifier"}, logger),
		Provider:   provider,
	}, nil
}
