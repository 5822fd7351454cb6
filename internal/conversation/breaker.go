package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// ErrBreakerOpen is returned without calling the model while the breaker is
// open or probing.
var ErrBreakerOpen = errors.New("conversation: llm circuit breaker open")

// BreakerSettings tunes BreakerLLMClient.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a probe.
	OpenTimeout time.Duration
}

// BreakerLLMClient guards an LLMClient with a circuit breaker.
type BreakerLLMClient struct {
	inner  LLMClient
	cb     *gobreaker.CircuitBreaker
	logger *logging.Logger
}

// NewBreakerLLMClient wraps inner. Defaults: 3 consecutive failures, 30s open.
func NewBreakerLLMClient(inner LLMClient, st BreakerSettings, logger *logging.Logger) *BreakerLLMClient {
	if logger == nil {
		logger = logging.Default()
	}
	if st.Name == "" {
		st.Name = "llm"
	}
	if st.ConsecutiveFailures == 0 {
		st.ConsecutiveFailures = 3
	}
	if st.OpenTimeout <= 0 {
		st.OpenTimeout = 30 * time.Second
	}
	threshold := st.ConsecutiveFailures
	return &BreakerLLMClient{
		inner:  inner,
		logger: logger,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        st.Name,
			MaxRequests: 1,
			Timeout:     st.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("llm circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (c *BreakerLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.inner.Complete(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return LLMResponse{}, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		return LLMResponse{}, err
	}
	return out.(LLMResponse), nil
}

// State reports the breaker state for diagnostics.
func (c *BreakerLLMClient) State() string {
	return c.cb.State().String()
}
