package conversation

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
)

const availabilityFallbackText = "No pude verificar la disponibilidad en este momento. Intenta de nuevo en unos minutos o indícame otra fecha."

var (
	isoDateToken  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	dayMonthToken = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)
	weekdayToken  = regexp.MustCompile(`\b(lunes|martes|miercoles|jueves|viernes|sabado|domingo|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

// hasDateToken reports an ISO date, a D/M[/Y] date or a weekday name.
func hasDateToken(text string) bool {
	folded := scheduling.Fold(text)
	return isoDateToken.MatchString(folded) || dayMonthToken.MatchString(folded) || weekdayToken.MatchString(folded)
}

// shouldIntercept is true for a date question that arrives before any
// scheduling dialogue has started. Assistant turns that repeat the canned
// greeting are ignored, since it offers to book for everyone.
func shouldIntercept(history []ChatMessage, latest, greeting string) bool {
	if !hasDateToken(latest) {
		return false
	}
	greeting = strings.TrimSpace(greeting)
	prior := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		if msg.Role == ChatRoleAssistant && strings.TrimSpace(msg.Content) == greeting {
			continue
		}
		prior = append(prior, msg)
	}
	return !transcriptHasScheduling(prior, false)
}

// InterceptResult is a deterministic availability answer.
type InterceptResult struct {
	Text         string
	Availability *scheduling.WeekAvailability
	Meta         *scheduling.ErrorMeta
	TimedOut     bool
}

// interceptAvailability answers a bare date question straight from the
// availability resolver.
func interceptAvailability(ctx context.Context, resolver *scheduling.AvailabilityResolver, budget time.Duration, latest string) InterceptResult {
	week, err := raceWithTimeout(ctx, budget, func(ctx context.Context) (*scheduling.WeekAvailability, error) {
		return resolver.Week(ctx, latest)
	})
	if errors.Is(err, ErrTimeout) {
		return InterceptResult{Text: availabilityFallbackText, TimedOut: true}
	}
	if err != nil {
		if te, ok := scheduling.AsToolError(err); ok {
			meta := te.Meta
			return InterceptResult{Text: te.Message, Meta: &meta}
		}
		return InterceptResult{Text: availabilityFallbackText}
	}
	text := week.Message
	if week.Available && !week.FullyBooked {
		text = strings.TrimSpace(text + " ¿Quieres que te agende una cita?")
	}
	return InterceptResult{Text: text, Availability: week}
}
