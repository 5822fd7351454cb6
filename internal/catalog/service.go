package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("lab.internal.catalog")

// Study is one catalog entry.
type Study struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Preparation string  `json:"preparation,omitempty"`
	PriceUSD    float64 `json:"priceUsd,omitempty"`
	Turnaround  string  `json:"turnaround,omitempty"`
}

// Repository finds studies whose name contains any of the terms.
type Repository interface {
	Search(ctx context.Context, terms []string) ([]Study, error)
}

// Cache holds lookup results keyed by the normalized query.
type Cache interface {
	Get(ctx context.Context, key string) ([]Study, bool, error)
	Set(ctx context.Context, key string, studies []Study, ttl time.Duration) error
}

// LookupResult is the getStudiesInfo tool payload.
type LookupResult struct {
	Query   string  `json:"query"`
	Match   Match   `json:"match"`
	Studies []Study `json:"studies"`
	Note    string  `json:"note,omitempty"`
}

// Service looks studies up through an optional cache.
type Service struct {
	repo   Repository
	cache  Cache
	ttl    time.Duration
	logger *logging.Logger
}

// NewService builds a catalog service. cache may be nil.
func NewService(repo Repository, cache Cache, ttl time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Lookup normalizes name and returns matching catalog entries.
func (s *Service) Lookup(ctx context.Context, name string) (*LookupResult, error) {
	ctx, span := tracer.Start(ctx, "catalog.lookup")
	defer span.End()

	if strings.TrimSpace(name) == "" {
		return nil, scheduling.NewToolError(scheduling.CodeStudiesRequired, "studyName", "Indica el nombre del estudio que quieres consultar.")
	}
	match := Normalize(name)
	span.SetAttributes(
		attribute.String("catalog.canonical", match.Canonical),
		attribute.String("catalog.confidence", match.Confidence.String()),
	)

	key := cacheKey(match.Canonical)
	if s.cache != nil {
		if studies, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn("catalog cache read failed", "key", key, "error", err)
		} else if ok {
			return s.result(name, match, studies)
		}
	}

	terms := []string{match.Canonical}
	if trimmed := strings.TrimSpace(name); !strings.EqualFold(trimmed, match.Canonical) {
		terms = append(terms, trimmed)
	}
	studies, err := s.repo.Search(ctx, terms)
	if err != nil {
		s.logger.Error("catalog lookup failed", "study", match.Canonical, "error", err)
		span.RecordError(err)
		return nil, &scheduling.ToolError{
			Message: "No pude consultar el catálogo de estudios en este momento.",
			Meta:    scheduling.ErrorMeta{Code: scheduling.CodeStoreError, Field: "studyName"},
			Cause:   err,
		}
	}
	if s.cache != nil && len(studies) > 0 {
		if err := s.cache.Set(ctx, key, studies, s.ttl); err != nil {
			s.logger.Warn("catalog cache write failed", "key", key, "error", err)
		}
	}
	return s.result(name, match, studies)
}

func (s *Service) result(query string, match Match, studies []Study) (*LookupResult, error) {
	if len(studies) == 0 {
		return nil, scheduling.NewToolError(scheduling.CodeStudyNotFound, "studyName",
			fmt.Sprintf("No encontré el estudio \"%s\" en nuestro catálogo. Puedes agendarlo igual con ese nombre o consultarlo con el personal.", strings.TrimSpace(query)))
	}
	out := &LookupResult{Query: query, Match: match, Studies: studies}
	if match.Confidence == ConfidenceTentative {
		out.Note = fmt.Sprintf("Confirma con el paciente si se refiere a %s.", match.Canonical)
	}
	return out, nil
}

func cacheKey(canonical string) string {
	return "catalog:study:" + strings.Join(strings.Fields(scheduling.Fold(canonical)), "_")
}
