package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in         string
		canonical  string
		confidence Confidence
	}{
		{"hemograma", "Hematología completa", ConfidenceConfident},
		{"Hematología", "Hematología completa", ConfidenceConfident},
		{"examen de glucosa", "Glicemia", ConfidenceConfident},
		{"azúcar en la sangre", "Glicemia", ConfidenceConfident},
		{"HbA1c", "Hemoglobina glicosilada", ConfidenceConfident},
		{"colesterol y triglicéridos", "Perfil lipídico", ConfidenceConfident},
		{"TSH", "Perfil tiroideo", ConfidenceConfident},
		{"prueba de embarazo", "Prueba de embarazo", ConfidenceConfident},
		{"algo para el hígado", "Perfil hepático", ConfidenceTentative},
		{"chequeo de diabetes", "Glicemia", ConfidenceTentative},
		{"  Cultivo de garganta ", "Cultivo de garganta", ConfidenceNone},
		{"", "", ConfidenceNone},
	}
	for _, tt := range tests {
		got := Normalize(tt.in)
		assert.Equal(t, tt.canonical, got.Canonical, tt.in)
		assert.Equal(t, tt.confidence, got.Confidence, tt.in)
	}
}

func TestCanonicalNamesAreSeeded(t *testing.T) {
	repo := NewStaticRepository(DefaultStudies())
	for _, name := range CanonicalNames() {
		found, err := repo.Search(context.Background(), []string{name})
		require.NoError(t, err)
		assert.NotEmpty(t, found, name)
	}
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type countingRepo struct {
	inner Repository
	calls int
	err   error
}

func (c *countingRepo) Search(ctx context.Context, terms []string) ([]Study, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Search(ctx, terms)
}

func TestService_LookupCachesResults(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{inner: NewStaticRepository(DefaultStudies())}
	svc := NewService(repo, NewRedisCache(newRedis(t)), time.Minute, nil)

	first, err := svc.Lookup(ctx, "hemograma")
	require.NoError(t, err)
	require.Len(t, first.Studies, 1)
	assert.Equal(t, "Hematología completa", first.Studies[0].Name)
	assert.Equal(t, ConfidenceConfident, first.Match.Confidence)

	second, err := svc.Lookup(ctx, "biometría hemática")
	require.NoError(t, err)
	assert.Equal(t, first.Studies, second.Studies)
	assert.Equal(t, 1, repo.calls, "second lookup should be served from cache")
}

func TestService_LookupTentativeAddsNote(t *testing.T) {
	svc := NewService(NewStaticRepository(DefaultStudies()), nil, 0, nil)
	res, err := svc.Lookup(context.Background(), "algo del hígado")
	require.NoError(t, err)
	assert.Equal(t, ConfidenceTentative, res.Match.Confidence)
	assert.Contains(t, res.Note, "Perfil hepático")
}

func TestService_LookupNotFound(t *testing.T) {
	svc := NewService(NewStaticRepository(DefaultStudies()), NewRedisCache(nil), 0, nil)
	_, err := svc.Lookup(context.Background(), "cultivo de garganta")
	te, ok := scheduling.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, scheduling.CodeStudyNotFound, te.Meta.Code)
	assert.Contains(t, te.Message, "cultivo de garganta")
}

func TestService_LookupEmptyAndRepoError(t *testing.T) {
	svc := NewService(&countingRepo{err: errors.New("db down")}, nil, 0, nil)

	_, err := svc.Lookup(context.Background(), " ")
	te, ok := scheduling.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, scheduling.CodeStudiesRequired, te.Meta.Code)

	_, err = svc.Lookup(context.Background(), "glicemia")
	te, ok = scheduling.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, scheduling.CodeStoreError, te.Meta.Code)
	assert.ErrorContains(t, te.Cause, "db down")
}

func TestPostgresRepository_Search(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM studies").
		WithArgs([]string{"%Glicemia%", "%glucosa%"}, searchLimit).
		WillReturnRows(pgxmock.NewRows([]string{"name", "description", "preparation", "price_usd", "turnaround"}).
			AddRow("Glicemia", "Nivel de glucosa", "Ayuno de 8 horas.", 4.0, "Mismo día"))

	studies, err := newPostgresRepositoryWithDB(mock).Search(context.Background(), []string{"Glicemia", "glucosa", " "})
	require.NoError(t, err)
	require.Len(t, studies, 1)
	assert.Equal(t, 4.0, studies[0].PriceUSD)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SearchNoTerms(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	studies, err := newPostgresRepositoryWithDB(mock).Search(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, studies)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, []string{"Glicemia", "Perfil lipídico"}, Detect("Necesito glicemia y colesterol, por favor"))
	assert.Equal(t, []string{"Hematología completa"}, Detect("una hematología"))
	assert.Empty(t, Detect("hola, buenos días"))
	assert.Empty(t, Detect(""))
}
