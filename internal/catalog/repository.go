package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
)

const searchLimit = 5

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository reads the studies table.
type PostgresRepository struct {
	db rowQuerier
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db rowQuerier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Search matches names case-insensitively on any term.
func (r *PostgresRepository) Search(ctx context.Context, terms []string) ([]Study, error) {
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			patterns = append(patterns, "%"+t+"%")
		}
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT name, COALESCE(description, ''), COALESCE(preparation, ''),
		       COALESCE(price_usd, 0)::float8, COALESCE(turnaround, '')
		FROM studies
		WHERE active AND name ILIKE ANY($1)
		ORDER BY name
		LIMIT $2
	`, patterns, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search studies: %w", err)
	}
	defer rows.Close()

	var out []Study
	for rows.Next() {
		var s Study
		if err := rows.Scan(&s.Name, &s.Description, &s.Preparation, &s.PriceUSD, &s.Turnaround); err != nil {
			return nil, fmt.Errorf("catalog: scan study: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StaticRepository serves a fixed study list; used without a database.
type StaticRepository struct {
	studies []Study
}

// NewStaticRepository copies studies.
func NewStaticRepository(studies []Study) *StaticRepository {
	return &StaticRepository{studies: append([]Study(nil), studies...)}
}

// Search mirrors the ILIKE semantics on folded names.
func (r *StaticRepository) Search(_ context.Context, terms []string) ([]Study, error) {
	var out []Study
	for _, s := range r.studies {
		name := scheduling.Fold(s.Name)
		for _, t := range terms {
			if t = strings.TrimSpace(scheduling.Fold(t)); t != "" && strings.Contains(name, t) {
				out = append(out, s)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > searchLimit {
		out = out[:searchLimit]
	}
	return out, nil
}

// DefaultStudies is the seed catalog shared by the seed command and the
// database-less mode.
func DefaultStudies() []Study {
	return []Study{
		{Name: "Hematología completa", Description: "Conteo de glóbulos rojos, blancos y plaquetas.", Preparation: "No requiere ayuno.", PriceUSD: 8, Turnaround: "Mismo día"},
		{Name: "Glicemia", Description: "Nivel de glucosa en sangre.", Preparation: "Ayuno de 8 horas.", PriceUSD: 4, Turnaround: "Mismo día"},
		{Name: "Hemoglobina glicosilada", Description: "Promedio de glucosa de los últimos tres meses.", Preparation: "No requiere ayuno.", PriceUSD: 15, Turnaround: "24 horas"},
		{Name: "Perfil lipídico", Description: "Colesterol total, HDL, LDL y triglicéridos.", Preparation: "Ayuno de 12 horas.", PriceUSD: 14, Turnaround: "Mismo día"},
		{Name: "Perfil tiroideo", Description: "TSH, T3 y T4 libre.", Preparation: "No requiere ayuno.", PriceUSD: 30, Turnaround: "48 horas"},
		{Name: "Perfil hepático", Description: "Transaminasas, bilirrubina y fosfatasa alcalina.", Preparation: "Ayuno de 8 horas.", PriceUSD: 20, Turnaround: "24 horas"},
		{Name: "Creatinina", Description: "Función renal.", Preparation: "Ayuno de 8 horas.", PriceUSD: 5, Turnaround: "Mismo día"},
		{Name: "Examen de orina", Description: "Uroanálisis completo.", Preparation: "Primera orina de la mañana en envase estéril.", PriceUSD: 4, Turnaround: "Mismo día"},
		{Name: "Examen de heces", Description: "Coproanálisis.", Preparation: "Muestra fresca en envase estéril.", PriceUSD: 4, Turnaround: "Mismo día"},
		{Name: "Prueba de embarazo", Description: "Beta HCG cuantitativa en sangre.", Preparation: "No requiere ayuno.", PriceUSD: 10, Turnaround: "Mismo día"},
		{Name: "Antígeno prostático (PSA)", Description: "PSA total.", Preparation: "Evitar ejercicio intenso 48 horas antes.", PriceUSD: 18, Turnaround: "24 horas"},
		{Name: "VIH", Description: "Prueba de anticuerpos VIH 1 y 2.", Preparation: "No requiere ayuno.", PriceUSD: 12, Turnaround: "24 horas"},
		{Name: "VDRL", Description: "Tamizaje de sífilis.", Preparation: "No requiere ayuno.", PriceUSD: 6, Turnaround: "Mismo día"},
		{Name: "Vitamina D", Description: "25-hidroxivitamina D.", Preparation: "No requiere ayuno.", PriceUSD: 35, Turnaround: "72 horas"},
	}
}
