package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
	pgutil "github.com/bibbank/invoice-anomaly/pkg/postgres"
)

// AssessmentRepository implements port.AssessmentRepository using PostgreSQL.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new PostgreSQL-backed assessment repository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

// Save persists a batch assessment with its verdicts and their signals in one transaction.
// Saving the same assessment again replaces its verdicts.
func (r *AssessmentRepository) Save(ctx context.Context, assessment *model.BatchAssessment) error {
	return pgutil.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO batch_assessments (
				id, tenant_id, source, model_version,
				invoice_count, high_risk_count,
				duplicate_groups, abstentions, warnings,
				version, scored_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				model_version = EXCLUDED.model_version,
				invoice_count = EXCLUDED.invoice_count,
				high_risk_count = EXCLUDED.high_risk_count,
				duplicate_groups = EXCLUDED.duplicate_groups,
				abstentions = EXCLUDED.abstentions,
				warnings = EXCLUDED.warnings,
				version = EXCLUDED.version,
				scored_at = EXCLUDED.scored_at
		`
		_, err := tx.Exec(ctx, query,
			assessment.ID(),
			assessment.TenantID(),
			assessment.Source(),
			assessment.ModelVersion(),
			len(assessment.Verdicts()),
			assessment.HighRiskCount(),
			duplicateOnly(assessment.DuplicateGroups()),
			nonNil(assessment.Abstentions()),
			nonNil(assessment.Warnings()),
			assessment.Version(),
			assessment.ScoredAt(),
			assessment.CreatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to save assessment: %w", err)
		}

		// Signals cascade with their verdicts.
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_verdicts WHERE assessment_id = $1`, assessment.ID()); err != nil {
			return fmt.Errorf("failed to delete old verdicts: %w", err)
		}

		batch := &pgx.Batch{}
		for pos, v := range assessment.Verdicts() {
			batch.Queue(`
				INSERT INTO invoice_verdicts (
					assessment_id, position, tenant_id, invoice_id,
					score, risk_level, category, model_version,
					abstentions, amount_impact, scored_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				assessment.ID(), pos, assessment.TenantID(), v.InvoiceID,
				v.Score, v.RiskLevel.String(), v.Category.String(), v.ModelVersion,
				nonNil(v.Abstentions), v.AmountImpact, assessment.ScoredAt(),
			)
			for rank, s := range v.Signals {
				batch.Queue(`
					INSERT INTO verdict_signals (assessment_id, position, rank, source, code, value, reason)
					VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					assessment.ID(), pos, rank, s.Source.String(), string(s.Code), s.Value, s.Reason,
				)
			}
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close() //nolint:errcheck
				return fmt.Errorf("failed to save verdicts: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to save verdicts: %w", err)
		}
		return nil
	})
}

// FindByID retrieves a batch assessment with all verdicts, in input order.
func (r *AssessmentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.BatchAssessment, error) {
	query := `
		SELECT id, tenant_id, source, model_version,
			duplicate_groups, abstentions, warnings,
			version, scored_at, created_at
		FROM batch_assessments
		WHERE tenant_id = $1 AND id = $2
	`

	var (
		aid, tid     uuid.UUID
		source       string
		modelVersion string
		groups       []model.DuplicateGroup
		abstentions  []model.Abstention
		warnings     []model.StatisticsWarning
		version      int
		scoredAt     time.Time
		createdAt    time.Time
	)
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&aid, &tid, &source, &modelVersion,
		&groups, &abstentions, &warnings,
		&version, &scoredAt, &createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan assessment: %w", err)
	}

	verdicts, err := r.loadVerdicts(ctx, aid)
	if err != nil {
		return nil, err
	}

	return model.ReconstructBatchAssessment(
		aid, tid, source, modelVersion,
		verdicts, groups, abstentions, warnings,
		version, scoredAt, createdAt,
	), nil
}

// FindLatestVerdict retrieves the most recent verdict recorded for an invoice.
func (r *AssessmentRepository) FindLatestVerdict(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*model.AnomalyVerdict, error) {
	query := `
		SELECT assessment_id, position, invoice_id, score, risk_level, category, model_version, abstentions, amount_impact
		FROM invoice_verdicts
		WHERE tenant_id = $1 AND invoice_id = $2
		ORDER BY scored_at DESC, assessment_id
		LIMIT 1
	`

	var (
		assessmentID uuid.UUID
		position     int
	)
	v, err := scanVerdict(r.pool.QueryRow(ctx, query, tenantID, invoiceID), &assessmentID, &position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	signals, err := r.loadSignals(ctx, assessmentID, &position)
	if err != nil {
		return nil, err
	}
	v.Signals = signals[position]
	if v.Signals == nil {
		v.Signals = []model.SignalScore{}
	}

	return &v, nil
}

func (r *AssessmentRepository) loadVerdicts(ctx context.Context, assessmentID uuid.UUID) ([]model.AnomalyVerdict, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT assessment_id, position, invoice_id, score, risk_level, category, model_version, abstentions, amount_impact
		FROM invoice_verdicts
		WHERE assessment_id = $1
		ORDER BY position`,
		assessmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []model.AnomalyVerdict
	for rows.Next() {
		var (
			aid uuid.UUID
			pos int
		)
		v, err := scanVerdict(rows, &aid, &pos)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate verdicts: %w", err)
	}

	signals, err := r.loadSignals(ctx, assessmentID, nil)
	if err != nil {
		return nil, err
	}
	for i := range verdicts {
		verdicts[i].Signals = signals[i]
		if verdicts[i].Signals == nil {
			verdicts[i].Signals = []model.SignalScore{}
		}
	}

	return verdicts, nil
}

// loadSignals returns signals keyed by verdict position, each list in rank order.
// A nil position loads the signals of every verdict in the assessment.
func (r *AssessmentRepository) loadSignals(ctx context.Context, assessmentID uuid.UUID, position *int) (map[int][]model.SignalScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT position, source, code, value, reason
		FROM verdict_signals
		WHERE assessment_id = $1 AND ($2::INTEGER IS NULL OR position = $2)
		ORDER BY position, rank`,
		assessmentID, position,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	signals := make(map[int][]model.SignalScore)
	for rows.Next() {
		var (
			pos    int
			source string
			code   string
			s      model.SignalScore
		)
		if err := rows.Scan(&pos, &source, &code, &s.Value, &s.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if s.Source, err = valueobject.ParseSignalSource(source); err != nil {
			return nil, fmt.Errorf("failed to parse signal source: %w", err)
		}
		s.Code = model.SignalCode(code)
		signals[pos] = append(signals[pos], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signals: %w", err)
	}

	return signals, nil
}

func scanVerdict(row pgx.Row, assessmentID *uuid.UUID, position *int) (model.AnomalyVerdict, error) {
	var (
		v         model.AnomalyVerdict
		riskLevel string
		category  string
	)
	err := row.Scan(
		assessmentID, position, &v.InvoiceID, &v.Score,
		&riskLevel, &category, &v.ModelVersion, &v.Abstentions, &v.AmountImpact,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, err
		}
		return v, fmt.Errorf("failed to scan verdict: %w", err)
	}

	if v.RiskLevel, err = valueobject.RiskLevelFromString(riskLevel); err != nil {
		return v, fmt.Errorf("failed to parse risk level: %w", err)
	}
	v.Category = valueobject.AnomalyCategory(category)
	if len(v.Abstentions) == 0 {
		v.Abstentions = nil
	}

	return v, nil
}

// duplicateOnly keeps the multi-member groups; singletons are implied by the verdicts.
func duplicateOnly(groups []model.DuplicateGroup) []model.DuplicateGroup {
	out := make([]model.DuplicateGroup, 0)
	for _, g := range groups {
		if g.IsDuplicate() {
			out = append(out, g)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
