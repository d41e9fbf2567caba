package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// ApprovalChainRepository reads and replaces organization approval chains.
type ApprovalChainRepository struct {
	db database.Querier
}

// NewApprovalChainRepository creates a new ApprovalChainRepository.
func NewApprovalChainRepository(db database.Querier) *ApprovalChainRepository {
	return &ApprovalChainRepository{db: db}
}

const stepSelect = `
	SELECT s.id, s.organization_id, s.name, s.step_order, s.next_step_id,
	       COALESCE(array_agg(a.position_id ORDER BY a.position_id)
	                FILTER (WHERE a.position_id IS NOT NULL), '{}') AS approvers
	FROM approval_steps s
	LEFT JOIN approvers a ON a.approval_step_id = s.id`

// ChainFor returns an organization's steps in order. An organization with no
// configured chain yields an empty slice and no error.
func (r *ApprovalChainRepository) ChainFor(ctx context.Context, orgID string) ([]ApprovalStep, error) {
	query := stepSelect + `
		WHERE s.organization_id = $1
		GROUP BY s.id
		ORDER BY s.step_order ASC
	`

	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval chain")
	}
	defer rows.Close()

	steps := make([]ApprovalStep, 0)
	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step")
		}
		steps = append(steps, *step)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval chain")
	}
	return steps, nil
}

// GetStep retrieves a single approval step with its approver positions.
func (r *ApprovalChainRepository) GetStep(ctx context.Context, id string) (*ApprovalStep, error) {
	query := stepSelect + `
		WHERE s.id = $1
		GROUP BY s.id
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_step", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval step")
	}
	return step, nil
}

// ReplaceChain makes steps the organization's chain, in slice order. Steps
// keep their ids when given so reports pending on them stay valid; steps
// no longer listed are deleted. Run it inside a transaction.
func (r *ApprovalChainRepository) ReplaceChain(ctx context.Context, orgID string, steps []ApprovalStep) ([]ApprovalStep, error) {
	out := make([]ApprovalStep, len(steps))
	ids := make([]string, len(steps))
	for i, step := range steps {
		step.OrganizationID = orgID
		step.Order = i + 1
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.NextStepID = nil
		out[i] = step
		ids[i] = step.ID
	}
	for i := 0; i+1 < len(out); i++ {
		next := out[i+1].ID
		out[i].NextStepID = &next
	}

	// Unlink first so deletes and re-linking never trip the next_step_id FK.
	if _, err := r.db.Exec(ctx, `UPDATE approval_steps SET next_step_id = NULL WHERE organization_id = $1`, orgID); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unlink approval steps")
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM approval_steps WHERE organization_id = $1 AND NOT (id = ANY($2))`, orgID, ids); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConflict, "failed to remove approval steps still in use")
	}

	upsert := `
		INSERT INTO approval_steps (id, organization_id, name, step_order)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET organization_id = EXCLUDED.organization_id,
		    name            = EXCLUDED.name,
		    step_order      = EXCLUDED.step_order
	`
	for _, step := range out {
		if _, err := r.db.Exec(ctx, upsert, step.ID, step.OrganizationID, step.Name, step.Order); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to write approval step")
		}
		if _, err := r.db.Exec(ctx, `DELETE FROM approvers WHERE approval_step_id = $1`, step.ID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to clear approvers")
		}
		for _, positionID := range step.ApproverPositionIDs {
			if _, err := r.db.Exec(ctx,
				`INSERT INTO approvers (approval_step_id, position_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				step.ID, positionID,
			); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to add approver")
			}
		}
	}
	for _, step := range out {
		if _, err := r.db.Exec(ctx, `UPDATE approval_steps SET next_step_id = $2 WHERE id = $1`, step.ID, step.NextStepID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to link approval steps")
		}
	}

	return out, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type stepScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalChainRepository) scanStep(row stepScanner) (*ApprovalStep, error) {
	s := &ApprovalStep{}
	err := row.Scan(
		&s.ID,
		&s.OrganizationID,
		&s.Name,
		&s.Order,
		&s.NextStepID,
		&s.ApproverPositionIDs,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
