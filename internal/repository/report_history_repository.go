package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// AppendApprovalAction inserts one approval audit record. The table has no
// update or delete path; this is its only mutation.
func (r *ReportRepository) AppendApprovalAction(ctx context.Context, a ApprovalAction) (*ApprovalAction, error) {
	out := a
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	query := `
		INSERT INTO approval_actions (id, report_id, step_id, person_id, action_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		out.ID,
		out.ReportID,
		out.StepID,
		out.PersonID,
		string(out.Type),
	).Scan(&out.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to append approval action")
	}
	return &out, nil
}

// AppendComment inserts one comment.
func (r *ReportRepository) AppendComment(ctx context.Context, c Comment) (*Comment, error) {
	out := c
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	query := `
		INSERT INTO comments (id, report_id, author_id, comment_text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query, out.ID, out.ReportID, out.AuthorID, out.Text).Scan(&out.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to append comment")
	}
	return &out, nil
}

// ListApprovalActions returns the approval trail for a report, oldest first.
func (r *ReportRepository) ListApprovalActions(ctx context.Context, reportID string) ([]ApprovalAction, error) {
	query := `
		SELECT id, report_id, step_id, person_id, action_type, created_at
		FROM approval_actions
		WHERE report_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, reportID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval actions")
	}
	defer rows.Close()

	actions := make([]ApprovalAction, 0)
	for rows.Next() {
		var a ApprovalAction
		var actionType string
		if err := rows.Scan(&a.ID, &a.ReportID, &a.StepID, &a.PersonID, &actionType, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval action")
		}
		a.Type = ApprovalActionType(actionType)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval actions")
	}
	return actions, nil
}

// ListComments returns a report's comments, oldest first.
func (r *ReportRepository) ListComments(ctx context.Context, reportID string) ([]Comment, error) {
	query := `
		SELECT id, report_id, author_id, comment_text, created_at
		FROM comments
		WHERE report_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, reportID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get comments")
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ReportID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan comment")
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get comments")
	}
	return comments, nil
}
