package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ops-reports/internal/platform/database"
	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// ReportRepository implements ReportStore on Postgres. It runs against
// whatever Querier it is given, so inside Store.InTransaction every call
// shares one transaction.
type ReportRepository struct {
	db database.Querier
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db database.Querier) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `
	id, state, approval_step_id, author_id,
	advisor_org_id, principal_org_id, engagement_date,
	intent, report_text, next_steps, atmosphere,
	version, created_at, updated_at, released_at`

// Insert creates a report with its attendees and activity markers.
func (r *ReportRepository) Insert(ctx context.Context, report Report) (*Report, error) {
	out := report.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	out.Version = 1

	query := `
		INSERT INTO reports
		    (id, state, approval_step_id, author_id,
		     advisor_org_id, principal_org_id, engagement_date,
		     intent, report_text, next_steps, atmosphere, version)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7,
		        $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		out.ID,
		string(out.State),
		out.ApprovalStepID,
		out.AuthorID,
		out.AdvisorOrgID,
		out.PrincipalOrgID,
		out.EngagementDate,
		out.Intent,
		out.Text,
		out.NextSteps,
		out.Atmosphere,
		out.Version,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create report")
	}

	for _, a := range out.Attendees {
		if err := r.AddAttendee(ctx, out.ID, a); err != nil {
			return nil, err
		}
	}
	for _, markerID := range out.ActivityMarkerIDs {
		if err := r.AddActivityMarker(ctx, out.ID, markerID); err != nil {
			return nil, err
		}
	}

	return &out, nil
}

// GetByID retrieves a report with its attendees and activity markers.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	report, err := r.scanReport(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("report", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get report")
	}

	if report.Attendees, err = r.GetAttendees(ctx, id); err != nil {
		return nil, err
	}
	if report.ActivityMarkerIDs, err = r.GetActivityMarkers(ctx, id); err != nil {
		return nil, err
	}
	return report, nil
}

// Exists reports whether a report row is present.
func (r *ReportRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check report")
	}
	return exists, nil
}

// Update writes the mutable report columns, conditioned on the stored
// version, and bumps the version. Associations are written separately.
func (r *ReportRepository) Update(ctx context.Context, report Report, expectedVersion int64) (int64, error) {
	var releasedAt *time.Time
	if report.State == StateReleased {
		releasedAt = report.ReleasedAt
		if releasedAt == nil {
			now := time.Now().UTC()
			releasedAt = &now
		}
	}

	query := `
		UPDATE reports
		SET state            = $3,
		    approval_step_id = $4,
		    advisor_org_id   = $5,
		    principal_org_id = $6,
		    engagement_date  = $7,
		    intent           = $8,
		    report_text      = $9,
		    next_steps       = $10,
		    atmosphere       = $11,
		    released_at      = $12,
		    version          = version + 1,
		    updated_at       = NOW()
		WHERE id = $1 AND version = $2
	`

	tag, err := r.db.Exec(ctx, query,
		report.ID,
		expectedVersion,
		string(report.State),
		report.ApprovalStepID,
		report.AdvisorOrgID,
		report.PrincipalOrgID,
		report.EngagementDate,
		report.Intent,
		report.Text,
		report.NextSteps,
		report.Atmosphere,
		releasedAt,
	)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to update report")
	}
	return tag.RowsAffected(), nil
}

// ListPendingForPosition returns pending reports whose current step lists
// the position as an approver. Associations are not loaded.
func (r *ReportRepository) ListPendingForPosition(ctx context.Context, positionID string) ([]Report, error) {
	query := `
		SELECT r.id, r.state, r.approval_step_id, r.author_id,
		       r.advisor_org_id, r.principal_org_id, r.engagement_date,
		       r.intent, r.report_text, r.next_steps, r.atmosphere,
		       r.version, r.created_at, r.updated_at, r.released_at
		FROM reports r
		JOIN approvers a ON a.approval_step_id = r.approval_step_id
		WHERE r.state = 'PENDING_APPROVAL'
		  AND a.position_id = $1
		ORDER BY r.updated_at DESC
	`

	rows, err := r.db.Query(ctx, query, positionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending reports")
	}
	defer rows.Close()

	reports := make([]Report, 0)
	for rows.Next() {
		report, err := r.scanReport(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan report")
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending reports")
	}
	return reports, nil
}

// List returns one page of reports matching filter, newest first, along
// with the total match count. Associations are not loaded.
func (r *ReportRepository) List(ctx context.Context, filter ReportFilter, limit, offset int) ([]Report, int64, error) {
	where := ` WHERE TRUE`
	args := []interface{}{}
	argCount := 1

	if filter.AuthorID != "" {
		where += fmt.Sprintf(" AND author_id = $%d", argCount)
		args = append(args, filter.AuthorID)
		argCount++
	}
	if filter.State != "" {
		where += fmt.Sprintf(" AND state = $%d", argCount)
		args = append(args, string(filter.State))
		argCount++
	}
	if filter.OrgID != "" {
		where += fmt.Sprintf(" AND (advisor_org_id = $%d OR principal_org_id = $%d)", argCount, argCount)
		args = append(args, filter.OrgID)
		argCount++
	}
	if filter.Text != "" {
		where += fmt.Sprintf(" AND (intent ILIKE $%d OR report_text ILIKE $%d OR next_steps ILIKE $%d)", argCount, argCount, argCount)
		args = append(args, "%"+filter.Text+"%")
		argCount++
	}
	if filter.CreatedSince != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.CreatedSince)
		argCount++
	}
	if filter.ReleasedSince != nil {
		where += fmt.Sprintf(" AND released_at >= $%d", argCount)
		args = append(args, *filter.ReleasedSince)
		argCount++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count reports")
	}

	query := `SELECT ` + reportColumns + ` FROM reports` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argCount, argCount+1)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list reports")
	}
	defer rows.Close()

	reports := make([]Report, 0)
	for rows.Next() {
		report, err := r.scanReport(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan report")
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list reports")
	}
	return reports, total, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type reportScanner interface {
	Scan(dest ...any) error
}

func (r *ReportRepository) scanReport(row reportScanner) (*Report, error) {
	report := &Report{}
	var state string
	err := row.Scan(
		&report.ID,
		&state,
		&report.ApprovalStepID,
		&report.AuthorID,
		&report.AdvisorOrgID,
		&report.PrincipalOrgID,
		&report.EngagementDate,
		&report.Intent,
		&report.Text,
		&report.NextSteps,
		&report.Atmosphere,
		&report.Version,
		&report.CreatedAt,
		&report.UpdatedAt,
		&report.ReleasedAt,
	)
	if err != nil {
		return nil, err
	}
	report.State = ReportState(state)
	return report, nil
}
