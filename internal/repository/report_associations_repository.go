package repository

import (
	"context"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// GetAttendees returns a report's attendees in insertion order.
func (r *ReportRepository) GetAttendees(ctx context.Context, reportID string) ([]Attendee, error) {
	query := `
		SELECT person_id, role, is_primary
		FROM report_people
		WHERE report_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.Query(ctx, query, reportID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get attendees")
	}
	defer rows.Close()

	attendees := make([]Attendee, 0)
	for rows.Next() {
		var a Attendee
		var role string
		if err := rows.Scan(&a.PersonID, &role, &a.Primary); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan attendee")
		}
		a.Role = AttendeeRole(role)
		attendees = append(attendees, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get attendees")
	}
	return attendees, nil
}

// AddAttendee links a person to a report.
func (r *ReportRepository) AddAttendee(ctx context.Context, reportID string, a Attendee) error {
	query := `
		INSERT INTO report_people (report_id, person_id, role, is_primary)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.Exec(ctx, query, reportID, a.PersonID, string(a.Role), a.Primary); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to add attendee")
	}
	return nil
}

// UpdateAttendee rewrites an existing attendee's role and primary flag.
func (r *ReportRepository) UpdateAttendee(ctx context.Context, reportID string, a Attendee) error {
	query := `
		UPDATE report_people
		SET role = $3, is_primary = $4
		WHERE report_id = $1 AND person_id = $2
	`

	tag, err := r.db.Exec(ctx, query, reportID, a.PersonID, string(a.Role), a.Primary)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update attendee")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("attendee", a.PersonID)
	}
	return nil
}

// RemoveAttendee unlinks a person from a report.
func (r *ReportRepository) RemoveAttendee(ctx context.Context, reportID, personID string) error {
	query := `DELETE FROM report_people WHERE report_id = $1 AND person_id = $2`

	if _, err := r.db.Exec(ctx, query, reportID, personID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to remove attendee")
	}
	return nil
}

// GetActivityMarkers returns the marker ids associated with a report.
func (r *ReportRepository) GetActivityMarkers(ctx context.Context, reportID string) ([]string, error) {
	query := `
		SELECT marker_id
		FROM report_activity_markers
		WHERE report_id = $1
		ORDER BY marker_id ASC
	`

	rows, err := r.db.Query(ctx, query, reportID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get activity markers")
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan activity marker")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get activity markers")
	}
	return ids, nil
}

// AddActivityMarker associates a marker with a report.
func (r *ReportRepository) AddActivityMarker(ctx context.Context, reportID, markerID string) error {
	query := `
		INSERT INTO report_activity_markers (report_id, marker_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, reportID, markerID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to add activity marker")
	}
	return nil
}

// RemoveActivityMarker drops a marker association.
func (r *ReportRepository) RemoveActivityMarker(ctx context.Context, reportID, markerID string) error {
	query := `DELETE FROM report_activity_markers WHERE report_id = $1 AND marker_id = $2`

	if _, err := r.db.Exec(ctx, query, reportID, markerID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to remove activity marker")
	}
	return nil
}
