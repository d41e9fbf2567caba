package service

import (
	"context"
	"strings"
	"time"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/platform/metrics"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// ── Reads ────────────────────────────────────────────────────────────────────

// Get returns a report with its attendees and activity markers.
func (s *ReportWorkflowService) Get(ctx context.Context, id string) (*repository.Report, error) {
	var report *repository.Report
	err := s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		var err error
		report, err = store.GetByID(ctx, id)
		return err
	})
	return report, err
}

// PendingApproval lists reports whose current step personID may act on.
func (s *ReportWorkflowService) PendingApproval(ctx context.Context, personID string) ([]repository.Report, error) {
	pos, err := s.directory.PositionOf(ctx, personID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve position")
	}
	if pos == nil {
		return []repository.Report{}, nil
	}

	var reports []repository.Report
	err = s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		var err error
		reports, err = store.ListPendingForPosition(ctx, pos.ID)
		return err
	})
	return reports, err
}

// ListQuery selects a page of reports. Mine and MyOrg are relative to the
// viewer; CreatedToday and ReleasedToday start at the current UTC day.
type ListQuery struct {
	Filter        repository.ReportFilter
	Mine          bool
	MyOrg         bool
	CreatedToday  bool
	ReleasedToday bool
	Page          int
	PageSize      int
}

// ReportPage is one page of List results.
type ReportPage struct {
	Reports  []repository.Report `json:"reports"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// List returns a page of reports, newest first.
func (s *ReportWorkflowService) List(ctx context.Context, viewerID string, q ListQuery) (*ReportPage, error) {
	page, pageSize := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	out := &ReportPage{Reports: []repository.Report{}, Page: page, PageSize: pageSize}

	filter := q.Filter
	filter.Text = strings.TrimSpace(filter.Text)
	switch filter.State {
	case "", repository.StateDraft, repository.StatePendingApproval, repository.StateRejected, repository.StateReleased:
	default:
		return nil, errors.InvalidInput("state", "unknown report state "+string(filter.State))
	}
	if q.Mine {
		filter.AuthorID = viewerID
	}
	if q.MyOrg {
		org, err := s.directory.OrganizationOf(ctx, viewerID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve organization")
		}
		if org == nil {
			return out, nil
		}
		filter.OrgID = org.ID
	}
	if q.CreatedToday || q.ReleasedToday {
		today := s.now().UTC().Truncate(24 * time.Hour)
		if q.CreatedToday {
			filter.CreatedSince = &today
		}
		if q.ReleasedToday {
			filter.ReleasedSince = &today
		}
	}

	err := s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		var err error
		out.Reports, out.Total, err = store.List(ctx, filter, pageSize, (page-1)*pageSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApprovalHistory returns the approval actions recorded on a report, oldest first.
func (s *ReportWorkflowService) ApprovalHistory(ctx context.Context, reportID string) ([]repository.ApprovalAction, error) {
	var actions []repository.ApprovalAction
	err := s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		if err := requireReport(ctx, store, reportID); err != nil {
			return err
		}
		var err error
		actions, err = store.ListApprovalActions(ctx, reportID)
		return err
	})
	return actions, err
}

// Comments returns a report's comments, oldest first.
func (s *ReportWorkflowService) Comments(ctx context.Context, reportID string) ([]repository.Comment, error) {
	var comments []repository.Comment
	err := s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		if err := requireReport(ctx, store, reportID); err != nil {
			return err
		}
		var err error
		comments, err = store.ListComments(ctx, reportID)
		return err
	})
	return comments, err
}

// ── Comments ─────────────────────────────────────────────────────────────────

// AddComment appends a comment and tells the report author about it, unless
// the author wrote it.
func (s *ReportWorkflowService) AddComment(ctx context.Context, reportID, authorID, text string) (_ *repository.Comment, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("comment", start, err) }(time.Now())

	if strings.TrimSpace(text) == "" {
		return nil, errors.InvalidInput("text", "comment text is required")
	}

	var (
		report  *repository.Report
		comment *repository.Comment
	)
	err = s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		var err error
		if report, err = store.GetByID(ctx, reportID); err != nil {
			return err
		}
		comment, err = store.AppendComment(ctx, repository.Comment{
			ReportID: reportID,
			AuthorID: authorID,
			Text:     text,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("report_id", reportID).
		Str("comment_id", comment.ID).
		Str("author_id", authorID).
		Msg("Comment added")

	if report.AuthorID != authorID {
		s.notifyAuthor(ctx, NotifyNewComment, *report, authorID, map[string]interface{}{
			"comment_id": comment.ID,
			"text":       text,
		})
	}
	return comment, nil
}

// ── Share ────────────────────────────────────────────────────────────────────

// Share emails a report to recipientIDs on senderID's behalf. Nothing is
// persisted.
func (s *ReportWorkflowService) Share(ctx context.Context, reportID, senderID string, recipientIDs []string, message string) (err error) {
	defer func(start time.Time) { metrics.ObserveOperation("share", start, err) }(time.Now())

	recipientIDs = dedupeIDs(recipientIDs)
	if len(recipientIDs) == 0 {
		return errors.InvalidInput("recipients", "at least one recipient is required")
	}

	report, err := s.Get(ctx, reportID)
	if err != nil {
		return err
	}

	recipients := make([]repository.Person, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		p, err := s.directory.GetPerson(ctx, id)
		if err != nil {
			return err
		}
		recipients = append(recipients, *p)
	}

	s.log.Info().
		Str("report_id", reportID).
		Str("sender_id", senderID).
		Int("recipients", len(recipients)).
		Msg("Report shared")

	s.notifier.PublishReportEvent(ctx, NotifyReportShared, report.ID, senderID, recipients, map[string]interface{}{
		"message": message,
		"intent":  report.Intent,
	})
	return nil
}

func requireReport(ctx context.Context, store repository.ReportStore, id string) error {
	ok, err := store.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound("report", id)
	}
	return nil
}
