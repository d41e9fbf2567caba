package service

import (
	"context"

	"github.com/pesio-ai/be-ops-reports/internal/platform/metrics"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// Notifications run after commit. Recipient lookup failures are logged and
// counted, never returned: the workflow change has already happened.

func (s *ReportWorkflowService) notifyApprovers(ctx context.Context, report repository.Report, step repository.ApprovalStep, actorID string) {
	recipients, err := s.directory.PeopleInPositions(ctx, step.ApproverPositionIDs)
	if err != nil {
		s.notificationFailed(NotifyApprovalNeeded, report.ID, err)
		return
	}
	if len(recipients) == 0 {
		s.log.Warn().
			Str("report_id", report.ID).
			Str("step_id", step.ID).
			Msg("Approval step has no filled positions; nobody notified")
		return
	}

	s.notifier.PublishReportEvent(ctx, NotifyApprovalNeeded, report.ID, actorID, recipients, map[string]interface{}{
		"step_id":   step.ID,
		"step_name": step.Name,
		"intent":    report.Intent,
	})
}

func (s *ReportWorkflowService) notifyAuthor(ctx context.Context, kind string, report repository.Report, actorID string, payload map[string]interface{}) {
	author, err := s.directory.GetPerson(ctx, report.AuthorID)
	if err != nil {
		s.notificationFailed(kind, report.ID, err)
		return
	}

	payload["intent"] = report.Intent
	s.notifier.PublishReportEvent(ctx, kind, report.ID, actorID, []repository.Person{*author}, payload)
}

func (s *ReportWorkflowService) notificationFailed(kind, reportID string, err error) {
	metrics.ObserveNotification(kind, err)
	s.log.Warn().Err(err).
		Str("kind", kind).
		Str("report_id", reportID).
		Msg("Failed to resolve notification recipients")
}
