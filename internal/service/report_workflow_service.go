package service

import (
	"context"
	"strings"
	"time"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/platform/logger"
	"github.com/pesio-ai/be-ops-reports/internal/platform/metrics"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// ReportWorkflowService is the report workflow engine. Every operation runs
// in a single store transaction; notifications are dispatched only after
// that transaction commits.
type ReportWorkflowService struct {
	uow       UnitOfWork
	chains    *ApprovalChainResolver
	gate      *AuthorizationGate
	orgs      *OrgAttributionResolver
	directory DirectoryLookup
	notifier  NotificationDispatcher
	log       *logger.Logger
	now       func() time.Time
}

// NewReportWorkflowService creates a new ReportWorkflowService.
func NewReportWorkflowService(
	uow UnitOfWork,
	chains *ApprovalChainResolver,
	directory DirectoryLookup,
	notifier NotificationDispatcher,
	log *logger.Logger,
) *ReportWorkflowService {
	return &ReportWorkflowService{
		uow:       uow,
		chains:    chains,
		gate:      NewAuthorizationGate(chains),
		orgs:      NewOrgAttributionResolver(directory),
		directory: directory,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// ── Create ───────────────────────────────────────────────────────────────────

// Create persists payload as a new DRAFT report. The author defaults to
// authorID when the payload names none.
func (s *ReportWorkflowService) Create(ctx context.Context, payload repository.Report, authorID string) (_ *repository.Report, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("create", start, err) }(time.Now())

	next := payload.Clone()
	next.ID = ""
	next.State = repository.StateDraft
	next.ApprovalStepID = nil
	next.ReleasedAt = nil
	if next.AuthorID == "" {
		next.AuthorID = authorID
	}
	if next.AuthorID == "" {
		return nil, errors.InvalidInput("authorId", "report author is required")
	}

	if next.Attendees, err = normalizeAttendees(next.Attendees); err != nil {
		return nil, err
	}
	next.ActivityMarkerIDs = dedupeIDs(next.ActivityMarkerIDs)

	attribution, err := s.orgs.Attribute(ctx, next, nil)
	if err != nil {
		return nil, err
	}
	next.AdvisorOrgID = attribution.AdvisorOrgID
	next.PrincipalOrgID = attribution.PrincipalOrgID

	var created *repository.Report
	err = s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		var err error
		created, err = store.Insert(ctx, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("report_id", created.ID).
		Str("author_id", created.AuthorID).
		Msg("Report created")
	return created, nil
}

// ── Edit ─────────────────────────────────────────────────────────────────────

// Edit applies payload to the persisted report identified by payload.ID.
// State, current step, author and timestamps are never taken from the
// payload. Nil Attendees or ActivityMarkerIDs leave the associations as
// they are.
func (s *ReportWorkflowService) Edit(ctx context.Context, payload repository.Report, editorID string) (_ *repository.Report, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("edit", start, err) }(time.Now())

	if payload.ID == "" {
		return nil, errors.InvalidInput("id", "report id is required")
	}
	if payload.Attendees != nil {
		if payload.Attendees, err = normalizeAttendees(payload.Attendees); err != nil {
			return nil, err
		}
	}
	if payload.ActivityMarkerIDs != nil {
		payload.ActivityMarkerIDs = dedupeIDs(payload.ActivityMarkerIDs)
	}

	var (
		result  *repository.Report
		outcome EditOutcome
	)
	err = s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		existing, err := store.GetByID(ctx, payload.ID)
		if err != nil {
			return err
		}

		outcome, err = s.gate.CheckEdit(ctx, *existing, editorID)
		if err != nil {
			return err
		}

		next := mergeEdit(payload, *existing, outcome)
		attribution, err := s.orgs.Attribute(ctx, next, existing)
		if err != nil {
			return err
		}
		next.AdvisorOrgID = attribution.AdvisorOrgID
		next.PrincipalOrgID = attribution.PrincipalOrgID

		if err := s.persist(ctx, store, next, existing.Version); err != nil {
			return err
		}
		if err := applyAttendeeChanges(ctx, store, next.ID, ReconcileAttendees(next.Attendees, existing.Attendees)); err != nil {
			return err
		}
		if err := applyMarkerChanges(ctx, store, next.ID, ReconcileActivityMarkers(next.ActivityMarkerIDs, existing.ActivityMarkerIDs)); err != nil {
			return err
		}

		next.Version = existing.Version + 1
		next.UpdatedAt = s.now()
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := s.log.Info().
		Str("report_id", result.ID).
		Str("editor_id", editorID).
		Str("state", string(result.State))
	if outcome.ResetToDraft {
		ev = ev.Bool("reset_to_draft", true)
	}
	ev.Msg("Report edited")
	return result, nil
}

func mergeEdit(payload, existing repository.Report, outcome EditOutcome) repository.Report {
	next := payload.Clone()
	next.ID = existing.ID
	next.State = existing.State
	next.ApprovalStepID = existing.ApprovalStepID
	next.AuthorID = existing.AuthorID
	next.Version = existing.Version
	next.CreatedAt = existing.CreatedAt
	next.ReleasedAt = existing.ReleasedAt
	if payload.Attendees == nil {
		next.Attendees = existing.Clone().Attendees
	}
	if payload.ActivityMarkerIDs == nil {
		next.ActivityMarkerIDs = existing.Clone().ActivityMarkerIDs
	}
	if outcome.ResetToDraft {
		next.State = repository.StateDraft
		next.ApprovalStepID = nil
	}
	return next
}

// ── Submit ───────────────────────────────────────────────────────────────────

// Submit sends a DRAFT or REJECTED report to the first step of its
// approval chain. actorID is recorded in logs only.
func (s *ReportWorkflowService) Submit(ctx context.Context, id, actorID string) (_ *repository.Report, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("submit", start, err) }(time.Now())

	var (
		result  *repository.Report
		first   repository.ApprovalStep
		chainOf string
	)
	err = s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		report, err := store.GetByID(ctx, id)
		if err != nil {
			return err
		}

		switch report.State {
		case repository.StateDraft, repository.StateRejected:
		case repository.StateReleased:
			return errors.Forbidden("released reports cannot be resubmitted")
		default:
			return errors.InvalidInput("state", "report is already pending approval")
		}

		next := report.Clone()
		if err := s.requireSubmittable(ctx, &next); err != nil {
			return err
		}

		chain, orgID, err := s.chains.ResolveSubmissionChain(ctx, report.AuthorID)
		if err != nil {
			return err
		}
		first, chainOf = chain[0], orgID

		next.State = repository.StatePendingApproval
		next.ApprovalStepID = &first.ID
		if err := s.persist(ctx, store, next, report.Version); err != nil {
			return err
		}

		next.Version = report.Version + 1
		next.UpdatedAt = s.now()
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("report_id", result.ID).
		Str("actor_id", actorID).
		Str("chain_org_id", chainOf).
		Str("step_id", first.ID).
		Msg("Report submitted for approval")

	s.notifyApprovers(ctx, *result, first, actorID)
	return result, nil
}

// requireSubmittable checks the engagement date and both primary attendees
// and fills in any organization attribution still missing.
func (s *ReportWorkflowService) requireSubmittable(ctx context.Context, r *repository.Report) error {
	if r.EngagementDate == nil {
		return errors.InvalidInput("engagementDate", "missing engagement date")
	}

	for _, role := range []repository.AttendeeRole{repository.RoleAdvisor, repository.RolePrincipal} {
		field := "advisorOrg"
		orgID := &r.AdvisorOrgID
		if role == repository.RolePrincipal {
			field = "principalOrg"
			orgID = &r.PrincipalOrgID
		}

		primary := r.PrimaryAttendee(role)
		if primary == nil {
			return errors.InvalidInput(field, "missing primary "+strings.ToLower(string(role)))
		}
		if *orgID != nil {
			continue
		}
		resolved, err := s.orgs.OrganizationID(ctx, primary.PersonID)
		if err != nil {
			return err
		}
		if resolved == nil {
			return errors.InvalidInput(field, "primary "+strings.ToLower(string(role))+" has no organization")
		}
		*orgID = resolved
	}
	return nil
}

// ── Approve ──────────────────────────────────────────────────────────────────

// Approve records approverID's approval of the current step and advances the
// report to the next step, or releases it after the last one. A non-blank
// comment is appended to the report.
func (s *ReportWorkflowService) Approve(ctx context.Context, id, approverID string, comment *string) (_ *repository.Report, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("approve", start, err) }(time.Now())

	var (
		result *repository.Report
		acted  *repository.ApprovalStep
		next   *repository.ApprovalStep
	)
	err = s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		report, err := store.GetByID(ctx, id)
		if err != nil {
			return err
		}

		acted, err = s.gate.CheckApprove(ctx, *report, approverID)
		if err != nil {
			return err
		}

		if _, err := store.AppendApprovalAction(ctx, repository.ApprovalAction{
			ReportID: report.ID,
			StepID:   acted.ID,
			PersonID: approverID,
			Type:     repository.ActionApprove,
		}); err != nil {
			return err
		}

		updated := report.Clone()
		if acted.NextStepID == nil {
			now := s.now()
			updated.State = repository.StateReleased
			updated.ApprovalStepID = nil
			updated.ReleasedAt = &now
		} else {
			next, err = s.chains.Step(ctx, *acted.NextStepID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to load next approval step")
			}
			updated.ApprovalStepID = &next.ID
		}

		if err := s.persist(ctx, store, updated, report.Version); err != nil {
			return err
		}

		if comment != nil && strings.TrimSpace(*comment) != "" {
			if _, err := store.AppendComment(ctx, repository.Comment{
				ReportID: report.ID,
				AuthorID: approverID,
				Text:     *comment,
			}); err != nil {
				return err
			}
		}

		updated.Version = report.Version + 1
		updated.UpdatedAt = s.now()
		result = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("report_id", result.ID).
		Str("approver_id", approverID).
		Str("step_id", acted.ID).
		Str("state", string(result.State)).
		Msg("Report step approved")

	if next != nil {
		s.notifyApprovers(ctx, *result, *next, approverID)
	}
	return result, nil
}

// ── Reject ───────────────────────────────────────────────────────────────────

// Reject returns the report to its author. reason is required and is
// recorded as a comment.
func (s *ReportWorkflowService) Reject(ctx context.Context, id, approverID, reason string) (_ *repository.Report, err error) {
	defer func(start time.Time) { metrics.ObserveOperation("reject", start, err) }(time.Now())

	var (
		result *repository.Report
		acted  *repository.ApprovalStep
	)
	err = s.uow.InTransaction(ctx, func(store repository.ReportStore) error {
		report, err := store.GetByID(ctx, id)
		if err != nil {
			return err
		}

		acted, err = s.gate.CheckApprove(ctx, *report, approverID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(reason) == "" {
			return errors.InvalidInput("reason", "a rejection reason is required")
		}

		if _, err := store.AppendApprovalAction(ctx, repository.ApprovalAction{
			ReportID: report.ID,
			StepID:   acted.ID,
			PersonID: approverID,
			Type:     repository.ActionReject,
		}); err != nil {
			return err
		}

		updated := report.Clone()
		updated.State = repository.StateRejected
		updated.ApprovalStepID = nil
		if err := s.persist(ctx, store, updated, report.Version); err != nil {
			return err
		}

		if _, err := store.AppendComment(ctx, repository.Comment{
			ReportID: report.ID,
			AuthorID: approverID,
			Text:     reason,
		}); err != nil {
			return err
		}

		updated.Version = report.Version + 1
		updated.UpdatedAt = s.now()
		result = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("report_id", result.ID).
		Str("approver_id", approverID).
		Str("step_id", acted.ID).
		Msg("Report rejected")

	s.notifyAuthor(ctx, NotifyReportRejected, *result, approverID, map[string]interface{}{
		"reason":  reason,
		"step_id": acted.ID,
	})
	return result, nil
}

// ── shared helpers ───────────────────────────────────────────────────────────

// persist writes r guarded by expectedVersion. Zero affected rows means the
// report vanished (InvalidInput) or a concurrent writer won (Conflict).
func (s *ReportWorkflowService) persist(ctx context.Context, store repository.ReportStore, r repository.Report, expectedVersion int64) error {
	rows, err := store.Update(ctx, r, expectedVersion)
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	exists, err := store.Exists(ctx, r.ID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.InvalidInput("id", "no records updated")
	}
	return errors.Conflict("report " + r.ID + " was modified concurrently")
}

// applyAttendeeChanges writes every updated attendee as non-primary before
// setting any primary flag, so at most one primary per role exists after
// every statement even when people swap or move primary roles.
func applyAttendeeChanges(ctx context.Context, store repository.ReportStore, reportID string, c AttendeeChanges) error {
	for _, a := range c.Remove {
		if err := store.RemoveAttendee(ctx, reportID, a.PersonID); err != nil {
			return err
		}
	}
	for _, a := range c.Update {
		demoted := a
		demoted.Primary = false
		if err := store.UpdateAttendee(ctx, reportID, demoted); err != nil {
			return err
		}
	}
	for _, a := range c.Update {
		if !a.Primary {
			continue
		}
		if err := store.UpdateAttendee(ctx, reportID, a); err != nil {
			return err
		}
	}
	for _, a := range c.Add {
		if err := store.AddAttendee(ctx, reportID, a); err != nil {
			return err
		}
	}
	return nil
}

func applyMarkerChanges(ctx context.Context, store repository.ReportStore, reportID string, c MarkerChanges) error {
	for _, id := range c.Remove {
		if err := store.RemoveActivityMarker(ctx, reportID, id); err != nil {
			return err
		}
	}
	for _, id := range c.Add {
		if err := store.AddActivityMarker(ctx, reportID, id); err != nil {
			return err
		}
	}
	return nil
}

// normalizeAttendees defaults an empty role to OTHER and rejects blank ids,
// unknown roles, repeated people and more than one primary per role.
func normalizeAttendees(in []repository.Attendee) ([]repository.Attendee, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]repository.Attendee, 0, len(in))
	seen := make(map[string]bool, len(in))
	primaries := make(map[repository.AttendeeRole]bool, 2)

	for _, a := range in {
		a.PersonID = strings.TrimSpace(a.PersonID)
		if a.PersonID == "" {
			return nil, errors.InvalidInput("attendees", "attendee person id is required")
		}
		switch a.Role {
		case "":
			a.Role = repository.RoleOther
		case repository.RoleAdvisor, repository.RolePrincipal, repository.RoleOther:
		default:
			return nil, errors.InvalidInput("attendees", "unknown attendee role "+string(a.Role))
		}
		if seen[a.PersonID] {
			return nil, errors.InvalidInput("attendees", "attendee listed more than once: "+a.PersonID)
		}
		seen[a.PersonID] = true
		if a.Primary {
			if primaries[a.Role] {
				return nil, errors.InvalidInput("attendees", "more than one primary "+strings.ToLower(string(a.Role)))
			}
			primaries[a.Role] = true
		}
		out = append(out, a)
	}
	return out, nil
}

func dedupeIDs(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
