package service

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

func strPtr(s string) *string { return &s }

// ── Create ───────────────────────────────────────────────────────────────────

func TestCreate(t *testing.T) {
	h := newHarness(t)

	payload := draftPayload()
	payload.ID = "client-chosen"
	payload.State = repository.StateReleased
	payload.ApprovalStepID = strPtr("a2")

	r, err := h.svc.Create(context.Background(), payload, "alice")
	require.NoError(t, err)

	assert.NotEqual(t, "client-chosen", r.ID)
	assert.Equal(t, repository.StateDraft, r.State)
	assert.Nil(t, r.ApprovalStepID)
	assert.Equal(t, "alice", r.AuthorID)
	assert.Equal(t, int64(1), r.Version)
	require.NotNil(t, r.AdvisorOrgID)
	require.NotNil(t, r.PrincipalOrgID)
	assert.Equal(t, "org-adv", *r.AdvisorOrgID)
	assert.Equal(t, "org-prin", *r.PrincipalOrgID)

	stored := h.db.report(t, r.ID)
	assert.Len(t, stored.Attendees, 2)
	assert.Equal(t, []string{"water"}, stored.ActivityMarkerIDs)
	assert.Empty(t, h.notifier.all())
}

func TestCreateKeepsPayloadAuthor(t *testing.T) {
	h := newHarness(t)

	payload := draftPayload()
	payload.AuthorID = "avery"
	r, err := h.svc.Create(context.Background(), payload, "alice")
	require.NoError(t, err)
	assert.Equal(t, "avery", r.AuthorID)
}

func TestCreateRejectsInvalidAttendees(t *testing.T) {
	tests := []struct {
		name      string
		attendees []repository.Attendee
	}{
		{"two primary advisors", []repository.Attendee{
			{PersonID: "alice", Role: repository.RoleAdvisor, Primary: true},
			{PersonID: "avery", Role: repository.RoleAdvisor, Primary: true},
		}},
		{"repeated person", []repository.Attendee{
			{PersonID: "alice", Role: repository.RoleAdvisor},
			{PersonID: "alice", Role: repository.RolePrincipal},
		}},
		{"blank person", []repository.Attendee{{PersonID: " ", Role: repository.RoleAdvisor}}},
		{"unknown role", []repository.Attendee{{PersonID: "alice", Role: "OBSERVER"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			payload := draftPayload()
			payload.Attendees = tt.attendees
			_, err := h.svc.Create(context.Background(), payload, "alice")
			requireCode(t, err, errors.ErrCodeInvalidInput)
		})
	}
}

func TestCreateWithoutAuthor(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), draftPayload(), "")
	requireCode(t, err, errors.ErrCodeInvalidInput)
}

// ── Submit ───────────────────────────────────────────────────────────────────

func TestSubmitRoutesToAuthorOrgChain(t *testing.T) {
	h := newHarness(t)
	r := h.submitted(t)

	assert.Equal(t, repository.StatePendingApproval, r.State)
	require.NotNil(t, r.ApprovalStepID)
	assert.Equal(t, "a1", *r.ApprovalStepID)
	assert.Equal(t, int64(2), r.Version)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, NotifyApprovalNeeded, sent[0].Kind)
	assert.Equal(t, r.ID, sent[0].ReportID)
	assert.Equal(t, []string{"bob"}, sent[0].Recipients)
	assert.Equal(t, "a1", sent[0].Payload["step_id"])
}

func TestSubmitFallsBackToDefaultChain(t *testing.T) {
	tests := []struct {
		name   string
		author string
		setup  func(h *harness)
	}{
		{"author without organization", "nora", func(*harness) {}},
		{"organization without chain", "alice", func(h *harness) { delete(h.chains.byOrg, "org-adv") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			payload := draftPayload()
			payload.AuthorID = tt.author
			r, err := h.svc.Create(context.Background(), payload, tt.author)
			require.NoError(t, err)

			r, err = h.svc.Submit(context.Background(), r.ID, tt.author)
			require.NoError(t, err)
			require.NotNil(t, r.ApprovalStepID)
			assert.Equal(t, "d1", *r.ApprovalStepID)
		})
	}
}

func TestSubmitWithEmptyDefaultChain(t *testing.T) {
	h := newHarness(t)
	delete(h.chains.byOrg, "org-adv")
	delete(h.chains.byOrg, "org-def")
	r := h.createDraft(t)

	_, err := h.svc.Submit(context.Background(), r.ID, "alice")
	requireCode(t, err, errors.ErrCodeConfiguration)
	assert.Equal(t, repository.StateDraft, h.db.report(t, r.ID).State)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *repository.Report)
		field  string
	}{
		{"missing engagement date", func(r *repository.Report) { r.EngagementDate = nil }, "engagementDate"},
		{"missing primary principal", func(r *repository.Report) { r.Attendees = r.Attendees[:1] }, "principalOrg"},
		{"missing primary advisor", func(r *repository.Report) { r.Attendees = r.Attendees[1:] }, "advisorOrg"},
		{"primary principal without organization", func(r *repository.Report) {
			r.Attendees[1].PersonID = "nora"
		}, "principalOrg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			payload := draftPayload()
			tt.mutate(&payload)
			r, err := h.svc.Create(context.Background(), payload, "alice")
			require.NoError(t, err)

			_, err = h.svc.Submit(context.Background(), r.ID, "alice")
			requireCode(t, err, errors.ErrCodeInvalidInput)

			var e *errors.Error
			require.True(t, stderrors.As(err, &e))
			assert.Equal(t, tt.field, e.Field)

			stored := h.db.report(t, r.ID)
			assert.Equal(t, repository.StateDraft, stored.State)
			assert.Nil(t, stored.ApprovalStepID)
			assert.Empty(t, h.notifier.all())
		})
	}
}

func TestSubmitFillsMissingAttribution(t *testing.T) {
	h := newHarness(t)

	// Primary advisor gets an organization after the draft was created.
	payload := draftPayload()
	payload.Attendees[0].PersonID = "nora"
	r, err := h.svc.Create(context.Background(), payload, "alice")
	require.NoError(t, err)
	require.Nil(t, r.AdvisorOrgID)

	h.dir.orgOf["nora"] = "org-adv"
	r, err = h.svc.Submit(context.Background(), r.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, r.AdvisorOrgID)
	assert.Equal(t, "org-adv", *r.AdvisorOrgID)
}

func TestSubmitRejectsWrongStates(t *testing.T) {
	h := newHarness(t)
	r := h.submitted(t)

	_, err := h.svc.Submit(context.Background(), r.ID, "alice")
	requireCode(t, err, errors.ErrCodeInvalidInput)

	_, err = h.svc.Approve(context.Background(), r.ID, "bob", nil)
	require.NoError(t, err)
	_, err = h.svc.Approve(context.Background(), r.ID, "carol", nil)
	require.NoError(t, err)

	_, err = h.svc.Submit(context.Background(), r.ID, "alice")
	requireCode(t, err, errors.ErrCodeForbidden)
	assert.Equal(t, repository.StateReleased, h.db.report(t, r.ID).State)
}

func TestSubmitUnknownReport(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Submit(context.Background(), "missing", "alice")
	requireCode(t, err, errors.ErrCodeNotFound)
}

// ── Approve ──────────────────────────────────────────────────────────────────

func TestApproveWalksChainToRelease(t *testing.T) {
	h := newHarness(t)
	r := h.submitted(t)

	r, err := h.svc.Approve(context.Background(), r.ID, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, repository.StatePendingApproval, r.State)
	require.NotNil(t, r.ApprovalStepID)
	assert.Equal(t, "a2", *r.ApprovalStepID)

	sent := h.notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, NotifyApprovalNeeded, sent[1].Kind)
	assert.Equal(t, []string{"carol"}, sent[1].Recipients)

	r, err = h.svc.Approve(context.Background(), r.ID, "carol", nil)
	require.NoError(t, err)
	assert.Equal(t, repository.StateReleased, r.State)
	assert.Nil(t, r.ApprovalStepID)
	require.NotNil(t, r.ReleasedAt)
	assert.Equal(t, fixedNow, *r.ReleasedAt)
	assert.Len(t, h.notifier.all(), 2, "release notifies nobody")

	history, err := h.svc.ApprovalHistory(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a1", history[0].StepID)
	assert.Equal(t, "bob", history[0].PersonID)
	assert.Equal(t, "a2", history[1].StepID)
	assert.Equal(t, "carol", history[1].PersonID)
	for _, a := range history {
		assert.Equal(t, repository.ActionApprove, a.Type)
	}

	stored := h.db.report(t, r.ID)
	assert.Equal(t, repository.StateReleased, stored.State)
	assert.Equal(t, int64(4), stored.Version)
}

func TestApproveByIneligiblePerson(t *testing.T) {
	for _, actor := range []string{"carol", "eve", "alice", "nora", ""} {
		t.Run("actor="+actor, func(t *testing.T) {
			h := newHarness(t)
			r := h.submitted(t)

			_, err := h.svc.Approve(context.Background(), r.ID, actor, nil)
			requireCode(t, err, errors.ErrCodeForbidden)

			stored := h.db.report(t, r.ID)
			assert.Equal(t, "a1", *stored.ApprovalStepID)
			assert.Empty(t, h.db.actions())
		})
	}
}

func TestApproveWithoutCurrentStep(t *testing.T) {
	h := newHarness(t)
	r := h.createDraft(t)

	_, err := h.svc.Approve(context.Background(), r.ID, "bob", nil)
	requireCode(t, err, errors.ErrCodeNotFound)

	_, err = h.svc.Reject(context.Background(), r.ID, "bob", "no")
	requireCode(t, err, errors.ErrCodeNotFound)
	assert.Empty(t, h.db.actions())
}

func TestApproveComment(t *testing.T) {
	h := newHarness(t)
	r := h.submitted(t)

	_, err := h.svc.Approve(context.Background(), r.ID, "bob", strPtr("   "))
	require.NoError(t, err)
	assert.Empty(t, h.db.comments())

	_, err = h.svc.Approve(context.Background(), r.ID, "carol", strPtr("Looks good"))
	require.NoError(t, err)
	comments := h.db.comments()
	require.Len(t, comments, 1)
	assert.Equal(t, "carol", comments[0].AuthorID)
	assert.Equal(t, "Looks good", comments[0].Text)
}

func TestApproveLostUpdate(t *testing.T) {
	tests := []struct {
		name  string
		race  func(s *memState, id string)
		code  errors.Code
		retry bool
	}{
		{"concurrent writer", func(s *memState, id string) {
			r := s.reports[id]
			r.Version++
			s.reports[id] = r
		}, errors.ErrCodeConflict, true},
		{"report deleted", func(s *memState, id string) {
			delete(s.reports, id)
		}, errors.ErrCodeInvalidInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			r := h.submitted(t)
			h.db.beforeUpdate = tt.race

			_, err := h.svc.Approve(context.Background(), r.ID, "bob", strPtr("ok"))
			requireCode(t, err, tt.code)

			var e *errors.Error
			require.True(t, stderrors.As(err, &e))
			assert.Equal(t, tt.retry, e.Retryable())

			// The whole transaction rolled back.
			h.db.beforeUpdate = nil
			stored := h.db.report(t, r.ID)
			assert.Equal(t, "a1", *stored.ApprovalStepID)
			assert.Empty(t, h.db.actions())
			assert.Empty(t, h.db.comments())
			assert.Len(t, h.notifier.all(), 1)
		})
	}
}

// ── Reject ───────────────────────────────────────────────────────────────────

func TestRejectRequiresReason(t *testing.T) {
	h := newHarness(t)
	r := h.submitted(t)

	_, err := h.svc.Reject(context.Background(), r.ID, "bob", "  ")
	requireCode(t, err, errors.ErrCodeInvalidInput)

	stored := h.db.report(t, r.ID)
	assert.Equal(t, repository.StatePendingApproval, stored.State)
	assert.Empty(t, h.db.actions())
	assert.Empty(t, h.db.comments())
}

func TestRejectReturnsReportToAuthor(t *testing.T) {
	h := newHarness(t)
	r := h.submitted(t)

	r, err := h.svc.Reject(context.Background(), r.ID, "bob", "Needs principal quotes")
	require.NoError(t, err)
	assert.Equal(t, repository.StateRejected, r.State)
	assert.Nil(t, r.ApprovalStepID)

	actions := h.db.actions()
	require.Len(t, actions, 1)
	assert.Equal(t, repository.ActionReject, actions[0].Type)
	assert.Equal(t, "a1", actions[0].StepID)

	comments := h.db.comments()
	require.Len(t, comments, 1)
	assert.Equal(t, "Needs principal quotes", comments[0].Text)
	assert.Equal(t, "bob", comments[0].AuthorID)

	sent := h.notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, NotifyReportRejected, sent[1].Kind)
	assert.Equal(t, []string{"alice"}, sent[1].Recipients)
	assert.Equal(t, "Needs principal quotes", sent[1].Payload["reason"])

	// Resubmission starts the chain over.
	r, err = h.svc.Submit(context.Background(), r.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a1", *r.ApprovalStepID)
}

func TestRejectByIneligiblePerson(t *testing.T) {
	h := newHarness(t)
	r := h.submitted(t)

	_, err := h.svc.Reject(context.Background(), r.ID, "carol", "wrong step")
	requireCode(t, err, errors.ErrCodeForbidden)
	assert.Empty(t, h.db.comments())
}

// ── Notifications ────────────────────────────────────────────────────────────

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	h := newHarness(t)
	h.dir.peopleErr = stderrors.New("directory offline")

	r := h.submitted(t)
	assert.Equal(t, repository.StatePendingApproval, r.State)
	assert.Empty(t, h.notifier.all())
}

func TestUnfilledApproverPositionsNotifyNobody(t *testing.T) {
	h := newHarness(t)
	delete(h.dir.positionOf, "bob")

	r := h.submitted(t)
	assert.Equal(t, "a1", *r.ApprovalStepID)
	assert.Empty(t, h.notifier.all())
}
