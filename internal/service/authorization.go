package service

import (
	"context"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// EditOutcome tells the engine how an authorized edit affects workflow state.
type EditOutcome struct {
	// ResetToDraft is set when the author edits a report that is pending
	// approval; the report leaves the chain and must be resubmitted.
	ResetToDraft bool
}

// AuthorizationGate decides who may edit and who may approve a report.
type AuthorizationGate struct {
	chains *ApprovalChainResolver
}

// NewAuthorizationGate creates a new AuthorizationGate.
func NewAuthorizationGate(chains *ApprovalChainResolver) *AuthorizationGate {
	return &AuthorizationGate{chains: chains}
}

// CheckEdit authorizes editorID to edit the persisted report.
//
//	DRAFT, REJECTED   author only
//	PENDING_APPROVAL  author (report resets to DRAFT) or an eligible
//	                  approver of the current step (state unchanged)
//	RELEASED          nobody
func (g *AuthorizationGate) CheckEdit(ctx context.Context, report repository.Report, editorID string) (EditOutcome, error) {
	isAuthor := editorID != "" && editorID == report.AuthorID

	switch report.State {
	case repository.StateDraft, repository.StateRejected:
		if !isAuthor {
			return EditOutcome{}, errors.Forbidden("only the author may edit a draft or rejected report")
		}
		return EditOutcome{}, nil

	case repository.StatePendingApproval:
		if isAuthor {
			return EditOutcome{ResetToDraft: true}, nil
		}
		step, err := g.currentStep(ctx, report)
		if err != nil {
			return EditOutcome{}, err
		}
		ok, err := g.chains.IsEligibleApprover(ctx, editorID, *step)
		if err != nil {
			return EditOutcome{}, err
		}
		if !ok {
			return EditOutcome{}, errors.Forbidden("only the author or a current approver may edit a pending report")
		}
		return EditOutcome{}, nil

	case repository.StateReleased:
		return EditOutcome{}, errors.Forbidden("released reports cannot be edited")
	}
	return EditOutcome{}, errors.Forbidden("unknown report state " + string(report.State))
}

// CheckApprove authorizes actorID to approve or reject the report at its
// current step and returns that step.
func (g *AuthorizationGate) CheckApprove(ctx context.Context, report repository.Report, actorID string) (*repository.ApprovalStep, error) {
	step, err := g.currentStep(ctx, report)
	if err != nil {
		return nil, err
	}
	ok, err := g.chains.IsEligibleApprover(ctx, actorID, *step)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Forbidden("user is not an approver for the current step")
	}
	return step, nil
}

func (g *AuthorizationGate) currentStep(ctx context.Context, report repository.Report) (*repository.ApprovalStep, error) {
	if report.ApprovalStepID == nil {
		return nil, errors.NotFound("approval_step", "report "+report.ID+" has no current step")
	}
	return g.chains.Step(ctx, *report.ApprovalStepID)
}
