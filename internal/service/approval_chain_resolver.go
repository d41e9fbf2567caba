package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// ApprovalChainResolver picks the chain a report is routed through and
// answers whether a person may act on a step.
type ApprovalChainResolver struct {
	store        ApprovalChainStore
	directory    DirectoryLookup
	defaultOrgID string
}

// NewApprovalChainResolver creates a new ApprovalChainResolver. Reports whose
// author has no organization, or whose organization has no chain, route
// through defaultOrgID's chain.
func NewApprovalChainResolver(store ApprovalChainStore, directory DirectoryLookup, defaultOrgID string) *ApprovalChainResolver {
	return &ApprovalChainResolver{store: store, directory: directory, defaultOrgID: defaultOrgID}
}

// DefaultOrgID is the fallback approval organization.
func (r *ApprovalChainResolver) DefaultOrgID() string {
	return r.defaultOrgID
}

// ResolveChain returns orgID's chain, or the default organization's chain
// when orgID is empty or has none. An empty default chain is a deployment
// error.
func (r *ApprovalChainResolver) ResolveChain(ctx context.Context, orgID string) ([]repository.ApprovalStep, string, error) {
	if orgID != "" && orgID != r.defaultOrgID {
		steps, err := r.store.ChainFor(ctx, orgID)
		if err != nil {
			return nil, "", errors.Wrap(err, errors.ErrCodeInternal, "failed to load approval chain")
		}
		if len(steps) > 0 {
			return steps, orgID, nil
		}
	}

	steps, err := r.store.ChainFor(ctx, r.defaultOrgID)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeInternal, "failed to load default approval chain")
	}
	if len(steps) == 0 {
		return nil, "", errors.Configuration(fmt.Sprintf(
			"default approval organization %s has no approval chain", r.defaultOrgID))
	}
	return steps, r.defaultOrgID, nil
}

// ResolveSubmissionChain routes by the author's organization.
func (r *ApprovalChainResolver) ResolveSubmissionChain(ctx context.Context, authorID string) ([]repository.ApprovalStep, string, error) {
	org, err := r.directory.OrganizationOf(ctx, authorID)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve author organization")
	}
	orgID := ""
	if org != nil {
		orgID = org.ID
	}
	return r.ResolveChain(ctx, orgID)
}

// Verify checks that the default chain is configured. Called at startup.
func (r *ApprovalChainResolver) Verify(ctx context.Context) error {
	if r.defaultOrgID == "" {
		return errors.Configuration("default approval organization is not set")
	}
	_, _, err := r.ResolveChain(ctx, "")
	return err
}

// Step loads a single step.
func (r *ApprovalChainResolver) Step(ctx context.Context, id string) (*repository.ApprovalStep, error) {
	return r.store.GetStep(ctx, id)
}

// IsEligibleApprover reports whether personID currently holds one of the
// step's approver positions. People without a position are never eligible.
func (r *ApprovalChainResolver) IsEligibleApprover(ctx context.Context, personID string, step repository.ApprovalStep) (bool, error) {
	if personID == "" {
		return false, nil
	}
	pos, err := r.directory.PositionOf(ctx, personID)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve approver position")
	}
	if pos == nil {
		return false, nil
	}
	for _, id := range step.ApproverPositionIDs {
		if id == pos.ID {
			return true, nil
		}
	}
	return false, nil
}
