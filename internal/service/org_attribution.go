package service

import (
	"context"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// Attribution is the pair of organizations a report is credited to.
type Attribution struct {
	AdvisorOrgID   *string
	PrincipalOrgID *string
}

// OrgAttributionResolver derives a report's organizations from its primary
// attendees.
type OrgAttributionResolver struct {
	directory DirectoryLookup
}

// NewOrgAttributionResolver creates a new OrgAttributionResolver.
func NewOrgAttributionResolver(directory DirectoryLookup) *OrgAttributionResolver {
	return &OrgAttributionResolver{directory: directory}
}

// Attribute computes the organizations for report. When existing is non-nil
// the previously persisted organization is kept for a role whose primary
// attendee is unchanged, so a later move of that person between
// organizations does not rewrite history.
func (r *OrgAttributionResolver) Attribute(ctx context.Context, report repository.Report, existing *repository.Report) (Attribution, error) {
	advisor, err := r.attributeRole(ctx, report, existing, repository.RoleAdvisor)
	if err != nil {
		return Attribution{}, err
	}
	principal, err := r.attributeRole(ctx, report, existing, repository.RolePrincipal)
	if err != nil {
		return Attribution{}, err
	}
	return Attribution{AdvisorOrgID: advisor, PrincipalOrgID: principal}, nil
}

func (r *OrgAttributionResolver) attributeRole(
	ctx context.Context,
	report repository.Report,
	existing *repository.Report,
	role repository.AttendeeRole,
) (*string, error) {
	primary := report.PrimaryAttendee(role)

	if existing != nil {
		prevOrg := orgForRole(*existing, role)
		if prevOrg != nil && samePerson(primary, existing.PrimaryAttendee(role)) {
			org := *prevOrg
			return &org, nil
		}
	}

	if primary == nil {
		return nil, nil
	}
	return r.OrganizationID(ctx, primary.PersonID)
}

// OrganizationID returns the id of personID's organization, or nil.
func (r *OrgAttributionResolver) OrganizationID(ctx context.Context, personID string) (*string, error) {
	org, err := r.directory.OrganizationOf(ctx, personID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve attendee organization")
	}
	if org == nil {
		return nil, nil
	}
	id := org.ID
	return &id, nil
}

func orgForRole(r repository.Report, role repository.AttendeeRole) *string {
	if role == repository.RoleAdvisor {
		return r.AdvisorOrgID
	}
	return r.PrincipalOrgID
}

func samePerson(a, b *repository.Attendee) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.PersonID == b.PersonID
}
