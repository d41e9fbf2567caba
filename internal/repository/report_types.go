package repository

import (
	"context"
	"time"
)

// ── Domain types for the report approval workflow ────────────────────────────

// ReportState is the lifecycle state of a report.
type ReportState string

const (
	StateDraft           ReportState = "DRAFT"
	StatePendingApproval ReportState = "PENDING_APPROVAL"
	StateRejected        ReportState = "REJECTED"
	StateReleased        ReportState = "RELEASED"
)

// AttendeeRole tags an attendee's side of the engagement.
type AttendeeRole string

const (
	RoleAdvisor   AttendeeRole = "ADVISOR"
	RolePrincipal AttendeeRole = "PRINCIPAL"
	RoleOther     AttendeeRole = "OTHER"
)

// Attendee is one participant on a report. PersonID is the matching key.
type Attendee struct {
	PersonID string       `json:"personId"`
	Role     AttendeeRole `json:"role"`
	Primary  bool         `json:"primary"`
}

// Report is the central workflow record. ApprovalStepID is non-nil iff
// State is PENDING_APPROVAL. Version is the optimistic concurrency token.
type Report struct {
	ID                string      `json:"id"`
	State             ReportState `json:"state"`
	ApprovalStepID    *string     `json:"approvalStepId,omitempty"`
	AuthorID          string      `json:"authorId"`
	AdvisorOrgID      *string     `json:"advisorOrgId,omitempty"`
	PrincipalOrgID    *string     `json:"principalOrgId,omitempty"`
	EngagementDate    *time.Time  `json:"engagementDate,omitempty"`
	Intent            string      `json:"intent"`
	Text              string      `json:"text"`
	NextSteps         string      `json:"nextSteps"`
	Atmosphere        string      `json:"atmosphere"`
	Attendees         []Attendee  `json:"attendees"`
	ActivityMarkerIDs []string    `json:"activityMarkerIds"`
	Version           int64       `json:"version"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
	ReleasedAt        *time.Time  `json:"releasedAt,omitempty"`
}

// Clone returns a deep copy so a transition can build a new snapshot without
// touching the value it was derived from.
func (r Report) Clone() Report {
	out := r
	out.ApprovalStepID = clonePtr(r.ApprovalStepID)
	out.AdvisorOrgID = clonePtr(r.AdvisorOrgID)
	out.PrincipalOrgID = clonePtr(r.PrincipalOrgID)
	out.EngagementDate = clonePtr(r.EngagementDate)
	out.ReleasedAt = clonePtr(r.ReleasedAt)
	if r.Attendees != nil {
		out.Attendees = append([]Attendee(nil), r.Attendees...)
	}
	if r.ActivityMarkerIDs != nil {
		out.ActivityMarkerIDs = append([]string(nil), r.ActivityMarkerIDs...)
	}
	return out
}

// PrimaryAttendee returns the attendee flagged primary for role, if any.
func (r Report) PrimaryAttendee(role AttendeeRole) *Attendee {
	for i := range r.Attendees {
		if r.Attendees[i].Primary && r.Attendees[i].Role == role {
			a := r.Attendees[i]
			return &a
		}
	}
	return nil
}

// ApprovalStep is one stage of an organization's approval chain.
type ApprovalStep struct {
	ID                  string   `json:"id" yaml:"id"`
	OrganizationID      string   `json:"organizationId" yaml:"-"`
	Name                string   `json:"name" yaml:"name"`
	Order               int      `json:"order" yaml:"-"`
	ApproverPositionIDs []string `json:"approverPositionIds" yaml:"approver_positions"`
	NextStepID          *string  `json:"nextStepId,omitempty" yaml:"-"`
}

// ApprovalActionType is the kind of an approval audit record.
type ApprovalActionType string

const (
	ActionApprove ApprovalActionType = "APPROVE"
	ActionReject  ApprovalActionType = "REJECT"
)

// ApprovalAction is an immutable audit record of one approve or reject.
type ApprovalAction struct {
	ID        string             `json:"id"`
	ReportID  string             `json:"reportId"`
	StepID    string             `json:"stepId"`
	PersonID  string             `json:"personId"`
	Type      ApprovalActionType `json:"type"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Comment is an append-only note on a report.
type Comment struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"reportId"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Organization is a directory organization.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Position is a billet within an organization, held by at most one person.
type Position struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	OrganizationID string  `json:"organizationId"`
	PersonID       *string `json:"personId,omitempty"`
}

// Person is a directory person.
type Person struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	PositionID string `json:"positionId,omitempty"`
}

// ReportStore is the persistence surface of the workflow engine. Every
// method participates in the caller's transaction scope.
type ReportStore interface {
	GetByID(ctx context.Context, id string) (*Report, error)
	Insert(ctx context.Context, r Report) (*Report, error)
	// Update writes r when the stored version equals expectedVersion and
	// returns the number of rows affected.
	Update(ctx context.Context, r Report, expectedVersion int64) (int64, error)
	Exists(ctx context.Context, id string) (bool, error)

	GetAttendees(ctx context.Context, reportID string) ([]Attendee, error)
	AddAttendee(ctx context.Context, reportID string, a Attendee) error
	UpdateAttendee(ctx context.Context, reportID string, a Attendee) error
	RemoveAttendee(ctx context.Context, reportID, personID string) error

	GetActivityMarkers(ctx context.Context, reportID string) ([]string, error)
	AddActivityMarker(ctx context.Context, reportID, markerID string) error
	RemoveActivityMarker(ctx context.Context, reportID, markerID string) error

	AppendApprovalAction(ctx context.Context, a ApprovalAction) (*ApprovalAction, error)
	AppendComment(ctx context.Context, c Comment) (*Comment, error)

	ListApprovalActions(ctx context.Context, reportID string) ([]ApprovalAction, error)
	ListComments(ctx context.Context, reportID string) ([]Comment, error)
	ListPendingForPosition(ctx context.Context, positionID string) ([]Report, error)
	List(ctx context.Context, filter ReportFilter, limit, offset int) ([]Report, int64, error)
}

// ReportFilter narrows List. Zero fields do not filter.
type ReportFilter struct {
	AuthorID string
	State    ReportState
	// OrgID matches either the advisor or the principal organization.
	OrgID         string
	Text          string
	CreatedSince  *time.Time
	ReleasedSince *time.Time
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
