package service

import (
	"context"

	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

// UnitOfWork runs fn against a ReportStore whose writes commit or roll back
// together. repository.Store is the Postgres implementation.
type UnitOfWork interface {
	InTransaction(ctx context.Context, fn func(store repository.ReportStore) error) error
}

// ApprovalChainStore reads configured approval chains.
type ApprovalChainStore interface {
	// ChainFor returns an organization's ordered steps, empty when none are configured.
	ChainFor(ctx context.Context, orgID string) ([]repository.ApprovalStep, error)
	GetStep(ctx context.Context, id string) (*repository.ApprovalStep, error)
}

// DirectoryLookup resolves people to their organization and position.
type DirectoryLookup interface {
	// OrganizationOf returns nil, nil when the person has no organization.
	OrganizationOf(ctx context.Context, personID string) (*repository.Organization, error)
	// PositionOf returns nil, nil when the person holds no position.
	PositionOf(ctx context.Context, personID string) (*repository.Position, error)
	PeopleInPositions(ctx context.Context, positionIDs []string) ([]repository.Person, error)
	GetPerson(ctx context.Context, id string) (*repository.Person, error)
}

// NotificationDispatcher accepts fire-and-forget notification requests.
// Implementations must not block on delivery and report their own failures.
type NotificationDispatcher interface {
	PublishReportEvent(ctx context.Context, eventType, reportID, actorID string, recipients []repository.Person, payload map[string]interface{})
}

// Notification kinds.
const (
	NotifyApprovalNeeded = "approval_needed"
	NotifyReportRejected = "report_rejected"
	NotifyNewComment     = "new_comment"
	NotifyReportShared   = "report_shared"
)
