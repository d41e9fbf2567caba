package handler

import (
	"context"

	"github.com/pesio-ai/be-ops-reports/internal/repository"
	"github.com/pesio-ai/be-ops-reports/internal/service"
)

// Workflow is the report workflow surface the transports expose.
// *service.ReportWorkflowService implements it.
type Workflow interface {
	Create(ctx context.Context, payload repository.Report, authorID string) (*repository.Report, error)
	Edit(ctx context.Context, payload repository.Report, editorID string) (*repository.Report, error)
	Get(ctx context.Context, id string) (*repository.Report, error)
	Submit(ctx context.Context, id, actorID string) (*repository.Report, error)
	Approve(ctx context.Context, id, approverID string, comment *string) (*repository.Report, error)
	Reject(ctx context.Context, id, approverID, reason string) (*repository.Report, error)
	PendingApproval(ctx context.Context, personID string) ([]repository.Report, error)
	List(ctx context.Context, viewerID string, q service.ListQuery) (*service.ReportPage, error)
	ApprovalHistory(ctx context.Context, reportID string) ([]repository.ApprovalAction, error)
	Comments(ctx context.Context, reportID string) ([]repository.Comment, error)
	AddComment(ctx context.Context, reportID, authorID, text string) (*repository.Comment, error)
	Share(ctx context.Context, reportID, senderID string, recipientIDs []string, message string) error
}

type personKey struct{}

// WithPersonID returns a context carrying the authenticated person id.
func WithPersonID(ctx context.Context, personID string) context.Context {
	return context.WithValue(ctx, personKey{}, personID)
}

// PersonID returns the authenticated person id, or "" when there is none.
func PersonID(ctx context.Context) string {
	id, _ := ctx.Value(personKey{}).(string)
	return id
}
