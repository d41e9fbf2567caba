package handler

import (
	"context"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
	"github.com/pesio-ai/be-ops-reports/internal/service"
)

// stubWorkflow records the caller and returns canned results.
type stubWorkflow struct {
	caller  string
	payload repository.Report
	comment *string
	reason  string
	text    string
	shared  []string
	query   service.ListQuery

	report *repository.Report
	err    error
}

func (s *stubWorkflow) result(ctx context.Context, id string) (*repository.Report, error) {
	s.caller = PersonID(ctx)
	if s.err != nil {
		return nil, s.err
	}
	if s.report != nil {
		return s.report, nil
	}
	return &repository.Report{ID: id, State: repository.StateDraft}, nil
}

func (s *stubWorkflow) Create(ctx context.Context, payload repository.Report, authorID string) (*repository.Report, error) {
	s.payload = payload
	r, err := s.result(ctx, "r-new")
	if err == nil {
		r.AuthorID = authorID
	}
	return r, err
}

func (s *stubWorkflow) Edit(ctx context.Context, payload repository.Report, _ string) (*repository.Report, error) {
	s.payload = payload
	return s.result(ctx, payload.ID)
}

func (s *stubWorkflow) Get(ctx context.Context, id string) (*repository.Report, error) {
	return s.result(ctx, id)
}

func (s *stubWorkflow) Submit(ctx context.Context, id, _ string) (*repository.Report, error) {
	return s.result(ctx, id)
}

func (s *stubWorkflow) Approve(ctx context.Context, id, _ string, comment *string) (*repository.Report, error) {
	s.comment = comment
	return s.result(ctx, id)
}

func (s *stubWorkflow) Reject(ctx context.Context, id, _ string, reason string) (*repository.Report, error) {
	s.reason = reason
	return s.result(ctx, id)
}

func (s *stubWorkflow) PendingApproval(ctx context.Context, _ string) ([]repository.Report, error) {
	r, err := s.result(ctx, "r-pending")
	if err != nil {
		return nil, err
	}
	return []repository.Report{*r}, nil
}

func (s *stubWorkflow) ApprovalHistory(ctx context.Context, id string) ([]repository.ApprovalAction, error) {
	if _, err := s.result(ctx, id); err != nil {
		return nil, err
	}
	return []repository.ApprovalAction{{ID: "a-1", ReportID: id, Type: repository.ActionApprove}}, nil
}

func (s *stubWorkflow) Comments(ctx context.Context, id string) ([]repository.Comment, error) {
	if _, err := s.result(ctx, id); err != nil {
		return nil, err
	}
	return []repository.Comment{{ID: "c-1", ReportID: id, Text: "hello"}}, nil
}

func (s *stubWorkflow) AddComment(ctx context.Context, id, authorID, text string) (*repository.Comment, error) {
	s.text = text
	if _, err := s.result(ctx, id); err != nil {
		return nil, err
	}
	return &repository.Comment{ID: "c-2", ReportID: id, AuthorID: authorID, Text: text}, nil
}

func (s *stubWorkflow) Share(ctx context.Context, id, _ string, recipientIDs []string, _ string) error {
	s.shared = recipientIDs
	_, err := s.result(ctx, id)
	return err
}

func (s *stubWorkflow) List(ctx context.Context, _ string, q service.ListQuery) (*service.ReportPage, error) {
	s.query = q
	r, err := s.result(ctx, "r-listed")
	if err != nil {
		return nil, err
	}
	return &service.ReportPage{Reports: []repository.Report{*r}, Total: 1, Page: 1, PageSize: 50}, nil
}

var _ Workflow = (*stubWorkflow)(nil)

var errForbidden = errors.Forbidden("user is not an approver for the current step")
