package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
	"github.com/pesio-ai/be-ops-reports/internal/platform/logger"
	"github.com/pesio-ai/be-ops-reports/internal/repository"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// ── in-memory store ──────────────────────────────────────────────────────────

type memState struct {
	reports  map[string]repository.Report
	actions  []repository.ApprovalAction
	comments []repository.Comment
	seq      int
}

func (s *memState) clone() *memState {
	out := &memState{
		reports:  make(map[string]repository.Report, len(s.reports)),
		actions:  append([]repository.ApprovalAction(nil), s.actions...),
		comments: append([]repository.Comment(nil), s.comments...),
		seq:      s.seq,
	}
	for id, r := range s.reports {
		out.reports[id] = r.Clone()
	}
	return out
}

// memDB commits a transaction's state only when fn succeeds.
type memDB struct {
	mu     sync.Mutex
	state  *memState
	chains *fakeChains

	// beforeUpdate runs inside Update ahead of the version check.
	beforeUpdate func(s *memState, id string)
}

func newMemDB(chains *fakeChains) *memDB {
	return &memDB{state: &memState{reports: map[string]repository.Report{}}, chains: chains}
}

func (db *memDB) InTransaction(ctx context.Context, fn func(store repository.ReportStore) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx := &memTx{db: db, state: db.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	db.state = tx.state
	return nil
}

func (db *memDB) report(t *testing.T, id string) repository.Report {
	t.Helper()
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.state.reports[id]
	require.True(t, ok, "report %s not stored", id)
	return r.Clone()
}

func (db *memDB) actions() []repository.ApprovalAction {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]repository.ApprovalAction(nil), db.state.actions...)
}

func (db *memDB) comments() []repository.Comment {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]repository.Comment(nil), db.state.comments...)
}

type memTx struct {
	db    *memDB
	state *memState
}

func (tx *memTx) nextID(prefix string) string {
	tx.state.seq++
	return fmt.Sprintf("%s-%d", prefix, tx.state.seq)
}

func (tx *memTx) GetByID(_ context.Context, id string) (*repository.Report, error) {
	r, ok := tx.state.reports[id]
	if !ok {
		return nil, errors.NotFound("report", id)
	}
	out := r.Clone()
	return &out, nil
}

func (tx *memTx) Insert(_ context.Context, r repository.Report) (*repository.Report, error) {
	r = r.Clone()
	r.ID = tx.nextID("report")
	r.Version = 1
	r.CreatedAt = fixedNow
	r.UpdatedAt = fixedNow
	if r.Attendees == nil {
		r.Attendees = []repository.Attendee{}
	}
	if r.ActivityMarkerIDs == nil {
		r.ActivityMarkerIDs = []string{}
	}
	tx.state.reports[r.ID] = r
	out := r.Clone()
	return &out, nil
}

func (tx *memTx) Update(_ context.Context, r repository.Report, expectedVersion int64) (int64, error) {
	if tx.db.beforeUpdate != nil {
		tx.db.beforeUpdate(tx.state, r.ID)
	}
	cur, ok := tx.state.reports[r.ID]
	if !ok || cur.Version != expectedVersion {
		return 0, nil
	}
	if (r.State == repository.StatePendingApproval) != (r.ApprovalStepID != nil) {
		return 0, fmt.Errorf("reports_step_iff_pending violated for %s", r.ID)
	}
	next := r.Clone()
	next.Attendees = cur.Attendees
	next.ActivityMarkerIDs = cur.ActivityMarkerIDs
	next.AuthorID = cur.AuthorID
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	tx.state.reports[r.ID] = next
	return 1, nil
}

func (tx *memTx) Exists(_ context.Context, id string) (bool, error) {
	_, ok := tx.state.reports[id]
	return ok, nil
}

func (tx *memTx) GetAttendees(_ context.Context, reportID string) ([]repository.Attendee, error) {
	return append([]repository.Attendee(nil), tx.state.reports[reportID].Attendees...), nil
}

// checkPrimaries mirrors the partial unique index on report_people.
func checkPrimaries(attendees []repository.Attendee) error {
	seen := map[repository.AttendeeRole]bool{}
	for _, a := range attendees {
		if !a.Primary {
			continue
		}
		if seen[a.Role] {
			return fmt.Errorf("duplicate primary %s", a.Role)
		}
		seen[a.Role] = true
	}
	return nil
}

func (tx *memTx) AddAttendee(_ context.Context, reportID string, a repository.Attendee) error {
	r := tx.state.reports[reportID]
	for _, existing := range r.Attendees {
		if existing.PersonID == a.PersonID {
			return fmt.Errorf("attendee %s already on report", a.PersonID)
		}
	}
	next := append(append([]repository.Attendee(nil), r.Attendees...), a)
	if err := checkPrimaries(next); err != nil {
		return err
	}
	r.Attendees = next
	tx.state.reports[reportID] = r
	return nil
}

func (tx *memTx) UpdateAttendee(_ context.Context, reportID string, a repository.Attendee) error {
	r := tx.state.reports[reportID]
	next := append([]repository.Attendee(nil), r.Attendees...)
	for i := range next {
		if next[i].PersonID == a.PersonID {
			next[i] = a
			if err := checkPrimaries(next); err != nil {
				return err
			}
			r.Attendees = next
			tx.state.reports[reportID] = r
			return nil
		}
	}
	return errors.NotFound("attendee", a.PersonID)
}

func (tx *memTx) RemoveAttendee(_ context.Context, reportID, personID string) error {
	r := tx.state.reports[reportID]
	next := make([]repository.Attendee, 0, len(r.Attendees))
	for _, a := range r.Attendees {
		if a.PersonID != personID {
			next = append(next, a)
		}
	}
	r.Attendees = next
	tx.state.reports[reportID] = r
	return nil
}

func (tx *memTx) GetActivityMarkers(_ context.Context, reportID string) ([]string, error) {
	return append([]string(nil), tx.state.reports[reportID].ActivityMarkerIDs...), nil
}

func (tx *memTx) AddActivityMarker(_ context.Context, reportID, markerID string) error {
	r := tx.state.reports[reportID]
	for _, id := range r.ActivityMarkerIDs {
		if id == markerID {
			return nil
		}
	}
	r.ActivityMarkerIDs = append(append([]string(nil), r.ActivityMarkerIDs...), markerID)
	tx.state.reports[reportID] = r
	return nil
}

func (tx *memTx) RemoveActivityMarker(_ context.Context, reportID, markerID string) error {
	r := tx.state.reports[reportID]
	next := make([]string, 0, len(r.ActivityMarkerIDs))
	for _, id := range r.ActivityMarkerIDs {
		if id != markerID {
			next = append(next, id)
		}
	}
	r.ActivityMarkerIDs = next
	tx.state.reports[reportID] = r
	return nil
}

func (tx *memTx) AppendApprovalAction(_ context.Context, a repository.ApprovalAction) (*repository.ApprovalAction, error) {
	a.ID = tx.nextID("action")
	a.CreatedAt = fixedNow
	tx.state.actions = append(tx.state.actions, a)
	return &a, nil
}

func (tx *memTx) AppendComment(_ context.Context, c repository.Comment) (*repository.Comment, error) {
	c.ID = tx.nextID("comment")
	c.CreatedAt = fixedNow
	tx.state.comments = append(tx.state.comments, c)
	return &c, nil
}

func (tx *memTx) ListApprovalActions(_ context.Context, reportID string) ([]repository.ApprovalAction, error) {
	var out []repository.ApprovalAction
	for _, a := range tx.state.actions {
		if a.ReportID == reportID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (tx *memTx) ListComments(_ context.Context, reportID string) ([]repository.Comment, error) {
	var out []repository.Comment
	for _, c := range tx.state.comments {
		if c.ReportID == reportID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (tx *memTx) ListPendingForPosition(_ context.Context, positionID string) ([]repository.Report, error) {
	out := []repository.Report{}
	for _, r := range tx.state.reports {
		if r.State != repository.StatePendingApproval || r.ApprovalStepID == nil {
			continue
		}
		step, ok := tx.db.chains.steps[*r.ApprovalStepID]
		if !ok {
			continue
		}
		for _, id := range step.ApproverPositionIDs {
			if id == positionID {
				out = append(out, r.Clone())
				break
			}
		}
	}
	return out, nil
}

func (tx *memTx) List(_ context.Context, f repository.ReportFilter, limit, offset int) ([]repository.Report, int64, error) {
	matched := []repository.Report{}
	for _, r := range tx.state.reports {
		if f.AuthorID != "" && r.AuthorID != f.AuthorID {
			continue
		}
		if f.State != "" && r.State != f.State {
			continue
		}
		if f.OrgID != "" && !ptrIs(r.AdvisorOrgID, f.OrgID) && !ptrIs(r.PrincipalOrgID, f.OrgID) {
			continue
		}
		if f.Text != "" {
			needle := strings.ToLower(f.Text)
			hay := strings.ToLower(r.Intent + "\n" + r.Text + "\n" + r.NextSteps)
			if !strings.Contains(hay, needle) {
				continue
			}
		}
		if f.CreatedSince != nil && r.CreatedAt.Before(*f.CreatedSince) {
			continue
		}
		if f.ReleasedSince != nil && (r.ReleasedAt == nil || r.ReleasedAt.Before(*f.ReleasedSince)) {
			continue
		}
		out := r.Clone()
		out.Attendees, out.ActivityMarkerIDs = nil, nil
		matched = append(matched, out)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []repository.Report{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func ptrIs(p *string, v string) bool {
	return p != nil && *p == v
}

// ── chains and directory ─────────────────────────────────────────────────────

type fakeChains struct {
	byOrg map[string][]repository.ApprovalStep
	steps map[string]repository.ApprovalStep
}

func newFakeChains() *fakeChains {
	return &fakeChains{byOrg: map[string][]repository.ApprovalStep{}, steps: map[string]repository.ApprovalStep{}}
}

// set links steps in order and stores them as orgID's chain. Each step is
// given as id followed by its approver position ids.
func (c *fakeChains) set(orgID string, steps ...[]string) {
	chain := make([]repository.ApprovalStep, len(steps))
	for i, def := range steps {
		chain[i] = repository.ApprovalStep{
			ID:                  def[0],
			OrganizationID:      orgID,
			Name:                "Step " + def[0],
			Order:               i,
			ApproverPositionIDs: def[1:],
		}
	}
	for i := range chain {
		if i+1 < len(chain) {
			next := chain[i+1].ID
			chain[i].NextStepID = &next
		}
		c.steps[chain[i].ID] = chain[i]
	}
	c.byOrg[orgID] = chain
}

func (c *fakeChains) ChainFor(_ context.Context, orgID string) ([]repository.ApprovalStep, error) {
	return append([]repository.ApprovalStep{}, c.byOrg[orgID]...), nil
}

func (c *fakeChains) GetStep(_ context.Context, id string) (*repository.ApprovalStep, error) {
	s, ok := c.steps[id]
	if !ok {
		return nil, errors.NotFound("approval_step", id)
	}
	return &s, nil
}

type fakeDirectory struct {
	orgOf      map[string]string // person -> organization
	positionOf map[string]string // person -> position
	people     map[string]repository.Person
	peopleErr  error
}

func (d *fakeDirectory) OrganizationOf(_ context.Context, personID string) (*repository.Organization, error) {
	id, ok := d.orgOf[personID]
	if !ok {
		return nil, nil
	}
	return &repository.Organization{ID: id, Name: id}, nil
}

func (d *fakeDirectory) PositionOf(_ context.Context, personID string) (*repository.Position, error) {
	id, ok := d.positionOf[personID]
	if !ok {
		return nil, nil
	}
	holder := personID
	return &repository.Position{ID: id, OrganizationID: d.orgOf[personID], PersonID: &holder}, nil
}

func (d *fakeDirectory) PeopleInPositions(_ context.Context, positionIDs []string) ([]repository.Person, error) {
	if d.peopleErr != nil {
		return nil, d.peopleErr
	}
	var out []repository.Person
	for _, pos := range positionIDs {
		for person, held := range d.positionOf {
			if held == pos {
				out = append(out, d.people[person])
			}
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetPerson(_ context.Context, id string) (*repository.Person, error) {
	p, ok := d.people[id]
	if !ok {
		return nil, errors.NotFound("person", id)
	}
	return &p, nil
}

// ── notifier ─────────────────────────────────────────────────────────────────

type sentNotification struct {
	Kind       string
	ReportID   string
	ActorID    string
	Recipients []string
	Payload    map[string]interface{}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) PublishReportEvent(_ context.Context, eventType, reportID, actorID string, recipients []repository.Person, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, len(recipients))
	for i, p := range recipients {
		ids[i] = p.ID
	}
	n.sent = append(n.sent, sentNotification{Kind: eventType, ReportID: reportID, ActorID: actorID, Recipients: ids, Payload: payload})
}

func (n *recordingNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}

// ── harness ──────────────────────────────────────────────────────────────────

// Fixture directory:
//
//	alice  author, advisor      org-adv
//	avery  second advisor       org-adv
//	bob    approver, step a1    org-adv  pos-a1
//	carol  approver, step a2    org-adv  pos-a2
//	dave   default approver     org-def  pos-d1
//	pat    principal            org-prin
//	eve    no position          org-adv
//	nora   no organization
type harness struct {
	svc      *ReportWorkflowService
	db       *memDB
	chains   *fakeChains
	dir      *fakeDirectory
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	chains := newFakeChains()
	chains.set("org-adv", []string{"a1", "pos-a1"}, []string{"a2", "pos-a2"})
	chains.set("org-def", []string{"d1", "pos-d1"})

	people := map[string]repository.Person{}
	for _, id := range []string{"alice", "avery", "bob", "carol", "dave", "pat", "eve", "nora"} {
		people[id] = repository.Person{ID: id, Name: id, Email: id + "@example.org"}
	}
	dir := &fakeDirectory{
		orgOf: map[string]string{
			"alice": "org-adv", "avery": "org-adv", "bob": "org-adv", "carol": "org-adv",
			"eve": "org-adv", "dave": "org-def", "pat": "org-prin",
		},
		positionOf: map[string]string{"bob": "pos-a1", "carol": "pos-a2", "dave": "pos-d1"},
		people:     people,
	}

	db := newMemDB(chains)
	notifier := &recordingNotifier{}
	svc := NewReportWorkflowService(db, NewApprovalChainResolver(chains, dir, "org-def"), dir, notifier, logger.Nop())
	svc.now = func() time.Time { return fixedNow }

	return &harness{svc: svc, db: db, chains: chains, dir: dir, notifier: notifier}
}

func draftPayload() repository.Report {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return repository.Report{
		Intent:         "Discuss well rehabilitation",
		Text:           "Met with the district water board.",
		EngagementDate: &date,
		Attendees: []repository.Attendee{
			{PersonID: "alice", Role: repository.RoleAdvisor, Primary: true},
			{PersonID: "pat", Role: repository.RolePrincipal, Primary: true},
		},
		ActivityMarkerIDs: []string{"water"},
	}
}

func (h *harness) createDraft(t *testing.T) *repository.Report {
	t.Helper()
	r, err := h.svc.Create(context.Background(), draftPayload(), "alice")
	require.NoError(t, err)
	return r
}

func (h *harness) submitted(t *testing.T) *repository.Report {
	t.Helper()
	r := h.createDraft(t)
	r, err := h.svc.Submit(context.Background(), r.ID, "alice")
	require.NoError(t, err)
	return r
}

func requireCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errors.CodeOf(err), "unexpected error: %v", err)
}
