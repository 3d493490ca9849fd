package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil/pkg/types"
)

// Memory is an in-memory Store used in tests. A single mutex serializes
// transactions, so the disjoint-batch property of skip-locked claims
// holds trivially; Rollback restores a snapshot taken at Begin.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	monitors      map[string]*types.HttpMonitor
	tasks         map[string]*types.Task
	runs          map[string]*types.TaskRun
	incidents     map[string]*types.Incident
	events        []*types.IncidentEvent
	notifications map[string]*types.IncidentNotification
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		monitors:      make(map[string]*types.HttpMonitor),
		tasks:         make(map[string]*types.Task),
		runs:          make(map[string]*types.TaskRun),
		incidents:     make(map[string]*types.Incident),
		notifications: make(map[string]*types.IncidentNotification),
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.monitors {
		out.monitors[k] = cloneMonitor(v)
	}
	for k, v := range s.tasks {
		out.tasks[k] = cloneTask(v)
	}
	for k, v := range s.runs {
		out.runs[k] = cloneRun(v)
	}
	for k, v := range s.incidents {
		out.incidents[k] = cloneIncident(v)
	}
	out.events = make([]*types.IncidentEvent, len(s.events))
	for i, ev := range s.events {
		out.events[i] = cloneEvent(ev)
	}
	for k, v := range s.notifications {
		out.notifications[k] = cloneNotification(v)
	}
	return out
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	m.mu.Lock()
	return &memTx{store: m, snapshot: m.state.clone()}, nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (m *Memory) CreateMonthlyPartitions(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}

type memTx struct {
	store    *Memory
	snapshot *memState
	done     bool
}

func (t *memTx) Monitors() MonitorRepo           { return &memMonitorRepo{tx: t} }
func (t *memTx) Tasks() TaskRepo                 { return &memTaskRepo{tx: t} }
func (t *memTx) TaskRuns() TaskRunRepo           { return &memTaskRunRepo{tx: t} }
func (t *memTx) Incidents() IncidentRepo         { return &memIncidentRepo{tx: t} }
func (t *memTx) Events() EventRepo               { return &memEventRepo{tx: t} }
func (t *memTx) Notifications() NotificationRepo { return &memNotificationRepo{tx: t} }

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.snapshot = nil
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.state = t.snapshot
	t.snapshot = nil
	t.store.mu.Unlock()
	return nil
}

func scopedKey(orgID uuid.UUID, id string) string {
	return orgID.String() + "/" + id
}

// Monitors

type memMonitorRepo struct {
	tx *memTx
}

func (r *memMonitorRepo) Create(ctx context.Context, m *types.HttpMonitor) error {
	r.tx.store.state.monitors[scopedKey(m.OrganizationID, m.ID.String())] = cloneMonitor(m)
	return nil
}

func (r *memMonitorRepo) Get(ctx context.Context, orgID, id uuid.UUID) (*types.HttpMonitor, error) {
	m, ok := r.tx.store.state.monitors[scopedKey(orgID, id.String())]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloneMonitor(m), nil
}

func (r *memMonitorRepo) Update(ctx context.Context, m *types.HttpMonitor) error {
	key := scopedKey(m.OrganizationID, m.ID.String())
	if _, ok := r.tx.store.state.monitors[key]; !ok {
		return types.ErrNotFound
	}
	r.tx.store.state.monitors[key] = cloneMonitor(m)
	return nil
}

func (r *memMonitorRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.HttpMonitor, error) {
	var due []*types.HttpMonitor
	for _, m := range r.tx.store.state.monitors {
		if m.Status.Active() && m.NextPingAt != nil && !m.NextPingAt.After(now) {
			due = append(due, cloneMonitor(m))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextPingAt.Before(*due[j].NextPingAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Tasks

type memTaskRepo struct {
	tx *memTx
}

func (r *memTaskRepo) Create(ctx context.Context, t *types.Task) error {
	r.tx.store.state.tasks[scopedKey(t.OrganizationID, t.ID)] = cloneTask(t)
	return nil
}

func (r *memTaskRepo) Get(ctx context.Context, orgID uuid.UUID, id string) (*types.Task, error) {
	t, ok := r.tx.store.state.tasks[scopedKey(orgID, id)]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloneTask(t), nil
}

func (r *memTaskRepo) GetForUpdate(ctx context.Context, orgID uuid.UUID, id string) (*types.Task, error) {
	return r.Get(ctx, orgID, id)
}

func (r *memTaskRepo) Update(ctx context.Context, t *types.Task) error {
	key := scopedKey(t.OrganizationID, t.ID)
	if _, ok := r.tx.store.state.tasks[key]; !ok {
		return types.ErrNotFound
	}
	r.tx.store.state.tasks[key] = cloneTask(t)
	return nil
}

func (r *memTaskRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.Task, error) {
	return r.claim(limit, func(t *types.Task) bool {
		return (t.Status == types.TaskStatusHealthy || t.Status == types.TaskStatusPending) &&
			t.NextDueAt != nil && !t.NextDueAt.After(now)
	}, func(t *types.Task) time.Time { return *t.NextDueAt })
}

func (r *memTaskRepo) ClaimLate(ctx context.Context, now time.Time, limit int) ([]*types.Task, error) {
	return r.claim(limit, func(t *types.Task) bool {
		return t.Status == types.TaskStatusDue && t.LastDueAt != nil &&
			!t.LastDueAt.Add(t.StartWindow).After(now)
	}, func(t *types.Task) time.Time { return *t.LastDueAt })
}

func (r *memTaskRepo) ClaimAbsent(ctx context.Context, now time.Time, limit int) ([]*types.Task, error) {
	return r.claim(limit, func(t *types.Task) bool {
		return t.Status == types.TaskStatusLate && t.LastDueAt != nil &&
			!t.LastDueAt.Add(t.StartWindow+t.LatenessWindow).After(now)
	}, func(t *types.Task) time.Time { return *t.LastDueAt })
}

func (r *memTaskRepo) claim(limit int, match func(*types.Task) bool, orderBy func(*types.Task) time.Time) ([]*types.Task, error) {
	var claimed []*types.Task
	for _, t := range r.tx.store.state.tasks {
		if match(t) {
			claimed = append(claimed, cloneTask(t))
		}
	}
	sort.Slice(claimed, func(i, j int) bool {
		return orderBy(claimed[i]).Before(orderBy(claimed[j]))
	})
	if len(claimed) > limit {
		claimed = claimed[:limit]
	}
	return claimed, nil
}

// Task runs

type memTaskRunRepo struct {
	tx *memTx
}

func (r *memTaskRunRepo) Create(ctx context.Context, run *types.TaskRun) error {
	r.tx.store.state.runs[scopedKey(run.OrganizationID, run.ID.String())] = cloneRun(run)
	return nil
}

func (r *memTaskRunRepo) Update(ctx context.Context, run *types.TaskRun) error {
	key := scopedKey(run.OrganizationID, run.ID.String())
	if _, ok := r.tx.store.state.runs[key]; !ok {
		return types.ErrNotFound
	}
	r.tx.store.state.runs[key] = cloneRun(run)
	return nil
}

func (r *memTaskRunRepo) GetRunning(ctx context.Context, orgID uuid.UUID, taskID string) (*types.TaskRun, error) {
	var latest *types.TaskRun
	for _, run := range r.tx.store.state.runs {
		if run.OrganizationID == orgID && run.TaskID == taskID && run.Status == types.TaskRunStatusRunning {
			if latest == nil || run.StartedAt.After(latest.StartedAt) {
				latest = run
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneRun(latest), nil
}

func (r *memTaskRunRepo) ClaimDead(ctx context.Context, now time.Time, limit int) ([]*types.TaskRun, error) {
	var dead []*types.TaskRun
	for _, run := range r.tx.store.state.runs {
		if run.Status != types.TaskRunStatusRunning || run.LastHeartbeatAt == nil {
			continue
		}
		task, ok := r.tx.store.state.tasks[scopedKey(run.OrganizationID, run.TaskID)]
		if !ok {
			continue
		}
		if run.LastHeartbeatAt.Add(task.HeartbeatTimeout).Before(now) {
			dead = append(dead, cloneRun(run))
		}
	}
	sort.Slice(dead, func(i, j int) bool {
		return dead[i].LastHeartbeatAt.Before(*dead[j].LastHeartbeatAt)
	})
	if len(dead) > limit {
		dead = dead[:limit]
	}
	return dead, nil
}

// Incidents

type memIncidentRepo struct {
	tx *memTx
}

func (r *memIncidentRepo) Create(ctx context.Context, inc *types.Incident) error {
	r.tx.store.state.incidents[scopedKey(inc.OrganizationID, inc.ID.String())] = cloneIncident(inc)
	return nil
}

func (r *memIncidentRepo) Get(ctx context.Context, orgID, id uuid.UUID) (*types.Incident, error) {
	inc, ok := r.tx.store.state.incidents[scopedKey(orgID, id.String())]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloneIncident(inc), nil
}

func (r *memIncidentRepo) Update(ctx context.Context, inc *types.Incident) error {
	key := scopedKey(inc.OrganizationID, inc.ID.String())
	if _, ok := r.tx.store.state.incidents[key]; !ok {
		return types.ErrNotFound
	}
	r.tx.store.state.incidents[key] = cloneIncident(inc)
	return nil
}

func (r *memIncidentRepo) FindOpenBySource(ctx context.Context, orgID uuid.UUID, sourceType types.IncidentSourceType, sourceID string) (*types.Incident, error) {
	for _, inc := range r.tx.store.state.incidents {
		if inc.OrganizationID == orgID && inc.SourceType == sourceType &&
			inc.SourceID == sourceID && inc.Status.Open() {
			return cloneIncident(inc), nil
		}
	}
	return nil, nil
}

// Events

type memEventRepo struct {
	tx *memTx
}

func (r *memEventRepo) Append(ctx context.Context, ev *types.IncidentEvent) error {
	r.tx.store.state.events = append(r.tx.store.state.events, cloneEvent(ev))
	return nil
}

func (r *memEventRepo) ListByIncident(ctx context.Context, orgID, incidentID uuid.UUID) ([]*types.IncidentEvent, error) {
	var events []*types.IncidentEvent
	for _, ev := range r.tx.store.state.events {
		if ev.OrganizationID == orgID && ev.IncidentID == incidentID {
			events = append(events, cloneEvent(ev))
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// Notifications

type memNotificationRepo struct {
	tx *memTx
}

func notificationKey(orgID, incidentID uuid.UUID, level int32) string {
	return fmt.Sprintf("%s/%s/%d", orgID, incidentID, level)
}

func (r *memNotificationRepo) Upsert(ctx context.Context, n *types.IncidentNotification) error {
	key := notificationKey(n.OrganizationID, n.IncidentID, n.EscalationLevel)
	r.tx.store.state.notifications[key] = cloneNotification(n)
	return nil
}

func (r *memNotificationRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*types.IncidentNotification, error) {
	var due []*types.IncidentNotification
	for _, n := range r.tx.store.state.notifications {
		if !n.DueAt.After(now) {
			due = append(due, cloneNotification(n))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memNotificationRepo) Delete(ctx context.Context, orgID, incidentID uuid.UUID, escalationLevel int32) error {
	delete(r.tx.store.state.notifications, notificationKey(orgID, incidentID, escalationLevel))
	return nil
}

func (r *memNotificationRepo) CancelForIncident(ctx context.Context, orgID, incidentID uuid.UUID) error {
	prefix := scopedKey(orgID, incidentID.String()) + "/"
	for key := range r.tx.store.state.notifications {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(r.tx.store.state.notifications, key)
		}
	}
	return nil
}

// Clone helpers. Repositories hand out and store copies so caller
// mutations never leak into committed state.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMonitor(m *types.HttpMonitor) *types.HttpMonitor {
	out := *m
	out.RequestHeaders = cloneStringMap(m.RequestHeaders)
	out.Metadata = cloneStringMap(m.Metadata)
	out.LastHTTPCode = clonePtr(m.LastHTTPCode)
	out.FirstPingAt = clonePtr(m.FirstPingAt)
	out.LastPingAt = clonePtr(m.LastPingAt)
	out.NextPingAt = clonePtr(m.NextPingAt)
	out.LastStatusChangeAt = clonePtr(m.LastStatusChangeAt)
	out.ArchivedAt = clonePtr(m.ArchivedAt)
	return &out
}

func cloneTask(t *types.Task) *types.Task {
	out := *t
	out.CronSchedule = clonePtr(t.CronSchedule)
	out.Metadata = cloneStringMap(t.Metadata)
	out.LastStatusChangeAt = clonePtr(t.LastStatusChangeAt)
	out.NextDueAt = clonePtr(t.NextDueAt)
	out.LastDueAt = clonePtr(t.LastDueAt)
	return &out
}

func cloneRun(r *types.TaskRun) *types.TaskRun {
	out := *r
	out.CompletedAt = clonePtr(r.CompletedAt)
	out.LastHeartbeatAt = clonePtr(r.LastHeartbeatAt)
	out.ExitCode = clonePtr(r.ExitCode)
	out.ErrorMessage = clonePtr(r.ErrorMessage)
	return &out
}

func cloneIncident(inc *types.Incident) *types.Incident {
	out := *inc
	out.CreatedBy = clonePtr(inc.CreatedBy)
	out.ResolvedAt = clonePtr(inc.ResolvedAt)
	out.Metadata = cloneStringMap(inc.Metadata)
	out.AcknowledgedBy = append([]uuid.UUID(nil), inc.AcknowledgedBy...)
	out.Cause = cloneCause(inc.Cause)
	return &out
}

func cloneCause(c types.IncidentCause) types.IncidentCause {
	out := c
	if c.HTTPMonitor != nil {
		hm := *c.HTTPMonitor
		hm.LastPing.HTTPCode = clonePtr(c.HTTPMonitor.LastPing.HTTPCode)
		hm.PreviousPings = make([]types.PingSignature, len(c.HTTPMonitor.PreviousPings))
		for i, sig := range c.HTTPMonitor.PreviousPings {
			hm.PreviousPings[i] = types.PingSignature{
				ErrorKind: sig.ErrorKind,
				HTTPCode:  clonePtr(sig.HTTPCode),
			}
		}
		out.HTTPMonitor = &hm
	}
	if c.ScheduledTask != nil {
		st := *c.ScheduledTask
		st.TaskRanLateAt = clonePtr(c.ScheduledTask.TaskRanLateAt)
		st.TaskSwitchedToAbsentAt = clonePtr(c.ScheduledTask.TaskSwitchedToAbsentAt)
		out.ScheduledTask = &st
	}
	if c.TaskRun != nil {
		tr := *c.TaskRun
		tr.TaskRunFinishedAt = clonePtr(c.TaskRun.TaskRunFinishedAt)
		out.TaskRun = &tr
	}
	return out
}

func cloneEvent(ev *types.IncidentEvent) *types.IncidentEvent {
	out := *ev
	if ev.Payload != nil {
		payload := *ev.Payload
		payload.AcknowledgedBy = clonePtr(ev.Payload.AcknowledgedBy)
		payload.Comment = clonePtr(ev.Payload.Comment)
		payload.CommentedBy = clonePtr(ev.Payload.CommentedBy)
		payload.NotificationChannels = append([]string(nil), ev.Payload.NotificationChannels...)
		if ev.Payload.Ping != nil {
			ping := *ev.Payload.Ping
			ping.HTTPCode = clonePtr(ev.Payload.Ping.HTTPCode)
			ping.BodyFileID = clonePtr(ev.Payload.Ping.BodyFileID)
			ping.ScreenshotFileID = clonePtr(ev.Payload.Ping.ScreenshotFileID)
			ping.IPAddresses = append([]string(nil), ev.Payload.Ping.IPAddresses...)
			payload.Ping = &ping
		}
		out.Payload = &payload
	}
	return &out
}

func cloneNotification(n *types.IncidentNotification) *types.IncidentNotification {
	out := *n
	out.Payload.Cause = cloneCause(n.Payload.Cause)
	return &out
}
