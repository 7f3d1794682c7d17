package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"sync"
	"time"

	"github.com/google/uuid"

	"travelriskbackend/internal/mailing"
)

// Mailer delivers one report email to one recipient.
type Mailer interface {
	SendReport(ctx context.Context, recipient, title, summary string) error
}

// TaskStatus is the lifecycle of a dispatch task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is the handle returned to the caller while dispatch runs in the
// background.
type Task struct {
	ID          string     `json:"id"`
	ReportID    string     `json:"report_id"`
	Status      TaskStatus `json:"status"`
	SentCount   int        `json:"sent_count"`
	FailedCount int        `json:"failed_count"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Dispatcher sends approved reports to geographically matched mailing lists
// as a background task. The trigger returns a task handle immediately and
// never blocks on mail delivery.
//
// A crashed, retried, or concurrent trigger must not double-send: the
// (report, mailing list) idempotency keys are reserved in the same critical
// section that creates the task, before any recipient is mailed, so a second
// attempt can never claim a list the first already holds.
type Dispatcher struct {
	reports *Store
	lists   *mailing.Store
	mailer  Mailer
	logger  *slog.Logger

	// OnEmail is invoked per attempted email with "sent" or "failed".
	// Used for metrics.
	OnEmail func(status string)

	mu        sync.Mutex
	tasks     map[string]*Task
	completed map[string]map[string]struct{} // reportID -> listID set
	inflight  map[string]string              // reportID -> running task ID
}

// NewDispatcher wires the dispatcher to its stores and mailer.
func NewDispatcher(reports *Store, lists *mailing.Store, mailer Mailer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		reports:   reports,
		lists:     lists,
		mailer:    mailer,
		logger:    logger,
		tasks:     make(map[string]*Task),
		completed: make(map[string]map[string]struct{}),
		inflight:  make(map[string]string),
	}
}

// Dispatch validates the report, resolves recipients, and starts the send in
// the background. It fails fast with ErrAlreadySent, ErrInvalidStateTransition,
// or ErrNoRecipients before any task is created; the report's status is only
// changed by the task itself, on success. A trigger while a task for the same
// report is still running returns that task's handle instead of starting a
// second send.
func (d *Dispatcher) Dispatch(ctx context.Context, reportID string, req mailing.MatchRequest) (Task, error) {
	rep, err := d.reports.Get(ctx, reportID)
	if err != nil {
		return Task{}, err
	}
	switch rep.Status {
	case StatusSent:
		return Task{}, ErrAlreadySent
	case StatusApproved:
	default:
		return Task{}, fmt.Errorf("%w: dispatch from %s", ErrInvalidStateTransition, rep.Status)
	}

	if req.Scope == "" {
		req.Scope = rep.GeographicScope
	}
	all, err := d.lists.Lists(ctx)
	if err != nil {
		return Task{}, err
	}
	matched := mailing.MatchLists(all, req)

	recipients, candidates, err := d.loadRecipients(ctx, matched)
	if err != nil {
		return Task{}, err
	}

	// Reserve the idempotency keys and create the task in one critical
	// section, so two triggers for the same report can never both claim a
	// list.
	d.mu.Lock()
	if taskID, ok := d.inflight[reportID]; ok {
		task := *d.tasks[taskID]
		d.mu.Unlock()
		return task, nil
	}

	done := d.completed[reportID]
	var listIDs []string
	for _, listID := range candidates {
		if _, ok := done[listID]; ok {
			continue
		}
		listIDs = append(listIDs, listID)
	}
	// A retry whose lists were all mailed on a previous attempt still runs,
	// so it can finalize the report instead of failing.
	if len(listIDs) == 0 && len(done) == 0 {
		d.mu.Unlock()
		return Task{}, ErrNoRecipients
	}
	if d.completed[reportID] == nil {
		d.completed[reportID] = make(map[string]struct{})
	}
	for _, listID := range listIDs {
		d.completed[reportID][listID] = struct{}{}
	}

	task := &Task{
		ID:        uuid.NewString(),
		ReportID:  reportID,
		Status:    TaskQueued,
		StartedAt: time.Now().UTC(),
	}
	d.tasks[task.ID] = task
	d.inflight[reportID] = task.ID
	snapshot := *task
	d.mu.Unlock()

	go d.run(task.ID, rep, recipients, listIDs)
	return snapshot, nil
}

// Task looks up a dispatch task by handle.
func (d *Dispatcher) Task(id string) (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// loadRecipients loads subscribers for every matched list, skipping lists
// that are empty or vanished mid-flight.
func (d *Dispatcher) loadRecipients(ctx context.Context, matched []mailing.MailingList) (map[string][]mailing.Subscriber, []string, error) {
	byList := make(map[string][]mailing.Subscriber)
	var listIDs []string
	for _, list := range matched {
		subs, err := d.lists.SubscribersOf(ctx, list.ID)
		if err != nil {
			if errors.Is(err, mailing.ErrListNotFound) {
				continue
			}
			return nil, nil, err
		}
		if len(subs) == 0 {
			continue
		}
		byList[list.ID] = subs
		listIDs = append(listIDs, list.ID)
	}
	return byList, listIDs, nil
}

func (d *Dispatcher) run(taskID string, rep Report, byList map[string][]mailing.Subscriber, listIDs []string) {
	ctx := context.Background()
	d.setStatus(taskID, TaskRunning)

	sent, failed := 0, 0
	seen := make(map[string]struct{})
	for _, listID := range listIDs {
		for _, sub := range byList[listID] {
			key := mailing.NormalizeEmail(sub.Email)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			if err := d.mailer.SendReport(ctx, sub.Email, rep.Title, rep.Summary); err != nil {
				failed++
				d.observe("failed")
				d.logger.Warn("report email failed", "report_id", rep.ID, "recipient", sub.Email, "err", err)
				continue
			}
			sent++
			d.observe("sent")
		}
	}

	delivery := DeliveryRecord{
		SentAt:         time.Now().UTC(),
		MailingListIDs: listIDs,
		SentCount:      sent,
		FailedCount:    failed,
		Status:         deliveryStatus(sent, failed),
	}
	if _, err := d.reports.markSent(ctx, rep.ID, delivery); err != nil {
		d.finish(taskID, TaskFailed, sent, failed, err.Error())
		d.logger.Error("finalize dispatch", "report_id", rep.ID, "err", err)
		return
	}
	d.finish(taskID, TaskCompleted, sent, failed, "")
	d.logger.Info("report dispatched", "report_id", rep.ID, "lists", len(listIDs), "sent", sent, "failed", failed)
}

// markListDone records an idempotency key out of band, the state a crashed
// process leaves behind after mailing a list but before finalizing.
func (d *Dispatcher) markListDone(reportID, listID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.completed[reportID] == nil {
		d.completed[reportID] = make(map[string]struct{})
	}
	d.completed[reportID][listID] = struct{}{}
}

func (d *Dispatcher) setStatus(taskID string, status TaskStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if task, ok := d.tasks[taskID]; ok {
		task.Status = status
	}
}

func (d *Dispatcher) finish(taskID string, status TaskStatus, sent, failed int, errMsg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.tasks[taskID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	task.Status = status
	task.SentCount = sent
	task.FailedCount = failed
	task.FinishedAt = &now
	task.Error = errMsg
	delete(d.inflight, task.ReportID)
}

func (d *Dispatcher) observe(status string) {
	if d.OnEmail != nil {
		d.OnEmail(status)
	}
}

func deliveryStatus(sent, failed int) string {
	switch {
	case failed == 0:
		return "sent"
	case sent == 0:
		return "failed"
	default:
		return "partial"
	}
}

// SMTPMailer sends report emails over plain SMTP.
type SMTPMailer struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

// NewSMTPMailer builds a mailer; username may be empty for unauthenticated
// relays.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	mailer := &SMTPMailer{
		Addr: fmt.Sprintf("%s:%d", host, port),
		From: from,
	}
	if username != "" {
		mailer.Auth = smtp.PlainAuth("", username, password, host)
	}
	return mailer
}

// SendReport delivers one email. The context bounds only the caller's wait,
// not the SMTP dialogue.
func (m *SMTPMailer) SendReport(ctx context.Context, recipient, title, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Travel Risk Report: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		m.From, recipient, title, summary)
	if err := smtp.SendMail(m.Addr, m.Auth, m.From, []string{recipient}, []byte(body)); err != nil {
		return fmt.Errorf("report: send mail to %s: %w", recipient, err)
	}
	return nil
}
