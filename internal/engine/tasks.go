package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"luggo/internal/domain"
	"luggo/internal/engine/auth"
	"luggo/internal/events"
	"luggo/internal/repo"
)

// TaskCreateOptions are parameters for posting a task.
type TaskCreateOptions struct {
	CustomerID  string `json:"customer_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	FromAddress string `json:"from_address" validate:"required,max=500"`
	ToAddress   string `json:"to_address" validate:"required,max=500"`
	ServiceDate string `json:"service_date"`
	Category    string `json:"category" validate:"required,oneof=flat office intercity garbage"`
}

// CreateTask posts a task in active status. The draft status is never used by
// the normal flow.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (t domain.Task, err error) {
	defer func() { e.observe("create_task", err) }()
	opts.Title = strings.TrimSpace(opts.Title)
	if err := validateStruct(opts); err != nil {
		return domain.Task{}, err
	}
	if opts.ServiceDate != "" {
		if _, perr := time.Parse(time.DateOnly, opts.ServiceDate); perr != nil {
			if _, perr := time.Parse(time.RFC3339, opts.ServiceDate); perr != nil {
				return domain.Task{}, invalid("service_date", "must be YYYY-MM-DD or RFC3339")
			}
		}
	}
	customer, err := e.GetUser(ctx, opts.CustomerID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.Require(customer.Role, auth.CapCreateTask); err != nil {
		return domain.Task{}, err
	}
	now := e.stamp()
	t = domain.Task{
		ID:          newID(),
		Title:       opts.Title,
		Description: opts.Description,
		FromAddress: opts.FromAddress,
		ToAddress:   opts.ToAddress,
		ServiceDate: opts.ServiceDate,
		Category:    opts.Category,
		Status:      domain.TaskActive,
		CustomerID:  customer.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventTaskCreated, "task", t.ID, customer.ID, events.Payload{
		"title":       t.Title,
		"category":    t.Category,
		"fromAddress": t.FromAddress,
		"toAddress":   t.ToAddress,
		"serviceDate": t.ServiceDate,
		"customerId":  customer.ID,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.publish(ctx, evt)
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	return t, lookup(err, "task", id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	if f.Status != "" && !validTaskStatus(f.Status) {
		return nil, invalid("status", "unknown status "+f.Status)
	}
	if f.Category != "" && !validCategory(f.Category) {
		return nil, invalid("category", "unknown category "+f.Category)
	}
	return e.Repo.ListTasks(ctx, f)
}

func validTaskStatus(s string) bool {
	switch s {
	case domain.TaskDraft, domain.TaskActive, domain.TaskInProgress, domain.TaskAwaitingConfirmation, domain.TaskCompleted, domain.TaskCancelled:
		return true
	}
	return false
}

func validCategory(c string) bool {
	for _, known := range domain.TaskCategories {
		if c == known {
			return true
		}
	}
	return false
}

// CompleteJob is the executor's report that the work is done; the task waits
// for the customer's confirmation.
func (e Engine) CompleteJob(ctx context.Context, taskID, executorID, note string) (t domain.Task, err error) {
	defer func() { e.observe("complete_job", err) }()
	if err := checkLength("note", note, e.Config.Marketplace.MaxCommentLength); err != nil {
		return domain.Task{}, err
	}
	t, err = e.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.AcceptedBidID == nil {
		return domain.Task{}, auth.Forbidden("complete job", "task has no accepted bid")
	}
	bid, err := e.acceptedBid(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	if bid.ExecutorID != executorID {
		return domain.Task{}, auth.Forbidden("complete job", "caller does not hold the accepted bid")
	}
	if t.Status != domain.TaskInProgress {
		return domain.Task{}, invalidState("task is %s, want %s", t.Status, domain.TaskInProgress)
	}
	now := e.stamp()
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.TransitionTask(ctx, tx, t.ID, domain.TaskInProgress, domain.TaskAwaitingConfirmation, now)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, invalidState("task %s is no longer %s", t.ID, domain.TaskInProgress)
	}
	if note = strings.TrimSpace(note); note != "" {
		if _, err := e.Repo.UpdateBid(ctx, tx, bid.ID, repo.BidPatch{CompletionNote: &note}, now, true); err != nil {
			return domain.Task{}, err
		}
	}
	executor, err := e.Repo.GetUserTx(ctx, tx, executorID)
	if err != nil {
		return domain.Task{}, lookup(err, "user", executorID)
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventTaskAwaitingConfirmation, "task", t.ID, executorID, events.Payload{
		"taskTitle":    t.Title,
		"customerId":   t.CustomerID,
		"executorId":   executorID,
		"executorName": executor.Name,
		"bidId":        bid.ID,
		"note":         note,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.publish(ctx, evt)
	t.Status = domain.TaskAwaitingConfirmation
	t.UpdatedAt = now
	return t, nil
}

// ConfirmOptions are the customer's verdict on reported work.
type ConfirmOptions struct {
	TaskID     string `json:"task_id" validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`
	Confirmed  bool   `json:"confirmed"`
	Rating     *int   `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment    string `json:"comment"`
}

// ConfirmResult is the task after confirmation plus the review, if one was left.
type ConfirmResult struct {
	Task   domain.Task    `json:"task"`
	Review *domain.Review `json:"review,omitempty"`
}

// ConfirmCompletion closes the task (optionally reviewing the executor) or
// sends it back for rework.
func (e Engine) ConfirmCompletion(ctx context.Context, opts ConfirmOptions) (res ConfirmResult, err error) {
	defer func() { e.observe("confirm_completion", err) }()
	if err := validateStruct(opts); err != nil {
		return res, err
	}
	if err := checkLength("comment", opts.Comment, e.Config.Marketplace.MaxCommentLength); err != nil {
		return res, err
	}
	t, err := e.GetTask(ctx, opts.TaskID)
	if err != nil {
		return res, err
	}
	if t.CustomerID != opts.CustomerID {
		return res, auth.Forbidden("confirm completion", "caller does not own the task")
	}
	if t.Status != domain.TaskAwaitingConfirmation {
		return res, invalidState("task is %s, want %s", t.Status, domain.TaskAwaitingConfirmation)
	}
	bid, err := e.acceptedBid(ctx, t)
	if err != nil {
		return res, err
	}
	now := e.stamp()
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	to := domain.TaskCompleted
	evtType := domain.EventTaskCompleted
	if !opts.Confirmed {
		to = domain.TaskInProgress
		evtType = domain.EventTaskReworkRequested
	}
	ok, err := e.Repo.TransitionTask(ctx, tx, t.ID, domain.TaskAwaitingConfirmation, to, now)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, invalidState("task %s is no longer %s", t.ID, domain.TaskAwaitingConfirmation)
	}
	customer, err := e.Repo.GetUserTx(ctx, tx, t.CustomerID)
	if err != nil {
		return res, lookup(err, "user", t.CustomerID)
	}
	payload := events.Payload{
		"taskTitle":    t.Title,
		"customerId":   t.CustomerID,
		"customerName": customer.Name,
		"executorId":   bid.ExecutorID,
		"confirmed":    opts.Confirmed,
		"comment":      opts.Comment,
	}
	var pending []domain.Event
	if opts.Confirmed && opts.Rating != nil {
		rv, revt, err := e.insertReview(ctx, tx, t, opts.CustomerID, bid.ExecutorID, *opts.Rating, opts.Comment, now)
		if err != nil {
			return res, err
		}
		res.Review = &rv
		payload["rating"] = rv.Rating
		pending = append(pending, revt)
	}
	evt, err := e.appendEvent(ctx, tx, evtType, "task", t.ID, opts.CustomerID, payload)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	e.publish(ctx, append([]domain.Event{evt}, pending...)...)
	t.Status = to
	t.UpdatedAt = now
	res.Task = t
	return res, nil
}

// CancelTask is the administrative exit from any non-terminal state.
func (e Engine) CancelTask(ctx context.Context, taskID, adminID, reason string) (t domain.Task, err error) {
	defer func() { e.observe("cancel_task", err) }()
	admin, err := e.GetUser(ctx, adminID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.Require(admin.Role, auth.CapCancelTask); err != nil {
		return domain.Task{}, err
	}
	t, err = e.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.TaskCompleted || t.Status == domain.TaskCancelled {
		return domain.Task{}, invalidState("task is already %s", t.Status)
	}
	now := e.stamp()
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.TransitionTask(ctx, tx, t.ID, t.Status, domain.TaskCancelled, now)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, invalidState("task %s changed concurrently", t.ID)
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventTaskCancelled, "task", t.ID, adminID, events.Payload{
		"taskTitle":  t.Title,
		"customerId": t.CustomerID,
		"from":       t.Status,
		"reason":     reason,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.publish(ctx, evt)
	t.Status = domain.TaskCancelled
	t.UpdatedAt = now
	return t, nil
}

// DeleteTask physically removes a task with its bids, reviews and messages.
func (e Engine) DeleteTask(ctx context.Context, taskID, adminID string) (err error) {
	defer func() { e.observe("delete_task", err) }()
	admin, err := e.GetUser(ctx, adminID)
	if err != nil {
		return err
	}
	if err := auth.Require(admin.Role, auth.CapDeleteTask); err != nil {
		return err
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
		return lookup(err, "task", taskID)
	}
	if _, err := e.appendEvent(ctx, tx, domain.EventTaskDeleted, "task", taskID, adminID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) acceptedBid(ctx context.Context, t domain.Task) (domain.Bid, error) {
	if t.AcceptedBidID == nil {
		return domain.Bid{}, fmt.Errorf("task %s is %s without an accepted bid", t.ID, t.Status)
	}
	b, err := e.Repo.GetBid(ctx, *t.AcceptedBidID)
	return b, lookup(err, "bid", *t.AcceptedBidID)
}
