package engine

import (
	"context"
	"errors"
	"strings"

	"luggo/internal/domain"
	"luggo/internal/engine/auth"
	"luggo/internal/events"
	"luggo/internal/repo"
)

// SubmitBidOptions are parameters for an executor's offer.
type SubmitBidOptions struct {
	TaskID     string  `json:"task_id" validate:"required"`
	ExecutorID string  `json:"executor_id" validate:"required"`
	Price      float64 `json:"price" validate:"gt=0"`
	Comment    string  `json:"comment"`
}

func (e Engine) SubmitBid(ctx context.Context, opts SubmitBidOptions) (b domain.Bid, err error) {
	defer func() { e.observe("submit_bid", err) }()
	opts.Comment = strings.TrimSpace(opts.Comment)
	if err := validateStruct(opts); err != nil {
		return domain.Bid{}, err
	}
	if err := checkLength("comment", opts.Comment, e.Config.Marketplace.MaxCommentLength); err != nil {
		return domain.Bid{}, err
	}
	executor, err := e.GetUser(ctx, opts.ExecutorID)
	if err != nil {
		return domain.Bid{}, err
	}
	t, err := e.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Bid{}, err
	}
	if err := auth.Require(executor.Role, auth.CapSubmitBid); err != nil {
		return domain.Bid{}, err
	}
	if t.CustomerID == executor.ID {
		return domain.Bid{}, auth.Forbidden("submit bid", "cannot bid on own task")
	}
	if t.Status != domain.TaskActive {
		return domain.Bid{}, auth.Forbidden("submit bid", "task is "+t.Status)
	}
	now := e.stamp()
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Bid{}, err
	}
	defer tx.Rollback()
	if e.Config.Marketplace.RequireSubscription {
		if _, err := e.Repo.ActiveSubscription(ctx, tx, executor.ID, now); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Bid{}, auth.Forbidden("submit bid", "active subscription required")
			}
			return domain.Bid{}, err
		}
	}
	if _, err := e.Repo.FindBid(ctx, tx, t.ID, executor.ID); err == nil {
		return domain.Bid{}, conflict("executor %s already bid on task %s", executor.ID, t.ID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Bid{}, err
	}
	b = domain.Bid{
		ID:         newID(),
		TaskID:     t.ID,
		ExecutorID: executor.ID,
		Price:      opts.Price,
		Comment:    opts.Comment,
		Status:     domain.BidPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Repo.InsertBid(ctx, tx, b); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Bid{}, conflict("executor %s already bid on task %s", executor.ID, t.ID)
		}
		return domain.Bid{}, err
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventBidSubmitted, "bid", b.ID, executor.ID, events.Payload{
		"taskId":       t.ID,
		"taskTitle":    t.Title,
		"customerId":   t.CustomerID,
		"executorId":   executor.ID,
		"executorName": executor.Name,
		"price":        b.Price,
	})
	if err != nil {
		return domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, err
	}
	e.publish(ctx, evt)
	return b, nil
}

// AcceptResult is the outcome of accepting a bid.
type AcceptResult struct {
	Task domain.Task `json:"task"`
	Bid  domain.Bid  `json:"bid"`
}

// AcceptBid selects a bid for its task. The task move to in_progress, the bid
// acceptance and the rejection of every sibling commit together or not at all;
// the task update is conditional on the task still being active, so of two
// concurrent acceptances exactly one succeeds.
func (e Engine) AcceptBid(ctx context.Context, bidID, callerID string) (res AcceptResult, err error) {
	defer func() { e.observe("accept_bid", err) }()
	b, err := e.Repo.GetBid(ctx, bidID)
	if err != nil {
		return res, lookup(err, "bid", bidID)
	}
	t, err := e.GetTask(ctx, b.TaskID)
	if err != nil {
		return res, err
	}
	if t.CustomerID != callerID {
		return res, auth.Forbidden("accept bid", "caller does not own the task")
	}
	if t.Status != domain.TaskActive {
		return res, invalidState("task is %s, want %s", t.Status, domain.TaskActive)
	}
	now := e.stamp()
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.AcceptTaskBid(ctx, tx, t.ID, b.ID, now)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, invalidState("task %s is no longer %s", t.ID, domain.TaskActive)
	}
	if err := e.Repo.SettleBids(ctx, tx, t.ID, b.ID, now); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return res, invalidState("task %s already has an accepted bid", t.ID)
		}
		return res, err
	}
	customer, err := e.Repo.GetUserTx(ctx, tx, t.CustomerID)
	if err != nil {
		return res, lookup(err, "user", t.CustomerID)
	}
	if t, err = e.Repo.GetTaskTx(ctx, tx, t.ID); err != nil {
		return res, err
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventBidAccepted, "bid", b.ID, callerID, events.Payload{
		"taskId":       t.ID,
		"taskTitle":    t.Title,
		"executorId":   b.ExecutorID,
		"customerId":   t.CustomerID,
		"customerName": customer.Name,
		"price":        b.Price,
	})
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	e.publish(ctx, evt)
	b.Status = domain.BidAccepted
	b.UpdatedAt = now
	return AcceptResult{Task: t, Bid: b}, nil
}

// UpdateBidOptions is a partial edit of a bid.
type UpdateBidOptions struct {
	BidID    string   `json:"bid_id" validate:"required"`
	CallerID string   `json:"caller_id" validate:"required"`
	Price    *float64 `json:"price" validate:"omitempty,gt=0"`
	Comment  *string  `json:"comment"`
}

// UpdateBid edits price or comment of a bid that has not been accepted. The
// task's status is not consulted: a bid on a cancelled task stays editable.
func (e Engine) UpdateBid(ctx context.Context, opts UpdateBidOptions) (b domain.Bid, err error) {
	defer func() { e.observe("update_bid", err) }()
	if err := validateStruct(opts); err != nil {
		return domain.Bid{}, err
	}
	if opts.Comment != nil {
		trimmed := strings.TrimSpace(*opts.Comment)
		opts.Comment = &trimmed
		if err := checkLength("comment", trimmed, e.Config.Marketplace.MaxCommentLength); err != nil {
			return domain.Bid{}, err
		}
	}
	b, err = e.Repo.GetBid(ctx, opts.BidID)
	if err != nil {
		return domain.Bid{}, lookup(err, "bid", opts.BidID)
	}
	if b.Accepted() {
		return domain.Bid{}, invalidState("bid %s is accepted and can no longer change", b.ID)
	}
	if b.ExecutorID != opts.CallerID {
		return domain.Bid{}, auth.Forbidden("update bid", "caller is not the bid's executor")
	}
	if opts.Price == nil && opts.Comment == nil {
		return b, nil
	}
	now := e.stamp()
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Bid{}, err
	}
	defer tx.Rollback()
	ok, err := e.Repo.UpdateBid(ctx, tx, b.ID, repo.BidPatch{Price: opts.Price, Comment: opts.Comment}, now, false)
	if err != nil {
		return domain.Bid{}, err
	}
	if !ok {
		return domain.Bid{}, invalidState("bid %s was accepted concurrently", b.ID)
	}
	payload := events.Payload{"taskId": b.TaskID}
	if opts.Price != nil {
		payload["price"] = *opts.Price
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventBidUpdated, "bid", b.ID, opts.CallerID, payload)
	if err != nil {
		return domain.Bid{}, err
	}
	updated, err := e.Repo.GetBidTx(ctx, tx, b.ID)
	if err != nil {
		return domain.Bid{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, err
	}
	e.publish(ctx, evt)
	return updated, nil
}

// ListBids returns a task's bids newest first. Executor contacts are visible
// only to that executor or when the executor opted in.
func (e Engine) ListBids(ctx context.Context, taskID, viewerID string) ([]domain.BidView, error) {
	if _, err := e.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	bids, err := e.Repo.ListTaskBids(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return redactContacts(bids, viewerID), nil
}

// ListExecutorBids returns the executor's own bids.
func (e Engine) ListExecutorBids(ctx context.Context, executorID string) ([]domain.BidView, error) {
	return e.Repo.ListExecutorBids(ctx, executorID)
}

func redactContacts(bids []domain.BidView, viewerID string) []domain.BidView {
	for i := range bids {
		if bids[i].ExecutorID == viewerID || bids[i].ShowContacts {
			continue
		}
		bids[i].ExecutorEmail = ""
		bids[i].ExecutorPhone = ""
	}
	return bids
}
