package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"luggo/internal/domain"
	"luggo/internal/engine/auth"
	"luggo/internal/events"
	"luggo/internal/repo"
)

// ReviewOptions are parameters for rating the other party of a completed task.
type ReviewOptions struct {
	TaskID   string `json:"task_id" validate:"required"`
	AuthorID string `json:"author_id" validate:"required"`
	Rating   int    `json:"rating" validate:"min=1,max=5"`
	Comment  string `json:"comment"`
}

// CreateReview lets the customer or the accepted executor of a completed task
// review the other party.
func (e Engine) CreateReview(ctx context.Context, opts ReviewOptions) (rv domain.Review, err error) {
	defer func() { e.observe("create_review", err) }()
	opts.Comment = strings.TrimSpace(opts.Comment)
	if err := validateStruct(opts); err != nil {
		return domain.Review{}, err
	}
	if err := checkLength("comment", opts.Comment, e.Config.Marketplace.MaxCommentLength); err != nil {
		return domain.Review{}, err
	}
	t, err := e.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Review{}, err
	}
	if t.AcceptedBidID == nil {
		return domain.Review{}, auth.Forbidden("review", "task was never contracted")
	}
	bid, err := e.acceptedBid(ctx, t)
	if err != nil {
		return domain.Review{}, err
	}
	var target string
	switch opts.AuthorID {
	case t.CustomerID:
		target = bid.ExecutorID
	case bid.ExecutorID:
		target = t.CustomerID
	default:
		return domain.Review{}, auth.Forbidden("review", "caller is not a party to the task")
	}
	if t.Status != domain.TaskCompleted {
		return domain.Review{}, invalidState("task is %s, want %s", t.Status, domain.TaskCompleted)
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.Review{}, err
	}
	defer tx.Rollback()
	rv, evt, err := e.insertReview(ctx, tx, t, opts.AuthorID, target, opts.Rating, opts.Comment, e.stamp())
	if err != nil {
		return domain.Review{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Review{}, err
	}
	e.publish(ctx, evt)
	return rv, nil
}

// insertReview stores a review and recomputes the target's mean rating from all
// of its reviews within tx.
func (e Engine) insertReview(ctx context.Context, tx *sql.Tx, t domain.Task, authorID, targetID string, rating int, comment, now string) (domain.Review, domain.Event, error) {
	exists, err := e.Repo.ReviewExists(ctx, tx, t.ID, authorID, targetID)
	if err != nil {
		return domain.Review{}, domain.Event{}, err
	}
	if exists {
		return domain.Review{}, domain.Event{}, conflict("%s already reviewed %s for task %s", authorID, targetID, t.ID)
	}
	rv := domain.Review{
		ID:        newID(),
		TaskID:    t.ID,
		AuthorID:  authorID,
		TargetID:  targetID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: now,
	}
	if err := e.Repo.InsertReview(ctx, tx, rv); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Review{}, domain.Event{}, conflict("%s already reviewed %s for task %s", authorID, targetID, t.ID)
		}
		return domain.Review{}, domain.Event{}, err
	}
	mean, count, err := e.Repo.RecomputeRating(ctx, tx, targetID)
	if err != nil {
		return domain.Review{}, domain.Event{}, lookup(err, "user", targetID)
	}
	evt, err := e.appendEvent(ctx, tx, domain.EventReviewCreated, "review", rv.ID, authorID, events.Payload{
		"taskId":       t.ID,
		"targetId":     targetID,
		"rating":       rating,
		"targetRating": mean,
		"reviewsCount": count,
	})
	if err != nil {
		return domain.Review{}, domain.Event{}, err
	}
	return rv, evt, nil
}

// ListReviews returns the reviews received by a user, newest first.
func (e Engine) ListReviews(ctx context.Context, targetID string) ([]domain.Review, error) {
	if _, err := e.GetUser(ctx, targetID); err != nil {
		return nil, err
	}
	return e.Repo.ListReviews(ctx, targetID)
}
