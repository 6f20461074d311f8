package engine

import (
	"context"
	"strings"

	"luggo/internal/domain"
	"luggo/internal/engine/auth"
	"luggo/internal/events"
)

type NewsOptions struct {
	AuthorID string `json:"author_id" validate:"required"`
	Title    string `json:"title" validate:"required,max=200"`
	Body     string `json:"body" validate:"required,max=20000"`
}

func (e Engine) PublishNews(ctx context.Context, opts NewsOptions) (n domain.News, err error) {
	defer func() { e.observe("publish_news", err) }()
	opts.Title = strings.TrimSpace(opts.Title)
	opts.Body = strings.TrimSpace(opts.Body)
	if err := validateStruct(opts); err != nil {
		return domain.News{}, err
	}
	author, err := e.GetUser(ctx, opts.AuthorID)
	if err != nil {
		return domain.News{}, err
	}
	if err := auth.Require(author.Role, auth.CapPublishNews); err != nil {
		return domain.News{}, err
	}
	n = domain.News{ID: newID(), Title: opts.Title, Body: opts.Body, AuthorID: author.ID, CreatedAt: e.stamp()}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return domain.News{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNews(ctx, tx, n); err != nil {
		return domain.News{}, err
	}
	if _, err := e.appendEvent(ctx, tx, domain.EventNewsPublished, "news", n.ID, author.ID, events.Payload{"title": n.Title}); err != nil {
		return domain.News{}, err
	}
	return n, tx.Commit()
}

func (e Engine) ListNews(ctx context.Context, limit int) ([]domain.News, error) {
	return e.Repo.ListNews(ctx, limit)
}

func (e Engine) DeleteNews(ctx context.Context, id, adminID string) error {
	admin, err := e.GetUser(ctx, adminID)
	if err != nil {
		return err
	}
	if err := auth.Require(admin.Role, auth.CapPublishNews); err != nil {
		return err
	}
	tx, err := e.Repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteNews(ctx, tx, id); err != nil {
		return lookup(err, "news", id)
	}
	return tx.Commit()
}
