package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"luggo/internal/domain"
	"luggo/internal/engine"
)

func (h handlers) registerReviews(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-review",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/reviews",
		Summary:       "Review the other party of a completed task",
		Tags:          []string{"reviews"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CreateReviewRequest
	}) (*output[domain.Review], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rv, err := h.e.CreateReview(ctx, engine.ReviewOptions{
			TaskID:   input.ID,
			AuthorID: caller.UserID,
			Rating:   input.Body.Rating,
			Comment:  input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(rv), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-reviews",
		Method:      http.MethodGet,
		Path:        "/users/{id}/reviews",
		Summary:     "Reviews received by a user",
		Tags:        []string{"reviews"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[[]domain.Review], error) {
		reviews, err := h.e.ListReviews(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(reviews)), nil
	})
}

func (h handlers) registerMessages(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/messages",
		Summary:       "Message the other party about a task",
		Tags:          []string{"messages"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body SendMessageRequest
	}) (*output[domain.Message], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := h.e.SendMessage(ctx, engine.MessageOptions{
			TaskID:      input.ID,
			SenderID:    caller.UserID,
			RecipientID: input.Body.RecipientID,
			Body:        input.Body.Body,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(m), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/messages",
		Summary:     "Messages of a task the caller took part in",
		Tags:        []string{"messages"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[[]domain.Message], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		msgs, err := h.e.ListMessages(ctx, input.ID, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(msgs)), nil
	})
}

func (h handlers) registerNotifications(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Caller's notifications, newest first",
		Tags:        []string{"notifications"},
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit"`
	}) (*output[engine.Inbox], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inbox, err := h.e.ListNotifications(ctx, caller.UserID, input.Unread, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(inbox), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mark-notification-read",
		Method:        http.MethodPost,
		Path:          "/notifications/{id}/read",
		Summary:       "Mark a notification read",
		Tags:          []string{"notifications"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.MarkNotificationRead(ctx, input.ID, caller.UserID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark every notification read",
		Tags:        []string{"notifications"},
	}, func(ctx context.Context, _ *struct{}) (*output[MarkedResponse], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := h.e.MarkAllNotificationsRead(ctx, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(MarkedResponse{Marked: n}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-notification",
		Method:        http.MethodDelete,
		Path:          "/notifications/{id}",
		Summary:       "Delete a notification",
		Tags:          []string{"notifications"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.DeleteNotification(ctx, input.ID, caller.UserID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func (h handlers) registerNews(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-news",
		Method:      http.MethodGet,
		Path:        "/news",
		Summary:     "Platform news, newest first",
		Tags:        []string{"news"},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*output[[]domain.News], error) {
		items, err := h.e.ListNews(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "publish-news",
		Method:        http.MethodPost,
		Path:          "/news",
		Summary:       "Publish a news item",
		Tags:          []string{"news"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body PublishNewsRequest
	}) (*output[domain.News], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := h.e.PublishNews(ctx, engine.NewsOptions{
			AuthorID: caller.UserID,
			Title:    input.Body.Title,
			Body:     input.Body.Body,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-news",
		Method:        http.MethodDelete,
		Path:          "/news/{id}",
		Summary:       "Delete a news item",
		Tags:          []string{"news"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.DeleteNews(ctx, input.ID, caller.UserID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}
