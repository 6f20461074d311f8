package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"luggo/internal/domain"
	"luggo/internal/engine/auth"
)

// requireAdmin gates read-only admin views on the token role. Mutations
// re-check the stored role inside the engine.
func requireAdmin(ctx context.Context, action string) error {
	caller, authErr := callerFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	if !auth.Can(caller.Role, auth.CapAdminister) {
		return handleError(auth.Forbidden(action, "admin only"))
	}
	return nil
}

func (h handlers) registerAdmin(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "grant-subscription",
		Method:        http.MethodPost,
		Path:          "/admin/subscriptions",
		Summary:       "Grant a subscription plan to an executor",
		Tags:          []string{"admin"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body GrantSubscriptionRequest
	}) (*output[domain.Subscription], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := h.e.GrantSubscription(ctx, caller.UserID, input.Body.UserID, input.Body.Plan)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-task",
		Method:      http.MethodPost,
		Path:        "/admin/tasks/{id}/cancel",
		Summary:     "Cancel a task in any non-terminal status",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CancelTaskRequest `required:"false"`
	}) (*output[domain.Task], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.CancelTask(ctx, input.ID, caller.UserID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/admin/tasks/{id}",
		Summary:       "Delete a task with its bids, reviews and messages",
		Tags:          []string{"admin"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.e.DeleteTask(ctx, input.ID, caller.UserID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "List accounts",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role string `query:"role"`
	}) (*output[[]domain.User], error) {
		if err := requireAdmin(ctx, "list_users"); err != nil {
			return nil, err
		}
		users, err := h.e.ListUsers(ctx, input.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(users)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "marketplace-stats",
		Method:      http.MethodGet,
		Path:        "/admin/stats",
		Summary:     "Task counts by status",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*output[StatsResponse], error) {
		if err := requireAdmin(ctx, "stats"); err != nil {
			return nil, err
		}
		counts, err := h.e.MarketplaceStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(StatsResponse{TaskCounts: counts}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "event-log",
		Method:      http.MethodGet,
		Path:        "/admin/events",
		Summary:     "Recent domain events",
		Tags:        []string{"admin"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*output[[]domain.Event], error) {
		if err := requireAdmin(ctx, "events"); err != nil {
			return nil, err
		}
		evts, err := h.e.EventLog(ctx, normalizeLimit(input.Limit), input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(evts)), nil
	})
}
