package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"luggo/internal/domain"
	"luggo/internal/engine"
)

func (h handlers) registerAccounts(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create a customer or executor account",
		Tags:          []string{"auth"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest
	}) (*output[TokenResponse], error) {
		u, err := h.e.RegisterUser(ctx, engine.RegisterOptions{
			Email:    input.Body.Email,
			Password: input.Body.Password,
			Name:     input.Body.Name,
			Phone:    input.Body.Phone,
			Role:     input.Body.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return h.issue(u)
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Tags:        []string{"auth"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest
	}) (*output[TokenResponse], error) {
		u, err := h.e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return h.issue(u)
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*output[domain.User], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := h.e.GetUser(ctx, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-me",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Update profile",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest
	}) (*output[domain.User], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := h.e.UpdateProfile(ctx, caller.UserID, profileUpdate(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return respond(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Public profile",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[domain.User], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := h.e.PublicProfile(ctx, input.ID, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(u), nil
	})
}

func (h handlers) issue(u domain.User) (*output[TokenResponse], error) {
	token, expires, err := SignToken(h.auth.JWTSecret, u, h.auth.ttl(), time.Now())
	if err != nil {
		return nil, handleError(err)
	}
	return respond(TokenResponse{Token: token, ExpiresAt: expires.UTC().Format(time.RFC3339), User: u}), nil
}

func (h handlers) registerSubscriptions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/plans",
		Summary:     "Subscription plans",
		Tags:        []string{"subscriptions"},
	}, func(ctx context.Context, _ *struct{}) (*output[[]PlanResponse], error) {
		plans := make([]PlanResponse, 0)
		for _, name := range h.e.PlanNames() {
			p := h.e.Config.Subscriptions.Plans[name]
			plans = append(plans, PlanResponse{Name: name, Description: p.Description, Days: p.Days, Price: p.Price})
		}
		return respond(plans), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-my-subscription",
		Method:      http.MethodGet,
		Path:        "/subscriptions/me",
		Summary:     "Active subscription of the caller",
		Tags:        []string{"subscriptions"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*output[domain.Subscription], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := h.e.ActiveSubscription(ctx, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(s), nil
	})
}
