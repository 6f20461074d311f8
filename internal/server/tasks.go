package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"luggo/internal/domain"
	"luggo/internal/engine"
	"luggo/internal/repo"
)

func (h handlers) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Post a moving task",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest
	}) (*output[domain.Task], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.CreateTask(ctx, engine.TaskCreateOptions{
			CustomerID:  caller.UserID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			FromAddress: input.Body.FromAddress,
			ToAddress:   input.Body.ToAddress,
			ServiceDate: input.Body.ServiceDate,
			Category:    input.Body.Category,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks, newest first",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		Category   string `query:"category"`
		CustomerID string `query:"customer_id"`
		Mine       bool   `query:"mine"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*output[TaskPage], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursor, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "cursor"})
		}
		f := repo.TaskFilters{
			Status:     input.Status,
			Category:   input.Category,
			CustomerID: input.CustomerID,
			Limit:      normalizeLimit(input.Limit),
			Cursor:     cursor,
		}
		if input.Mine {
			f.CustomerID = caller.UserID
		}
		items, err := h.e.ListTasks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		page := TaskPage{Items: nonNil(items)}
		if len(items) == f.Limit {
			last := items[len(items)-1]
			page.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		return respond(page), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[domain.Task], error) {
		t, err := h.e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-job",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/complete",
		Summary:     "Executor reports the work done",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CompleteJobRequest `required:"false"`
	}) (*output[domain.Task], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.e.CompleteJob(ctx, input.ID, caller.UserID, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-completion",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/confirm",
		Summary:     "Customer confirms the work or sends it back for rework",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body ConfirmCompletionRequest
	}) (*output[engine.ConfirmResult], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.e.ConfirmCompletion(ctx, engine.ConfirmOptions{
			TaskID:     input.ID,
			CustomerID: caller.UserID,
			Confirmed:  input.Body.Confirmed,
			Rating:     input.Body.Rating,
			Comment:    input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})
}

func (h handlers) registerBids(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-bid",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/bids",
		Summary:       "Offer a price for a task",
		Tags:          []string{"bids"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body SubmitBidRequest
	}) (*output[domain.Bid], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := h.e.SubmitBid(ctx, engine.SubmitBidOptions{
			TaskID:     input.ID,
			ExecutorID: caller.UserID,
			Price:      input.Body.Price,
			Comment:    input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-bids",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/bids",
		Summary:     "Bids on a task, newest first",
		Tags:        []string{"bids"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[[]domain.BidView], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bids, err := h.e.ListBids(ctx, input.ID, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(bids)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-my-bids",
		Method:      http.MethodGet,
		Path:        "/bids/mine",
		Summary:     "Bids placed by the caller",
		Tags:        []string{"bids"},
	}, func(ctx context.Context, _ *struct{}) (*output[[]domain.BidView], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		bids, err := h.e.ListExecutorBids(ctx, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNil(bids)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-bid",
		Method:      http.MethodPatch,
		Path:        "/bids/{id}",
		Summary:     "Edit price or comment of a pending bid",
		Tags:        []string{"bids"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateBidRequest
	}) (*output[domain.Bid], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := h.e.UpdateBid(ctx, engine.UpdateBidOptions{
			BidID:    input.ID,
			CallerID: caller.UserID,
			Price:    input.Body.Price,
			Comment:  input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-bid",
		Method:      http.MethodPost,
		Path:        "/bids/{id}/accept",
		Summary:     "Accept a bid; all other bids on the task are rejected",
		Tags:        []string{"bids"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[engine.AcceptResult], error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.e.AcceptBid(ctx, input.ID, caller.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})
}
