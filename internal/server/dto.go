package server

import (
	"luggo/internal/domain"
	"luggo/internal/engine"
)

// Request payloads

type RegisterRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role" enum:"customer,executor"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Name         *string `json:"name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	ShowContacts *bool   `json:"show_contacts,omitempty"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	ServiceDate string `json:"service_date,omitempty"`
	Category    string `json:"category" enum:"flat,office,intercity,garbage"`
}

type CompleteJobRequest struct {
	Note string `json:"note,omitempty"`
}

type ConfirmCompletionRequest struct {
	Confirmed bool   `json:"confirmed"`
	Rating    *int   `json:"rating,omitempty" minimum:"1" maximum:"5"`
	Comment   string `json:"comment,omitempty"`
}

type SubmitBidRequest struct {
	Price   float64 `json:"price" exclusiveMinimum:"0"`
	Comment string  `json:"comment,omitempty"`
}

type UpdateBidRequest struct {
	Price   *float64 `json:"price,omitempty" exclusiveMinimum:"0"`
	Comment *string  `json:"comment,omitempty"`
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" minimum:"1" maximum:"5"`
	Comment string `json:"comment,omitempty"`
}

type SendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
}

type PublishNewsRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type GrantSubscriptionRequest struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
}

type CancelTaskRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Responses

type HealthResponse struct {
	Status string `json:"status"`
}

type TokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

type TaskPage struct {
	Items      []domain.Task `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type MarkedResponse struct {
	Marked int64 `json:"marked"`
}

type PlanResponse struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Days        int     `json:"days"`
	Price       float64 `json:"price"`
}

type StatsResponse struct {
	TaskCounts map[string]int `json:"task_counts"`
}

type output[T any] struct {
	Body T
}

func respond[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

func profileUpdate(req UpdateProfileRequest) engine.ProfileUpdate {
	return engine.ProfileUpdate{Name: req.Name, Phone: req.Phone, ShowContacts: req.ShowContacts}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
