package luggosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Luggo HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// User is the public part of an account.
type User struct {
	ID           string  `json:"id"`
	Email        string  `json:"email,omitempty"`
	Name         string  `json:"name"`
	Phone        string  `json:"phone,omitempty"`
	Role         string  `json:"role"`
	Rating       float64 `json:"rating"`
	ReviewsCount int     `json:"reviews_count"`
}

// Task represents the API task model (partial).
type Task struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	FromAddress   string  `json:"from_address"`
	ToAddress     string  `json:"to_address"`
	Category      string  `json:"category"`
	Status        string  `json:"status"`
	CustomerID    string  `json:"customer_id"`
	AcceptedBidID *string `json:"accepted_bid_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// NewTask is the payload for posting a task.
type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	ServiceDate string `json:"service_date,omitempty"`
	Category    string `json:"category"`
}

// Bid is an executor's offer. Contacts are filled only when visible to the caller.
type Bid struct {
	ID            string  `json:"id"`
	TaskID        string  `json:"task_id"`
	ExecutorID    string  `json:"executor_id"`
	Price         float64 `json:"price"`
	Comment       string  `json:"comment,omitempty"`
	Status        string  `json:"status"`
	ExecutorName  string  `json:"executor_name,omitempty"`
	ExecutorEmail string  `json:"executor_email,omitempty"`
	ExecutorPhone string  `json:"executor_phone,omitempty"`
}

// Notification is one inbox entry.
type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	Link      string `json:"link,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Inbox wraps the notification listing.
type Inbox struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

// TaskPage wraps list responses with cursors.
type TaskPage struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type tokenResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates an account and keeps its token for later calls.
func (c *Client) Register(ctx context.Context, email, password, name, role string) (User, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "auth/register", map[string]any{
		"email":    email,
		"password": password,
		"name":     name,
		"role":     role,
	}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp.User, err
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp.User, err
}

// CreateTask posts a task.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

// Tasks returns one page of tasks, newest first.
func (c *Client) Tasks(ctx context.Context, status string, limit int, cursor string) (TaskPage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp TaskPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitBid offers a price for a task.
func (c *Client) SubmitBid(ctx context.Context, taskID string, price float64, comment string) (Bid, error) {
	var resp Bid
	endpoint := fmt.Sprintf("tasks/%s/bids", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"price": price, "comment": comment}, &resp)
	return resp, err
}

// Bids lists the bids on a task.
func (c *Client) Bids(ctx context.Context, taskID string) ([]Bid, error) {
	var resp []Bid
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%s/bids", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// AcceptBid selects a bid and returns the task now in progress.
func (c *Client) AcceptBid(ctx context.Context, bidID string) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("bids/%s/accept", url.PathEscape(bidID)), nil, &resp)
	return resp.Task, err
}

// CompleteJob reports the work done.
func (c *Client) CompleteJob(ctx context.Context, taskID, note string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/complete", url.PathEscape(taskID)), map[string]any{"note": note}, &resp)
	return resp, err
}

// ConfirmCompletion closes the task, or sends it back when confirmed is false.
// A zero rating leaves no review.
func (c *Client) ConfirmCompletion(ctx context.Context, taskID string, confirmed bool, rating int, comment string) (Task, error) {
	body := map[string]any{"confirmed": confirmed}
	if rating > 0 {
		body["rating"] = rating
		body["comment"] = comment
	}
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/confirm", url.PathEscape(taskID)), body, &resp)
	return resp.Task, err
}

// Notifications returns the caller's inbox.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) (Inbox, error) {
	endpoint := "notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp Inbox
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkAllRead marks the whole inbox read.
func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var resp struct {
		Marked int64 `json:"marked"`
	}
	err := c.do(ctx, http.MethodPost, "notifications/read-all", nil, &resp)
	return resp.Marked, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
