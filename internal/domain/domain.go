package domain

// Roles.
const (
	RoleCustomer = "customer"
	RoleExecutor = "executor"
	RoleAdmin    = "admin"
)

// Task statuses.
const (
	TaskDraft                = "draft"
	TaskActive               = "active"
	TaskInProgress           = "in_progress"
	TaskAwaitingConfirmation = "awaiting_confirmation"
	TaskCompleted            = "completed"
	TaskCancelled            = "cancelled"
)

// Task categories.
const (
	CategoryFlat      = "flat"
	CategoryOffice    = "office"
	CategoryIntercity = "intercity"
	CategoryGarbage   = "garbage"
)

// Bid statuses. A bid is accepted iff its status is BidAccepted.
const (
	BidPending  = "pending"
	BidAccepted = "accepted"
	BidRejected = "rejected"
)

// Notification types.
const (
	NotificationNewBid        = "new_bid"
	NotificationBidAccepted   = "bid_accepted"
	NotificationTaskCompleted = "task_completed"
	NotificationSystem        = "system"
)

// Subscription statuses.
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
)

// Domain event types appended on every lifecycle transition.
const (
	EventTaskCreated              = "task.created"
	EventTaskAwaitingConfirmation = "task.awaiting_confirmation"
	EventTaskCompleted            = "task.completed"
	EventTaskReworkRequested      = "task.rework_requested"
	EventTaskCancelled            = "task.cancelled"
	EventTaskDeleted              = "task.deleted"
	EventBidSubmitted             = "bid.submitted"
	EventBidAccepted              = "bid.accepted"
	EventBidUpdated               = "bid.updated"
	EventReviewCreated            = "review.created"
	EventMessageSent              = "message.sent"
	EventSubscriptionGranted      = "subscription.granted"
	EventSubscriptionExpired      = "subscription.expired"
	EventNewsPublished            = "news.published"
)

var TaskCategories = []string{CategoryFlat, CategoryOffice, CategoryIntercity, CategoryGarbage}

type User struct {
	ID           string  `json:"id"`
	Email        string  `json:"email,omitempty"`
	PasswordHash string  `json:"-"`
	Name         string  `json:"name"`
	Phone        string  `json:"phone,omitempty"`
	Role         string  `json:"role" enum:"customer,executor,admin"`
	ShowContacts bool    `json:"show_contacts"`
	Rating       float64 `json:"rating"`
	ReviewsCount int     `json:"reviews_count"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type Task struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	FromAddress   string  `json:"from_address"`
	ToAddress     string  `json:"to_address"`
	ServiceDate   string  `json:"service_date,omitempty"`
	Category      string  `json:"category" enum:"flat,office,intercity,garbage"`
	Status        string  `json:"status" enum:"draft,active,in_progress,awaiting_confirmation,completed,cancelled"`
	CustomerID    string  `json:"customer_id"`
	AcceptedBidID *string `json:"accepted_bid_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Bid struct {
	ID             string  `json:"id"`
	TaskID         string  `json:"task_id"`
	ExecutorID     string  `json:"executor_id"`
	Price          float64 `json:"price"`
	Comment        string  `json:"comment,omitempty"`
	Status         string  `json:"status" enum:"pending,accepted,rejected"`
	CompletionNote string  `json:"completion_note,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// Accepted reports whether the bid is the task's selected bid.
func (b Bid) Accepted() bool { return b.Status == BidAccepted }

// BidView is a bid joined with its executor's public profile.
type BidView struct {
	Bid
	ExecutorName   string  `json:"executor_name"`
	ExecutorRating float64 `json:"executor_rating"`
	ExecutorEmail  string  `json:"executor_email,omitempty"`
	ExecutorPhone  string  `json:"executor_phone,omitempty"`
	ShowContacts   bool    `json:"-"`
}

type Review struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	AuthorID  string `json:"author_id"`
	TargetID  string `json:"target_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Type        string         `json:"type" enum:"new_bid,bid_accepted,task_completed,system"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Read        bool           `json:"read"`
	Link        string         `json:"link,omitempty"`
	RelatedType string         `json:"related_type,omitempty"`
	RelatedID   string         `json:"related_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
}

type Message struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type News struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	AuthorID  string `json:"author_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Subscription struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Plan      string `json:"plan"`
	Status    string `json:"status" enum:"active,expired"`
	StartedAt string `json:"started_at" format:"date-time"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}
