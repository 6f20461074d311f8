package notify

import (
	"fmt"
	"strings"

	"luggo/internal/domain"
)

// Build turns a domain event into the inbox entry for its recipient. It
// reports false for events that do not notify anyone.
func Build(evt domain.Event) (domain.Notification, bool) {
	p := evt.Payload
	taskID := str(p, "taskId")
	n := domain.Notification{
		RelatedType: "task",
		RelatedID:   taskID,
		Link:        taskLink(taskID),
	}
	switch evt.Type {
	case domain.EventBidSubmitted:
		n.UserID = str(p, "customerId")
		n.Type = domain.NotificationNewBid
		n.Title = "New bid on your task"
		n.Message = fmt.Sprintf("%s offered %s for %q", str(p, "executorName"), price(p), str(p, "taskTitle"))
		n.RelatedType, n.RelatedID = "bid", evt.EntityID
		n.Metadata = pick(p, "executorName", "price", "taskTitle", "executorId")
	case domain.EventBidAccepted:
		n.UserID = str(p, "executorId")
		n.Type = domain.NotificationBidAccepted
		n.Title = "Your bid was accepted"
		n.Message = fmt.Sprintf("%s accepted your offer of %s for %q", str(p, "customerName"), price(p), str(p, "taskTitle"))
		n.RelatedType, n.RelatedID = "bid", evt.EntityID
		n.Metadata = pick(p, "customerName", "price", "taskTitle", "customerId")
	case domain.EventTaskAwaitingConfirmation:
		n.UserID = str(p, "customerId")
		n.Type = domain.NotificationTaskCompleted
		n.Title = "Work reported as done"
		n.Message = fmt.Sprintf("%s finished %q. Please confirm the result.", str(p, "executorName"), str(p, "taskTitle"))
		n.RelatedID = evt.EntityID
		n.Link = taskLink(evt.EntityID)
		n.Metadata = pick(p, "executorName", "taskTitle", "note")
	case domain.EventTaskCompleted:
		n.UserID = str(p, "executorId")
		n.Type = domain.NotificationTaskCompleted
		n.Title = "Completion confirmed"
		n.Message = fmt.Sprintf("%s confirmed the work on %q", str(p, "customerName"), str(p, "taskTitle"))
		n.RelatedID = evt.EntityID
		n.Link = taskLink(evt.EntityID)
		n.Metadata = pick(p, "customerName", "taskTitle", "rating", "comment")
	case domain.EventTaskReworkRequested:
		n.UserID = str(p, "executorId")
		n.Type = domain.NotificationTaskCompleted
		n.Title = "Rework requested"
		msg := fmt.Sprintf("%s sent %q back for rework", str(p, "customerName"), str(p, "taskTitle"))
		if c := str(p, "comment"); c != "" {
			msg += ": " + c
		}
		n.Message = msg
		n.RelatedID = evt.EntityID
		n.Link = taskLink(evt.EntityID)
		n.Metadata = pick(p, "customerName", "taskTitle", "comment")
	case domain.EventTaskCancelled:
		n.UserID = str(p, "customerId")
		n.Type = domain.NotificationSystem
		n.Title = "Task cancelled"
		msg := fmt.Sprintf("%q was cancelled by an administrator", str(p, "taskTitle"))
		if r := str(p, "reason"); r != "" {
			msg += ": " + r
		}
		n.Message = msg
		n.RelatedID = evt.EntityID
		n.Link = taskLink(evt.EntityID)
		n.Metadata = pick(p, "taskTitle", "reason")
	case domain.EventSubscriptionGranted, domain.EventSubscriptionExpired:
		n.UserID = str(p, "userId")
		n.Type = domain.NotificationSystem
		if evt.Type == domain.EventSubscriptionGranted {
			n.Title = "Subscription activated"
			n.Message = fmt.Sprintf("Plan %s is active until %s", str(p, "plan"), day(str(p, "expiresAt")))
		} else {
			n.Title = "Subscription expired"
			n.Message = fmt.Sprintf("Plan %s expired on %s", str(p, "plan"), day(str(p, "expiresAt")))
		}
		n.RelatedType, n.RelatedID, n.Link = "subscription", evt.EntityID, "/subscription"
		n.Metadata = pick(p, "plan", "expiresAt")
	default:
		return domain.Notification{}, false
	}
	if n.UserID == "" {
		return domain.Notification{}, false
	}
	return n, true
}

func taskLink(id string) string {
	if id == "" {
		return ""
	}
	return "/tasks/" + id
}

func str(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func price(p map[string]any) string {
	switch v := p["price"].(type) {
	case float64:
		return fmt.Sprintf("%.2f", v)
	case int:
		return fmt.Sprintf("%d.00", v)
	default:
		return str(p, "price")
	}
}

func day(ts string) string {
	if i := strings.IndexByte(ts, 'T'); i > 0 {
		return ts[:i]
	}
	return ts
}

// pick copies the named payload keys verbatim.
func pick(p map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}
