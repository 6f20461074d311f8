package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"luggo/internal/config"
	"luggo/internal/domain"
	"luggo/internal/metrics"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
)

// DefaultEvents is what a hook receives when it lists none: new tasks, which
// the chat bot announces to executors.
var DefaultEvents = []string{domain.EventTaskCreated}

// EventSource reads the domain event log.
type EventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64, types []string) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

type hook struct {
	config.WebhookConfig
	events  []string
	limiter *rate.Limiter
	client  *http.Client
}

// Dispatcher posts committed domain events to the configured bot endpoints.
// Each hook keeps its own cursor into the event log, starting at the newest
// event when the dispatcher starts; a failed delivery is retried on the next
// tick from the same event.
type Dispatcher struct {
	Source   EventSource
	Interval time.Duration
	Logger   *slog.Logger

	hooks   []*hook
	mu      sync.Mutex
	cursors map[int]int64
}

func New(src EventSource, hooks []config.WebhookConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{Source: src, Interval: defaultInterval, Logger: logger, cursors: map[int]int64{}}
	for _, h := range hooks {
		if h.Enabled != nil && !*h.Enabled {
			continue
		}
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		timeout := defaultTimeout
		if h.TimeoutSeconds > 0 {
			timeout = time.Duration(h.TimeoutSeconds) * time.Second
		}
		limit := rate.Inf
		if h.RatePerMinute > 0 {
			limit = rate.Every(time.Minute / time.Duration(h.RatePerMinute))
		}
		d.hooks = append(d.hooks, &hook{
			WebhookConfig: h,
			events:        eventTypes(h.Events),
			limiter:       rate.NewLimiter(limit, 1),
			client:        &http.Client{Timeout: timeout},
		})
	}
	return d
}

// Enabled reports whether any hook is configured.
func (d *Dispatcher) Enabled() bool {
	return len(d.hooks) > 0
}

// Run polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.Enabled() {
		<-ctx.Done()
		return nil
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers pending events to every hook.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for i, h := range d.hooks {
		d.dispatchHook(ctx, i, h)
	}
}

func (d *Dispatcher) dispatchHook(ctx context.Context, idx int, h *hook) {
	cursor := d.cursorFor(ctx, idx)
	evts, err := d.Source.EventsAfter(ctx, defaultBatch, cursor, h.events)
	if err != nil {
		d.Logger.Error("bot dispatch: fetch events failed", "error", err)
		return
	}
	for _, evt := range evts {
		if err := h.limiter.Wait(ctx); err != nil {
			return
		}
		if err := d.post(ctx, h, evt); err != nil {
			metrics.WebhookDeliveries.WithLabelValues("error").Inc()
			d.Logger.Warn("bot dispatch: delivery failed", "url", h.URL, "event_id", evt.ID, "error", err)
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("ok").Inc()
		d.setCursor(idx, evt.ID)
	}
}

// Prime pins every hook's cursor to the current end of the log.
func (d *Dispatcher) Prime(ctx context.Context) {
	for i := range d.hooks {
		d.cursorFor(ctx, i)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.Source.LatestEventID(ctx)
	if err != nil {
		d.Logger.Error("bot dispatch: init cursor failed", "error", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

// Delivery is the JSON body posted to a hook.
type Delivery struct {
	ID         int64          `json:"id"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	TS         string         `json:"ts"`
	Payload    map[string]any `json:"payload"`
}

func (d *Dispatcher) post(ctx context.Context, h *hook, evt domain.Event) error {
	payload := evt.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(Delivery{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Luggo-Event", evt.Type)
	req.Header.Set("X-Luggo-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(h.Secret) != "" {
		req.Header.Set("X-Luggo-Secret", h.Secret)
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func eventTypes(in []string) []string {
	var out []string
	for _, e := range in {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return DefaultEvents
	}
	if len(out) == 1 && out[0] == "*" {
		return nil
	}
	return out
}
