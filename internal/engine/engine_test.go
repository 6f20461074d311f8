package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"luggo/internal/config"
	"luggo/internal/db"
	"luggo/internal/domain"
	"luggo/internal/engine"
	"luggo/internal/engine/auth"
	"luggo/internal/migrate"
	"luggo/internal/repo"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Published *recorder
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "luggo.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return epoch }
	rec := &recorder{}
	eng.Publisher = rec
	return testEnv{Engine: eng, Ctx: ctx, Published: rec}
}

func (env testEnv) user(t *testing.T, name, role string) domain.User {
	t.Helper()
	u, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{
		Email:      name + "@example.com",
		Password:   "password-" + name,
		Name:       name,
		Phone:      "+100000" + name,
		Role:       role,
		AllowAdmin: role == domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return u
}

func (env testEnv) task(t *testing.T, customer domain.User) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		CustomerID:  customer.ID,
		Title:       "Move a two-room flat",
		FromAddress: "Lenina 1",
		ToAddress:   "Mira 5",
		ServiceDate: "2024-02-01",
		Category:    domain.CategoryFlat,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (env testEnv) bid(t *testing.T, task domain.Task, executor domain.User, price float64) domain.Bid {
	t.Helper()
	b, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, ExecutorID: executor.ID, Price: price, Comment: "two movers"})
	if err != nil {
		t.Fatalf("submit bid: %v", err)
	}
	return b
}

func isForbidden(err error) bool {
	var fe auth.ForbiddenError
	return errors.As(err, &fe)
}

func TestHappyPathToCompletedWithReview(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	executor := env.user(t, "executor", domain.RoleExecutor)
	task := env.task(t, customer)
	if task.Status != domain.TaskActive {
		t.Fatalf("new task status %s", task.Status)
	}
	b := env.bid(t, task, executor, 5000)
	if b.Status != domain.BidPending {
		t.Fatalf("new bid status %s", b.Status)
	}

	acc, err := env.Engine.AcceptBid(env.Ctx, b.ID, customer.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if acc.Task.Status != domain.TaskInProgress || acc.Task.AcceptedBidID == nil || *acc.Task.AcceptedBidID != b.ID {
		t.Fatalf("unexpected task after accept: %+v", acc.Task)
	}

	if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, executor.ID, "all boxes delivered"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	stored, err := env.Engine.Repo.GetBid(env.Ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.CompletionNote != "all boxes delivered" || !stored.Accepted() {
		t.Fatalf("unexpected bid after completion: %+v", stored)
	}

	rating := 5
	res, err := env.Engine.ConfirmCompletion(env.Ctx, engine.ConfirmOptions{
		TaskID: task.ID, CustomerID: customer.ID, Confirmed: true, Rating: &rating, Comment: "great",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.Task.Status != domain.TaskCompleted {
		t.Fatalf("status after confirm %s", res.Task.Status)
	}
	if res.Review == nil || res.Review.Rating != 5 || res.Review.TargetID != executor.ID {
		t.Fatalf("unexpected review %+v", res.Review)
	}
	got, err := env.Engine.GetUser(env.Ctx, executor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rating != 5 || got.ReviewsCount != 1 {
		t.Fatalf("executor rating %v (%d reviews)", got.Rating, got.ReviewsCount)
	}

	want := []string{
		domain.EventTaskCreated,
		domain.EventBidSubmitted,
		domain.EventBidAccepted,
		domain.EventTaskAwaitingConfirmation,
		domain.EventTaskCompleted,
		domain.EventReviewCreated,
	}
	types := env.Published.types()
	if len(types) != len(want) {
		t.Fatalf("published %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("published %v, want %v", types, want)
		}
	}
}

func TestReworkReturnsTaskToInProgress(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	executor := env.user(t, "executor", domain.RoleExecutor)
	task := env.task(t, customer)
	b := env.bid(t, task, executor, 3000)
	if _, err := env.Engine.AcceptBid(env.Ctx, b.ID, customer.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, executor.ID, ""); err != nil {
		t.Fatal(err)
	}
	rating := 1
	res, err := env.Engine.ConfirmCompletion(env.Ctx, engine.ConfirmOptions{
		TaskID: task.ID, CustomerID: customer.ID, Confirmed: false, Rating: &rating, Comment: "sofa is still here",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if res.Task.Status != domain.TaskInProgress || res.Review != nil {
		t.Fatalf("unexpected rework result %+v", res)
	}
	reviews, err := env.Engine.ListReviews(env.Ctx, executor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 0 {
		t.Fatalf("rework must not create a review, got %d", len(reviews))
	}
	// the executor can report completion again
	if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, executor.ID, "sofa moved"); err != nil {
		t.Fatalf("complete after rework: %v", err)
	}
}

func TestRatingIsMeanOfAllReviews(t *testing.T) {
	env := newTestEnv(t)
	executor := env.user(t, "executor", domain.RoleExecutor)
	for i, score := range []int{4, 5, 3} {
		customer := env.user(t, "customer"+string(rune('a'+i)), domain.RoleCustomer)
		task := env.task(t, customer)
		b := env.bid(t, task, executor, 1000)
		if _, err := env.Engine.AcceptBid(env.Ctx, b.ID, customer.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, executor.ID, ""); err != nil {
			t.Fatal(err)
		}
		rating := score
		if _, err := env.Engine.ConfirmCompletion(env.Ctx, engine.ConfirmOptions{TaskID: task.ID, CustomerID: customer.ID, Confirmed: true, Rating: &rating}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := env.Engine.GetUser(env.Ctx, executor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rating != 4.0 || got.ReviewsCount != 3 {
		t.Fatalf("rating %v over %d reviews, want 4.0 over 3", got.Rating, got.ReviewsCount)
	}
}

func TestSubmitBidRules(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	executor := env.user(t, "executor", domain.RoleExecutor)
	task := env.task(t, customer)
	env.bid(t, task, executor, 100)

	_, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, ExecutorID: executor.ID, Price: 90})
	if !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("duplicate bid: expected conflict, got %v", err)
	}
	_, err = env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, ExecutorID: customer.ID, Price: 90})
	if !isForbidden(err) {
		t.Fatalf("owner bid: expected forbidden, got %v", err)
	}
	_, err = env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, ExecutorID: executor.ID, Price: 0})
	var ve engine.ValidationError
	if !errors.As(err, &ve) || ve.Field != "price" {
		t.Fatalf("zero price: expected validation error on price, got %v", err)
	}
	_, err = env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: "missing", ExecutorID: executor.ID, Price: 10})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing task: expected not found, got %v", err)
	}
}

func TestSubmitBidOnContractedTaskIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	first := env.user(t, "first", domain.RoleExecutor)
	late := env.user(t, "late", domain.RoleExecutor)
	task := env.task(t, customer)
	b := env.bid(t, task, first, 100)
	if _, err := env.Engine.AcceptBid(env.Ctx, b.ID, customer.ID); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, ExecutorID: late.ID, Price: 80})
	if !isForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSubscriptionGate(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Marketplace.RequireSubscription = true
	admin := env.user(t, "admin", domain.RoleAdmin)
	customer := env.user(t, "customer", domain.RoleCustomer)
	executor := env.user(t, "executor", domain.RoleExecutor)
	task := env.task(t, customer)

	_, err := env.Engine.SubmitBid(env.Ctx, engine.SubmitBidOptions{TaskID: task.ID, ExecutorID: executor.ID, Price: 100})
	if !isForbidden(err) {
		t.Fatalf("expected forbidden without subscription, got %v", err)
	}
	if _, err := env.Engine.GrantSubscription(env.Ctx, admin.ID, executor.ID, "basic"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	env.bid(t, task, executor, 100)
}

func TestAcceptBidRules(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	other := env.user(t, "other", domain.RoleCustomer)
	e1 := env.user(t, "e1", domain.RoleExecutor)
	e2 := env.user(t, "e2", domain.RoleExecutor)
	task := env.task(t, customer)
	b1 := env.bid(t, task, e1, 100)
	b2 := env.bid(t, task, e2, 120)

	if _, err := env.Engine.AcceptBid(env.Ctx, b1.ID, other.ID); !isForbidden(err) {
		t.Fatalf("non-owner accept: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.AcceptBid(env.Ctx, b1.ID, customer.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Engine.AcceptBid(env.Ctx, b2.ID, customer.ID); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("second accept: expected invalid state, got %v", err)
	}
	views, err := env.Engine.ListBids(env.Ctx, task.ID, customer.ID)
	if err != nil {
		t.Fatal(err)
	}
	statuses := map[string]string{}
	for _, v := range views {
		statuses[v.ID] = v.Status
	}
	if statuses[b1.ID] != domain.BidAccepted || statuses[b2.ID] != domain.BidRejected {
		t.Fatalf("unexpected bid statuses %v", statuses)
	}
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	task := env.task(t, customer)
	var bids []domain.Bid
	for _, name := range []string{"e1", "e2", "e3", "e4"} {
		bids = append(bids, env.bid(t, task, env.user(t, name, domain.RoleExecutor), 100))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for _, b := range bids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.Engine.AcceptBid(env.Ctx, id, customer.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}(b.ID)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one accepted bid, got %d (errors %v)", wins, errs)
	}
	for _, err := range errs {
		if !errors.Is(err, engine.ErrInvalidState) {
			t.Fatalf("losing accept: expected invalid state, got %v", err)
		}
	}
	n, err := env.Engine.Repo.CountAcceptedBids(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("accepted bids in store: %d", n)
	}
}

func TestUpdateBid(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	e1 := env.user(t, "e1", domain.RoleExecutor)
	e2 := env.user(t, "e2", domain.RoleExecutor)
	task := env.task(t, customer)
	b1 := env.bid(t, task, e1, 100)
	b2 := env.bid(t, task, e2, 100)

	price := 80.0
	updated, err := env.Engine.UpdateBid(env.Ctx, engine.UpdateBidOptions{BidID: b2.ID, CallerID: e2.ID, Price: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Price != 80 {
		t.Fatalf("price %v", updated.Price)
	}
	if _, err := env.Engine.UpdateBid(env.Ctx, engine.UpdateBidOptions{BidID: b2.ID, CallerID: e1.ID, Price: &price}); !isForbidden(err) {
		t.Fatalf("foreign update: expected forbidden, got %v", err)
	}

	if _, err := env.Engine.AcceptBid(env.Ctx, b1.ID, customer.ID); err != nil {
		t.Fatal(err)
	}
	for _, caller := range []string{e1.ID, e2.ID, customer.ID} {
		_, err := env.Engine.UpdateBid(env.Ctx, engine.UpdateBidOptions{BidID: b1.ID, CallerID: caller, Price: &price})
		if !errors.Is(err, engine.ErrInvalidState) {
			t.Fatalf("update accepted bid as %s: expected invalid state, got %v", caller, err)
		}
	}
}

func TestCompleteJobRules(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	e1 := env.user(t, "e1", domain.RoleExecutor)
	e2 := env.user(t, "e2", domain.RoleExecutor)
	task := env.task(t, customer)
	b1 := env.bid(t, task, e1, 100)
	env.bid(t, task, e2, 100)

	if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, e1.ID, ""); !isForbidden(err) {
		t.Fatalf("complete before accept: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.AcceptBid(env.Ctx, b1.ID, customer.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, e2.ID, ""); !isForbidden(err) {
		t.Fatalf("complete by loser: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, e1.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, e1.ID, ""); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("second complete: expected invalid state, got %v", err)
	}
	rating := 9
	_, err := env.Engine.ConfirmCompletion(env.Ctx, engine.ConfirmOptions{TaskID: task.ID, CustomerID: customer.ID, Confirmed: true, Rating: &rating})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("rating 9: expected validation error, got %v", err)
	}
	if _, err := env.Engine.ConfirmCompletion(env.Ctx, engine.ConfirmOptions{TaskID: task.ID, CustomerID: e1.ID, Confirmed: true}); !isForbidden(err) {
		t.Fatalf("confirm by executor: expected forbidden, got %v", err)
	}
}

func TestListBidsRedactsContacts(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	private := env.user(t, "private", domain.RoleExecutor)
	public := env.user(t, "public", domain.RoleExecutor)
	show := true
	if _, err := env.Engine.UpdateProfile(env.Ctx, public.ID, engine.ProfileUpdate{ShowContacts: &show}); err != nil {
		t.Fatal(err)
	}
	task := env.task(t, customer)
	env.bid(t, task, private, 100)
	env.bid(t, task, public, 110)

	views, err := env.Engine.ListBids(env.Ctx, task.ID, customer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 bids, got %d", len(views))
	}
	for _, v := range views {
		switch v.ExecutorID {
		case private.ID:
			if v.ExecutorEmail != "" || v.ExecutorPhone != "" {
				t.Fatalf("private contacts leaked: %+v", v)
			}
		case public.ID:
			if v.ExecutorEmail != public.Email || v.ExecutorPhone == "" {
				t.Fatalf("public contacts hidden: %+v", v)
			}
		}
	}

	own, err := env.Engine.ListBids(env.Ctx, task.ID, private.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range own {
		if v.ExecutorID == private.ID && v.ExecutorEmail != private.Email {
			t.Fatalf("executor should see own contacts: %+v", v)
		}
	}
}

func TestReviewsAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	executor := env.user(t, "executor", domain.RoleExecutor)
	stranger := env.user(t, "stranger", domain.RoleExecutor)
	task := env.task(t, customer)
	b := env.bid(t, task, executor, 100)
	if _, err := env.Engine.AcceptBid(env.Ctx, b.ID, customer.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewOptions{TaskID: task.ID, AuthorID: executor.ID, Rating: 5}); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("review before completion: expected invalid state, got %v", err)
	}
	if _, err := env.Engine.CompleteJob(env.Ctx, task.ID, executor.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ConfirmCompletion(env.Ctx, engine.ConfirmOptions{TaskID: task.ID, CustomerID: customer.ID, Confirmed: true}); err != nil {
		t.Fatal(err)
	}
	rv, err := env.Engine.CreateReview(env.Ctx, engine.ReviewOptions{TaskID: task.ID, AuthorID: executor.ID, Rating: 4, Comment: "clear instructions"})
	if err != nil {
		t.Fatalf("executor review: %v", err)
	}
	if rv.TargetID != customer.ID {
		t.Fatalf("review target %s, want customer", rv.TargetID)
	}
	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewOptions{TaskID: task.ID, AuthorID: executor.ID, Rating: 3}); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("duplicate review: expected conflict, got %v", err)
	}
	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewOptions{TaskID: task.ID, AuthorID: stranger.ID, Rating: 3}); !isForbidden(err) {
		t.Fatalf("stranger review: expected forbidden, got %v", err)
	}
	got, err := env.Engine.GetUser(env.Ctx, customer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rating != 4 || got.ReviewsCount != 1 {
		t.Fatalf("customer rating %v/%d", got.Rating, got.ReviewsCount)
	}
}

func TestCancelAndDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "admin", domain.RoleAdmin)
	customer := env.user(t, "customer", domain.RoleCustomer)
	executor := env.user(t, "executor", domain.RoleExecutor)
	task := env.task(t, customer)
	b := env.bid(t, task, executor, 100)

	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, customer.ID, "changed my mind"); !isForbidden(err) {
		t.Fatalf("customer cancel: expected forbidden, got %v", err)
	}
	cancelled, err := env.Engine.CancelTask(env.Ctx, task.ID, admin.ID, "duplicate")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.TaskCancelled {
		t.Fatalf("status %s", cancelled.Status)
	}
	if _, err := env.Engine.CancelTask(env.Ctx, task.ID, admin.ID, ""); !errors.Is(err, engine.ErrInvalidState) {
		t.Fatalf("second cancel: expected invalid state, got %v", err)
	}
	// bids on a cancelled task stay editable
	price := 90.0
	if _, err := env.Engine.UpdateBid(env.Ctx, engine.UpdateBidOptions{BidID: b.ID, CallerID: executor.ID, Price: &price}); err != nil {
		t.Fatalf("update bid on cancelled task: %v", err)
	}

	if err := env.Engine.DeleteTask(env.Ctx, task.ID, admin.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted task: expected not found, got %v", err)
	}
	if _, err := env.Engine.Repo.GetBid(env.Ctx, b.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("bids must go with the task, got %v", err)
	}
}

func TestMessagesBetweenParties(t *testing.T) {
	env := newTestEnv(t)
	customer := env.user(t, "customer", domain.RoleCustomer)
	bidder := env.user(t, "bidder", domain.RoleExecutor)
	outsider := env.user(t, "outsider", domain.RoleExecutor)
	task := env.task(t, customer)
	env.bid(t, task, bidder, 100)

	if _, err := env.Engine.SendMessage(env.Ctx, engine.MessageOptions{TaskID: task.ID, SenderID: bidder.ID, RecipientID: customer.ID, Body: "Is there a lift?"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, engine.MessageOptions{TaskID: task.ID, SenderID: customer.ID, RecipientID: bidder.ID, Body: "Yes"}); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, engine.MessageOptions{TaskID: task.ID, SenderID: outsider.ID, RecipientID: customer.ID, Body: "hi"}); !isForbidden(err) {
		t.Fatalf("outsider: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, engine.MessageOptions{TaskID: task.ID, SenderID: customer.ID, RecipientID: bidder.ID, Body: "   "}); err == nil {
		t.Fatalf("expected validation error for blank body")
	}
	thread, err := env.Engine.ListMessages(env.Ctx, task.ID, customer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(thread) != 2 || thread[0].Body != "Is there a lift?" {
		t.Fatalf("unexpected thread %+v", thread)
	}
	none, err := env.Engine.ListMessages(env.Ctx, task.ID, outsider.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("outsider sees %d messages", len(none))
	}
}

func TestSubscriptionExpiry(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "admin", domain.RoleAdmin)
	customer := env.user(t, "customer", domain.RoleCustomer)
	executor := env.user(t, "executor", domain.RoleExecutor)

	if _, err := env.Engine.GrantSubscription(env.Ctx, admin.ID, customer.ID, "basic"); !isForbidden(err) {
		t.Fatalf("grant to customer: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.GrantSubscription(env.Ctx, admin.ID, executor.ID, "platinum"); err == nil {
		t.Fatalf("expected unknown plan error")
	}
	sub, err := env.Engine.GrantSubscription(env.Ctx, admin.ID, executor.ID, "basic")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if sub.ExpiresAt != epoch.AddDate(0, 0, 30).Format(time.RFC3339) {
		t.Fatalf("expires at %s", sub.ExpiresAt)
	}
	if _, err := env.Engine.ActiveSubscription(env.Ctx, executor.ID); err != nil {
		t.Fatalf("active: %v", err)
	}

	expired, err := env.Engine.ExpireSubscriptions(env.Ctx, epoch.AddDate(0, 0, 10))
	if err != nil || len(expired) != 0 {
		t.Fatalf("early sweep expired %d (%v)", len(expired), err)
	}
	expired, err = env.Engine.ExpireSubscriptions(env.Ctx, epoch.AddDate(0, 0, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != sub.ID {
		t.Fatalf("unexpected expired set %+v", expired)
	}
	if _, err := env.Engine.ActiveSubscription(env.Ctx, executor.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no active subscription, got %v", err)
	}
}

func TestNewsPublishing(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "admin", domain.RoleAdmin)
	customer := env.user(t, "customer", domain.RoleCustomer)
	if _, err := env.Engine.PublishNews(env.Ctx, engine.NewsOptions{AuthorID: customer.ID, Title: "x", Body: "y"}); !isForbidden(err) {
		t.Fatalf("customer publish: expected forbidden, got %v", err)
	}
	n, err := env.Engine.PublishNews(env.Ctx, engine.NewsOptions{AuthorID: admin.ID, Title: "Winter rates", Body: "Intercity moves are 10% off."})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	list, err := env.Engine.ListNews(env.Ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("list news: %d (%v)", len(list), err)
	}
	if err := env.Engine.DeleteNews(env.Ctx, n.ID, admin.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Engine.DeleteNews(env.Ctx, n.ID, admin.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "alice", domain.RoleCustomer)
	if _, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{Email: "ALICE@example.com", Password: "password-x", Name: "A", Role: domain.RoleCustomer}); !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("duplicate email: expected conflict, got %v", err)
	}
	if _, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{Email: "root@example.com", Password: "password-x", Name: "R", Role: domain.RoleAdmin}); !isForbidden(err) {
		t.Fatalf("admin self-register: expected forbidden, got %v", err)
	}
	got, err := env.Engine.Authenticate(env.Ctx, u.Email, "password-alice")
	if err != nil || got.ID != u.ID {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, u.Email, "wrong-password"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected invalid credentials, got %v", err)
	}
	profile, err := env.Engine.PublicProfile(env.Ctx, u.ID, "someone-else")
	if err != nil {
		t.Fatal(err)
	}
	if profile.Email != "" {
		t.Fatalf("email leaked in public profile")
	}
}
