package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"luggo/internal/app"
	"luggo/internal/config"
	"luggo/internal/domain"
	"luggo/internal/engine"
	"luggo/internal/migrate"
	"luggo/internal/repo"
	"luggo/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "luggo",
	Short: "Luggo moving-services marketplace",
	Long: `Luggo matches customers who need a move with executors who bid on it.
- Tasks: a customer posts a move; it is active until a bid is accepted, then
  in_progress, awaiting_confirmation once the executor reports the work, and
  completed when the customer confirms. Admins may cancel or delete.
- Bids: executors offer a price; accepting one rejects the rest.
- Reviews: both sides rate each other once the task is completed.
- Notifications: every lifecycle step lands in the recipient's inbox and is
  pushed over the websocket when they are online.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return app.LoadEnv(viper.GetString("env-file"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LUGGO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "luggo.yml", "config file")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading LUGGO_* variables")
	rootCmd.PersistentFlags().String(app.KeyDatabase, "", "database path (overrides config)")
	rootCmd.PersistentFlags().String(app.KeyLogLevel, "", "log level (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "email of the account performing the command")
	rootCmd.PersistentFlags().String(app.KeyJWTSecret, "", "token signing secret (prefer LUGGO_JWT_SECRET)")
	for _, name := range []string{"config", "env-file", app.KeyDatabase, app.KeyLogLevel, "json", "as", app.KeyJWTSecret} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(bidCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(subscriptionCmd())
	rootCmd.AddCommand(newsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(statsCmd())
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serves the REST API, the websocket push endpoint at <base-path>/ws and Prometheus metrics at /metrics. Requires auth.jwt_secret or LUGGO_JWT_SECRET.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
	cmd.Flags().String(app.KeyAddr, "", "listen address (overrides config)")
	cmd.Flags().String(app.KeyBasePath, "", "API base path (overrides config)")
	for _, name := range []string{app.KeyAddr, app.KeyBasePath} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := migrate.Version(ctx, a.DB)
				if err != nil {
					return err
				}
				fmt.Printf("schema version %d (%s)\n", v, a.Config.Database.Path)
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default luggo.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("config"), viper.GetViper())
			if err != nil {
				return err
			}
			fmt.Printf("config ok: %d plans, %d webhooks\n", len(cfg.Subscriptions.Plans), len(cfg.Webhooks))
			return nil
		},
	})
	return cfg
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage accounts"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userTokenCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var opts engine.RegisterOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account (including admins)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts.AllowAdmin = true
				u, err := a.Engine.RegisterUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (min 8 characters)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.Role, "role", domain.RoleCustomer, "customer, executor or admin")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.ListUsers(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable(os.Stdout, "ID", "Email", "Name", "Role", "Rating", "Reviews")
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Name, u.Role, fmt.Sprintf("%.2f", u.Rating), u.ReviewsCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func userTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue a bearer token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(args[0])))
				if err != nil {
					return err
				}
				if ttl <= 0 {
					if ttl, err = a.Config.TokenTTL(); err != nil {
						return err
					}
				}
				token, expires, err := server.SignToken(a.Config.Auth.JWTSecret, u, ttl, time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"token": token, "expires_at": expires.UTC().Format(time.RFC3339)})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Inspect and administer tasks",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskCancelCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Engine.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := newTable(os.Stdout, "ID", "Title", "Category", "Status", "Customer", "Created")
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Status, t.CustomerID, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.CustomerID, "customer-id", "", "customer filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its bids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				bids, err := a.Engine.Repo.ListTaskBids(ctx, t.ID)
				if err != nil {
					return err
				}
				reviews, err := a.Engine.Repo.ListTaskReviews(ctx, t.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task": t, "bids": bids, "reviews": reviews})
				}
				fmt.Printf("%s  %s [%s]\n%s -> %s (%s)\n", t.ID, t.Title, t.Status, t.FromAddress, t.ToAddress, t.Category)
				printBids(os.Stdout, bids)
				if len(reviews) > 0 {
					tw := newTable(os.Stdout, "Author", "Target", "Rating", "Comment")
					for _, rv := range reviews {
						tw.AppendRow(table.Row{rv.AuthorID, rv.TargetID, rv.Rating, rv.Comment})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
}

func taskCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a task (admin, see --as)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.User) error {
				t, err := a.Engine.CancelTask(ctx, args[0], actor.ID, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the customer")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task with its bids, reviews and messages (admin, see --as)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.User) error {
				if err := a.Engine.DeleteTask(ctx, args[0], actor.ID); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func bidCmd() *cobra.Command {
	bid := &cobra.Command{Use: "bid", Short: "Inspect bids"}
	var taskID, executorEmail string
	list := &cobra.Command{
		Use:   "list",
		Short: "List bids of a task or of an executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					bids []domain.BidView
					err  error
				)
				switch {
				case taskID != "":
					bids, err = a.Engine.Repo.ListTaskBids(ctx, taskID)
				case executorEmail != "":
					var u domain.User
					if u, err = a.Engine.Repo.GetUserByEmail(ctx, executorEmail); err == nil {
						bids, err = a.Engine.ListExecutorBids(ctx, u.ID)
					}
				default:
					return errors.New("--task or --executor required")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(bids)
				}
				printBids(os.Stdout, bids)
				return nil
			})
		},
	}
	list.Flags().StringVar(&taskID, "task", "", "task id")
	list.Flags().StringVar(&executorEmail, "executor", "", "executor email")
	bid.AddCommand(list)
	return bid
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Short: "Inspect inboxes"}
	var unread bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications of the --as account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.User) error {
				inbox, err := a.Engine.ListNotifications(ctx, actor.ID, unread, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(inbox)
				}
				fmt.Printf("%d unread\n", inbox.Unread)
				tw := newTable(os.Stdout, "ID", "Type", "Title", "Read", "Created")
				for _, item := range inbox.Items {
					tw.AppendRow(table.Row{item.ID, item.Type, item.Title, item.Read, item.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	n.AddCommand(list)
	return n
}

func subscriptionCmd() *cobra.Command {
	sub := &cobra.Command{Use: "subscription", Short: "Manage executor subscriptions"}
	var userEmail, plan string
	grant := &cobra.Command{
		Use:   "grant",
		Short: "Grant a plan to an executor (admin, see --as)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.User) error {
				holder, err := a.Engine.Repo.GetUserByEmail(ctx, userEmail)
				if err != nil {
					return fmt.Errorf("user %s: %w", userEmail, err)
				}
				s, err := a.Engine.GrantSubscription(ctx, actor.ID, holder.ID, plan)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	grant.Flags().StringVar(&userEmail, "user", "", "executor email")
	grant.Flags().StringVar(&plan, "plan", "", "plan name")
	expire := &cobra.Command{
		Use:   "expire",
		Short: "Expire overdue subscriptions now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				expired, err := a.Engine.ExpireSubscriptions(ctx, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("expired %d subscriptions\n", len(expired))
				return nil
			})
		},
	}
	plans := &cobra.Command{
		Use:   "plans",
		Short: "List configured plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("config"), viper.GetViper())
			if err != nil {
				return err
			}
			tw := newTable(os.Stdout, "Plan", "Days", "Price", "Description")
			e := engine.Engine{Config: cfg}
			for _, name := range e.PlanNames() {
				p := cfg.Subscriptions.Plans[name]
				tw.AppendRow(table.Row{name, p.Days, p.Price, p.Description})
			}
			tw.Render()
			return nil
		},
	}
	sub.AddCommand(grant, expire, plans)
	return sub
}

func newsCmd() *cobra.Command {
	news := &cobra.Command{Use: "news", Short: "Manage platform news"}
	var opts engine.NewsOptions
	publish := &cobra.Command{
		Use:   "publish",
		Short: "Publish a news item (admin, see --as)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.User) error {
				opts.AuthorID = actor.ID
				n, err := a.Engine.PublishNews(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	publish.Flags().StringVar(&opts.Title, "title", "", "headline")
	publish.Flags().StringVar(&opts.Body, "body", "", "text")
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List news, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListNews(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(os.Stdout, "ID", "Title", "Created")
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Title, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	news.AddCommand(publish, list)
	return news
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Domain event log"}
	var n int
	var entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evts, err := a.Engine.EventLog(ctx, n, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable(os.Stdout, "ID", "TS", "Type", "Entity", "Actor")
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	l.AddCommand(tail)
	return l
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				counts, err := a.Engine.MarketplaceStats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := newTable(os.Stdout, "Status", "Tasks")
				for _, s := range []string{domain.TaskActive, domain.TaskInProgress, domain.TaskAwaitingConfirmation, domain.TaskCompleted, domain.TaskCancelled} {
					tw.AppendRow(table.Row{s, counts[s]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := app.LoadConfig(viper.GetString("config"), viper.GetViper())
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg, os.Stderr)
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// withActor resolves --as to an account before running fn.
func withActor(ctx context.Context, fn func(context.Context, *app.App, domain.User) error) error {
	email := strings.ToLower(strings.TrimSpace(viper.GetString("as")))
	if email == "" {
		return errors.New("--as <email> required")
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		actor, err := a.Engine.Repo.GetUserByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("account %s: %w", email, err)
		}
		return fn(ctx, a, actor)
	})
}

func newTable(w io.Writer, headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func printBids(w io.Writer, bids []domain.BidView) {
	tw := newTable(w, "ID", "Executor", "Price", "Status", "Comment")
	for _, b := range bids {
		tw.AppendRow(table.Row{b.ID, b.ExecutorName, fmt.Sprintf("%.2f", b.Price), b.Status, b.Comment})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
