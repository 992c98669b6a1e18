package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dawin/internal/app"
	"dawin/internal/catalog"
	"dawin/internal/config"
	"dawin/internal/db"
	"dawin/internal/domain"
	"dawin/internal/engine"
	"dawin/internal/logging"
	"dawin/internal/metrics"
	"dawin/internal/migrate"
	"dawin/internal/notify"
	"dawin/internal/repo"
	"dawin/internal/server"
)

const appVersion = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "dw",
	Short: "Dawin dispatch CLI",
	Long: `Dawin turns business events into routed work.
Core concepts:
- Workspace: the .dawin directory holding only the database; tenant configs live in the DB and are imported explicitly.
- Tenant: one business using the dispatcher; every occurrence, task and notification belongs to a tenant.
- Event catalog: the rulebook of event types (customer.inquiry_received, financial.invoice_overdue, ...) with payload contracts and dispatch rules.
- Occurrence: one recorded event with its payload, validated against the catalog before anything is derived.
- Dispatch rules: per event type, condition-gated templates derive tasks (who must do what by when) and notifications (who must hear about it).
- Tasks: routed work items; statuses go open -> in_progress -> done (canceled is the exit). Tasks nobody can be found for are kept and flagged, never dropped.
- Roles: capability profiles saying which roles may execute or approve which task types, and up to what amount.
- Audit log: diary of everything the engine did, view with 'dw audit list'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("DW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("tenant", "", "tenant id (defaults to the only tenant in the workspace)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("tenant", rootCmd.PersistentFlags().Lookup("tenant"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(retentionCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
}

func initCmd() *cobra.Command {
	var name string
	var sample bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		Long:  "Create the .dawin directory, run migrations, and optionally create the first tenant (--tenant) and a starter dispatch.yml (--sample-config).",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			dir, err := db.EnsureWorkspace(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			schema, err := migrate.Version(conn)
			if err != nil {
				return err
			}
			tenantID := viper.GetString("tenant")
			if tenantID != "" {
				seed, err := config.LoadOptional(workspace)
				if err != nil {
					return err
				}
				e := engine.New(conn, seed)
				if _, err := e.Repo.GetTenant(cmd.Context(), tenantID); errors.Is(err, repo.ErrNotFound) {
					if _, err := e.InitTenant(cmd.Context(), tenantID, name, viper.GetString("actor-id")); err != nil {
						return err
					}
				} else if err != nil {
					return err
				}
			}
			if sample {
				path := config.Path(workspace)
				if _, err := os.Stat(path); os.IsNotExist(err) {
					sampleTenant := tenantID
					if sampleTenant == "" {
						sampleTenant = "default"
					}
					if err := os.WriteFile(path, []byte(config.GenerateDefault(sampleTenant)), 0o644); err != nil {
						return err
					}
					if !viper.GetBool("json") {
						fmt.Printf("Wrote sample config to %s\n", path)
					}
				} else if !viper.GetBool("json") {
					fmt.Printf("Config %s already exists, leaving it alone\n", path)
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"workspace": dir, "schema_version": schema, "tenant": tenantID})
			}
			fmt.Printf("Workspace %s ready (schema v%d)\n", dir, schema)
			if tenantID != "" {
				fmt.Printf("Tenant %s ready\n", tenantID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "tenant display name (with --tenant)")
	cmd.Flags().BoolVar(&sample, "sample-config", false, "write a starter dispatch.yml")
	return cmd
}

func tenantCmd() *cobra.Command {
	tenant := &cobra.Command{Use: "tenant", Short: "Manage tenants"}
	tenant.AddCommand(tenantCreateCmd())
	tenant.AddCommand(tenantListCmd())
	return tenant
}

func tenantCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant with its seed catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			seed, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, seed)
			t, err := e.InitTenant(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(t)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "tenant id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func tenantListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tenants, err := r.ListTenants(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tenants)
				}
				rows := make([]table.Row, 0, len(tenants))
				for _, t := range tenants {
					rows = append(rows, table.Row{t.ID, t.Name, t.Status, t.CreatedAt})
				}
				renderTable(table.Row{"ID", "NAME", "STATUS", "CREATED"}, rows)
				return nil
			})
		},
	}
	return cmd
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and manage the event catalog",
		Long:  "The catalog is the tenant's rulebook, stored in the DB: event definitions with payload contracts, dispatch rules, role profiles and webhooks. Import from dispatch.yml if desired.",
	}
	cat.AddCommand(catalogShowCmd())
	cat.AddCommand(catalogEventsCmd())
	cat.AddCommand(catalogExportCmd())
	cat.AddCommand(catalogImportCmd())
	cat.AddCommand(catalogValidateCmd())
	return cat
}

func catalogShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the tenant's stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func catalogEventsCmd() *cobra.Command {
	var category string
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List event definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				cat := e.Config.Catalog()
				defs := cat.Definitions()
				if category != "" {
					defs = cat.ByCategory(catalog.Category(category))
				}
				if enabledOnly {
					var kept []catalog.EventDefinition
					for _, d := range defs {
						if d.IsEnabled() {
							kept = append(kept, d)
						}
					}
					defs = kept
				}
				if viper.GetBool("json") {
					return printJSON(defs)
				}
				rows := make([]table.Row, 0, len(defs))
				for _, d := range defs {
					enabled := "yes"
					if !d.IsEnabled() {
						enabled = "no"
					}
					retention := "forever"
					if d.Retention.Days > 0 {
						retention = fmt.Sprintf("%dd", d.Retention.Days)
						if d.Retention.Archive {
							retention += " (archive)"
						}
					}
					rows = append(rows, table.Row{d.EventType, string(d.Category), len(d.Tasks), len(d.Notifications), retention, enabled})
				}
				renderTable(table.Row{"TYPE", "CATEGORY", "TASKS", "NOTIFS", "RETENTION", "ENABLED"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	cmd.Flags().BoolVar(&enabledOnly, "enabled-only", false, "only enabled definitions")
	return cmd
}

func catalogExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the tenant's config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				data, err := e.ExportConfig(ctx, tenantID)
				if err != nil {
					return err
				}
				if out == "" {
					fmt.Print(string(data))
					return nil
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Exported config to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to a file instead of stdout")
	return cmd
}

func catalogImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YAML config into the tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				imported, err := e.ImportConfig(ctx, tenantID, cfg, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(imported)
				}
				fmt.Printf("Imported config for %s: %d event definitions, %d roles\n", tenantID, len(imported.Events), len(imported.Roles))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file or the stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath != "" {
				if _, err := config.FromFile(filePath); err != nil {
					if viper.GetBool("json") {
						return printJSON(map[string]any{"ok": false, "error": err.Error()})
					}
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"ok": true})
				}
				fmt.Println("config OK")
				return nil
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				err := e.Config.Validate()
				if viper.GetBool("json") {
					out := map[string]any{"ok": err == nil}
					if err != nil {
						out["error"] = err.Error()
					}
					return printJSON(out)
				}
				if err != nil {
					return err
				}
				fmt.Println("config OK")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config (default: validate the stored config)")
	return cmd
}

func eventCmd() *cobra.Command {
	event := &cobra.Command{
		Use:   "event",
		Short: "Record and inspect business events",
		Long:  "Events are the inputs. Recording one validates the payload against the catalog, derives tasks and notifications from the dispatch rules, and persists everything atomically.",
	}
	event.AddCommand(eventEmitCmd())
	event.AddCommand(eventValidateCmd())
	event.AddCommand(eventSimulateCmd())
	event.AddCommand(eventListCmd())
	event.AddCommand(eventShowCmd())
	return event
}

func eventEmitCmd() *cobra.Command {
	var payloadJSON, occurredAt string
	var fields []string
	cmd := &cobra.Command{
		Use:   "emit <event-type>",
		Short: "Record a business event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(payloadJSON, fields)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				res, err := e.RecordEvent(ctx, engine.RecordEventOptions{
					TenantID:   tenantID,
					EventType:  args[0],
					Payload:    payload,
					OccurredAt: occurredAt,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Recorded %s as %s\n", res.Occurrence.EventType, res.Occurrence.ID)
				for _, t := range res.Tasks {
					who := deref(t.AssigneeID)
					if t.Unassigned {
						who = "UNASSIGNED: " + deref(t.UnassignedReason)
					}
					fmt.Printf("  task %s [%s] %s -> %s\n", t.ID, t.Priority, t.TaskType, who)
				}
				for _, n := range res.Notifications {
					fmt.Printf("  notification %s via %s (%s)\n", n.Template, strings.Join(n.Channels, ","), n.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "payload as a JSON object")
	cmd.Flags().StringArrayVar(&fields, "field", []string{}, "payload field key=value (repeatable, value parsed as JSON when possible)")
	cmd.Flags().StringVar(&occurredAt, "occurred-at", "", "occurrence time (RFC3339, default now)")
	return cmd
}

func eventValidateCmd() *cobra.Command {
	var payloadJSON string
	var fields []string
	cmd := &cobra.Command{
		Use:   "validate <event-type>",
		Short: "Validate a payload without recording anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(payloadJSON, fields)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				res, err := e.ValidatePayload(ctx, tenantID, args[0], payload)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Valid {
					fmt.Println("payload OK")
					return nil
				}
				for _, msg := range res.Errors {
					fmt.Println(msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "payload as a JSON object")
	cmd.Flags().StringArrayVar(&fields, "field", []string{}, "payload field key=value (repeatable)")
	return cmd
}

func eventSimulateCmd() *cobra.Command {
	var payloadJSON, occurredAt string
	var fields []string
	cmd := &cobra.Command{
		Use:   "simulate <event-type>",
		Short: "Dry-run dispatch against live staffing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(payloadJSON, fields)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				res, err := e.SimulateEvent(ctx, engine.RecordEventOptions{
					TenantID:   tenantID,
					EventType:  args[0],
					Payload:    payload,
					OccurredAt: occurredAt,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"valid":         res.Valid,
						"errors":        res.Errors,
						"tasks":         res.Tasks,
						"notifications": res.Notifications,
						"unassigned":    res.Unassigned,
					})
				}
				if !res.Valid {
					fmt.Println("payload rejected:")
					for _, msg := range res.Errors {
						fmt.Println("  " + msg)
					}
					return nil
				}
				fmt.Printf("Would derive %d task(s) and %d notification(s)\n", len(res.Tasks), len(res.Notifications))
				for _, t := range res.Tasks {
					who := deref(t.AssigneeID)
					if t.Unassigned {
						who = "UNASSIGNED: " + deref(t.UnassignedReason)
					}
					fmt.Printf("  task [%s] %s %q -> %s\n", t.Priority, t.TaskType, t.Title, who)
				}
				for _, n := range res.Notifications {
					fmt.Printf("  notification %s via %s\n", n.Template, strings.Join(n.Channels, ","))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&payloadJSON, "payload", "", "payload as a JSON object")
	cmd.Flags().StringArrayVar(&fields, "field", []string{}, "payload field key=value (repeatable)")
	cmd.Flags().StringVar(&occurredAt, "occurred-at", "", "occurrence time (RFC3339, default now)")
	return cmd
}

func eventListCmd() *cobra.Command {
	var f repo.OccurrenceFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded occurrences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				f.TenantID = tenantID
				items, err := e.Repo.ListOccurrences(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				rows := make([]table.Row, 0, len(items))
				for _, o := range items {
					rows = append(rows, table.Row{o.ID, o.EventType, o.OccurredAt, o.ActorID})
				}
				renderTable(table.Row{"ID", "TYPE", "OCCURRED AT", "ACTOR"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.EventType, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	cmd.Flags().StringVar(&f.Since, "since", "", "occurred at or after (RFC3339)")
	cmd.Flags().StringVar(&f.Until, "until", "", "occurred before (RFC3339)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func eventShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one occurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				o, err := e.Repo.GetOccurrence(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Work the task queue",
		Long:  "Tasks are derived from events by the dispatch rules and routed to a role, department, manager or user. They flow open -> in_progress -> done; canceled is the exit.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskNextCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskReassignCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var unassigned bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("unassigned") {
				f.Unassigned = &unassigned
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				f.TenantID = tenantID
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				rows := make([]table.Row, 0, len(tasks))
				for _, t := range tasks {
					assignee := deref(t.AssigneeID)
					if t.Unassigned {
						assignee = "(unassigned)"
					}
					rows = append(rows, table.Row{t.ID, t.TaskType, t.Title, t.Priority, t.Status, assignee, t.DueAt})
				}
				renderTable(table.Row{"ID", "TYPE", "TITLE", "PRI", "STATUS", "ASSIGNEE", "DUE"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.OccurrenceID, "occurrence", "", "occurrence id filter")
	cmd.Flags().StringVar(&f.EventType, "event-type", "", "event type filter")
	cmd.Flags().StringVar(&f.TaskType, "task-type", "", "task type filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter (P0, P1, P2)")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	cmd.Flags().BoolVar(&unassigned, "unassigned", false, "filter by unassigned flag")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				t, err := e.Repo.GetTask(ctx, tenantID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskNextCmd() *cobra.Command {
	var assignee string
	var includeUnassigned bool
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Pick the most pressing open task for an assignee",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				t, err := e.NextTask(ctx, tenantID, assignee, includeUnassigned)
				if errors.Is(err, repo.ErrNotFound) {
					if viper.GetBool("json") {
						return printJSON(nil)
					}
					fmt.Println("no open tasks")
					return nil
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().BoolVar(&includeUnassigned, "include-unassigned", false, "also consider unassigned tasks")
	_ = cmd.MarkFlagRequired("assignee")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Apply a lifecycle transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				t, err := e.UpdateTaskStatus(ctx, engine.TaskStatusOptions{
					TenantID: tenantID,
					TaskID:   args[0],
					Status:   status,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (open, in_progress, done, canceled)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func taskReassignCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "reassign <id>",
		Short: "Hand a task to a named user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				t, err := e.ReassignTask(ctx, engine.ReassignOptions{
					TenantID:   tenantID,
					TaskID:     args[0],
					AssigneeID: to,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "new assignee user id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func roleCmd() *cobra.Command {
	role := &cobra.Command{
		Use:   "role",
		Short: "Inspect role capabilities",
		Long:  "Roles are capability profiles from the tenant config: which event types a role handles, which task types it may execute or approve, and its approval limits.",
	}
	role.AddCommand(roleListCmd())
	role.AddCommand(roleShowCmd())
	role.AddCommand(roleCanCmd())
	role.AddCommand(roleLimitCmd())
	return role
}

func roleListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List role profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				if viper.GetBool("json") {
					return printJSON(e.Config.Roles)
				}
				rows := make([]table.Row, 0, len(e.Config.Roles))
				for _, p := range e.Config.Roles {
					rows = append(rows, table.Row{p.Role, p.Name, p.Department, len(p.TaskCapabilities), len(p.ApprovalAuthorities)})
				}
				renderTable(table.Row{"ROLE", "NAME", "DEPARTMENT", "CAPABILITIES", "AUTHORITIES"}, rows)
				return nil
			})
		},
	}
	return cmd
}

func roleShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <role>",
		Short: "Show one role profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				p, ok := e.Config.Roleset().Profile(args[0])
				if !ok {
					return fmt.Errorf("role %q not found", args[0])
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func roleCanCmd() *cobra.Command {
	var action, eventType, taskType string
	cmd := &cobra.Command{
		Use:   "can <role>",
		Short: "Ask whether a role may take an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				allowed, err := e.CheckCapability(ctx, tenantID, engine.CapabilityCheck{
					Role:      args[0],
					EventType: eventType,
					TaskType:  taskType,
					Action:    action,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"role":       args[0],
						"action":     action,
						"event_type": eventType,
						"task_type":  taskType,
						"allowed":    allowed,
					})
				}
				if allowed {
					fmt.Println("allowed")
				} else {
					fmt.Println("denied")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "handle, initiate, execute, approve or delegate")
	cmd.Flags().StringVar(&eventType, "event-type", "", "event type")
	cmd.Flags().StringVar(&taskType, "task-type", "", "task type")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func roleLimitCmd() *cobra.Command {
	var authorityType string
	var amount int64
	cmd := &cobra.Command{
		Use:   "limit <role>",
		Short: "Show a role's approval authority and limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				decision, err := e.CheckApproval(ctx, tenantID, args[0], authorityType, amount)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(decision)
				}
				switch {
				case !decision.HasAuthority:
					fmt.Printf("role %s has no %s authority\n", args[0], authorityType)
				case decision.Limit == nil:
					fmt.Printf("role %s: %s authority, no upper limit\n", args[0], authorityType)
				default:
					fmt.Printf("role %s: %s authority up to %d\n", args[0], authorityType, *decision.Limit)
				}
				if cmd.Flags().Changed("amount") {
					verdict := "denied"
					if decision.Allowed {
						verdict = "approved"
					}
					fmt.Printf("amount %d: %s\n", amount, verdict)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&authorityType, "type", "", "authority type (discount, refund, leave, ...)")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to test against the limit")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage the staffing directory",
		Long:  "The directory maps roles and departments to actual people; assignment resolution consults it when routing tasks.",
	}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userRolesCmd())
	user.AddCommand(userRmCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var u domain.User
	var manager string
	var roleIDs []string
	var inactive bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a directory entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			u.ManagerID = optionalString(manager)
			u.Active = !inactive
			if cmd.Flags().Changed("role") {
				u.Roles = roleIDs
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				u.TenantID = tenantID
				res, err := e.UpsertUser(ctx, u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&u.ID, "id", "", "user id")
	cmd.Flags().StringVar(&u.Name, "name", "", "full name")
	cmd.Flags().StringVar(&u.Email, "email", "", "email")
	cmd.Flags().StringVar(&u.Department, "department", "", "department")
	cmd.Flags().StringVar(&manager, "manager", "", "manager user id")
	cmd.Flags().StringArrayVar(&roleIDs, "role", []string{}, "role to hold (repeatable, replaces existing roles)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "mark the user inactive")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func userListCmd() *cobra.Command {
	var f repo.UserFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List directory entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				f.TenantID = tenantID
				users, err := e.Repo.ListUsers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					active := "yes"
					if !u.Active {
						active = "no"
					}
					rows = append(rows, table.Row{u.ID, u.Name, u.Department, strings.Join(u.Roles, ","), deref(u.ManagerID), active})
				}
				renderTable(table.Row{"ID", "NAME", "DEPARTMENT", "ROLES", "MANAGER", "ACTIVE"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().StringVar(&f.Role, "role", "", "role filter")
	cmd.Flags().BoolVar(&f.ActiveOnly, "active-only", false, "only active users")
	return cmd
}

func userRolesCmd() *cobra.Command {
	var roleIDs []string
	cmd := &cobra.Command{
		Use:   "roles <id>",
		Short: "Replace a user's roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				res, err := e.SetUserRoles(ctx, tenantID, args[0], roleIDs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringArrayVar(&roleIDs, "role", []string{}, "role to hold (repeatable; none clears all roles)")
	return cmd
}

func userRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a directory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				if err := e.RemoveUser(ctx, tenantID, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"removed": args[0]})
				}
				fmt.Printf("Removed %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Short: "Inspect derived notifications"}
	n.AddCommand(notificationListCmd())
	return n
}

func notificationListCmd() *cobra.Command {
	var f repo.NotificationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				f.TenantID = tenantID
				items, err := e.Repo.ListNotifications(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				rows := make([]table.Row, 0, len(items))
				for _, n := range items {
					rows = append(rows, table.Row{n.ID, n.Template, n.EventType, strings.Join(n.Channels, ","), n.Status, n.CreatedAt})
				}
				renderTable(table.Row{"ID", "TEMPLATE", "EVENT", "CHANNELS", "STATUS", "CREATED"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.OccurrenceID, "occurrence", "", "occurrence id filter")
	cmd.Flags().StringVar(&f.EventType, "event-type", "", "event type filter")
	cmd.Flags().StringVar(&f.Template, "template", "", "template filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func auditCmd() *cobra.Command {
	a := &cobra.Command{Use: "audit", Short: "Audit log"}
	a.AddCommand(auditListCmd())
	return a
}

func auditListCmd() *cobra.Command {
	var n int
	var entryType, entityKind, entityID, actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the latest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				entries, err := e.Repo.LatestAudit(ctx, repo.AuditFilters{
					TenantID:   tenantID,
					Type:       entryType,
					EntityKind: entityKind,
					EntityID:   entityID,
					ActorID:    actor,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				rows := make([]table.Row, 0, len(entries))
				for _, entry := range entries {
					entity := entry.EntityKind
					if entry.EntityID != "" {
						entity += "/" + entry.EntityID
					}
					rows = append(rows, table.Row{entry.ID, entry.TS, entry.Type, entity, entry.ActorID})
				}
				renderTable(table.Row{"ID", "TS", "TYPE", "ENTITY", "ACTOR"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&entryType, "type", "", "entry type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for this tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				key, plain, err := e.CreateAPIKey(ctx, tenantID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				key.KeyHash = ""
				if viper.GetBool("json") {
					return printJSON(map[string]any{"api_key": key, "key": plain})
				}
				fmt.Printf("API key %s created for %s\n", key.ID, key.ActorID)
				fmt.Printf("Key: %s\n", plain)
				fmt.Println("Store it now; it is not shown again.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys (never the key material)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				keys, err := e.Repo.ListAPIKeys(ctx, tenantID, actor)
				if err != nil {
					return err
				}
				for i := range keys {
					keys[i].KeyHash = ""
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				rows := make([]table.Row, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, table.Row{k.ID, k.Name, k.ActorID, k.CreatedAt})
				}
				renderTable(table.Row{"ID", "NAME", "ACTOR", "CREATED"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				if err := e.RevokeAPIKey(ctx, tenantID, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"revoked": args[0]})
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func retentionCmd() *cobra.Command {
	r := &cobra.Command{Use: "retention", Short: "Retention policies"}
	r.AddCommand(retentionSweepCmd())
	return r
}

func retentionSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Apply retention policies now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				res, err := e.PurgeExpired(ctx, tenantID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Archived %d, deleted %d occurrences\n", res.Archived, res.Deleted)
				return nil
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the tenant scoreboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, tenantID string) error {
				t, err := e.Repo.GetTenant(ctx, tenantID)
				if err != nil {
					return err
				}
				taskCounts, err := e.Repo.CountTasksByStatus(ctx, tenantID)
				if err != nil {
					return err
				}
				occCounts, err := e.Repo.CountOccurrencesByType(ctx, tenantID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"tenant_id":         t.ID,
						"status":            t.Status,
						"task_counts":       taskCounts,
						"occurrence_counts": occCounts,
					})
				}
				fmt.Printf("Tenant: %s (%s)\n", t.ID, t.Status)
				fmt.Println("Tasks:")
				for status, c := range taskCounts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				fmt.Println("Occurrences:")
				for eventType, c := range occCounts {
					fmt.Printf("  %s: %d\n", eventType, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, logLevel string
	var legacyHeader, enableMetrics, logPretty bool
	var webhookEvery, retentionEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			log := logging.New(logLevel, logPretty)
			seed, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, seed)
			if enableMetrics {
				e.Metrics = metrics.New()
			}
			jwtSecret := viper.GetString("jwt-secret")
			if jwtSecret == "" && !legacyHeader {
				return fmt.Errorf("a JWT secret is required; pass --jwt-secret, set DW_JWT_SECRET, or allow --legacy-actor-header for local use")
			}
			if url := viper.GetString("nats-url"); url != "" {
				pub, err := notify.Connect(url, "", log)
				if err != nil {
					return err
				}
				defer pub.Close()
				e.Notifier = pub
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              jwtSecret,
					AllowLegacyActorHeader: legacyHeader,
					Logger:                 &log,
				},
				EnableMetrics: enableMetrics,
			})
			if err != nil {
				return err
			}
			var stops []func()
			if webhookEvery > 0 {
				stops = append(stops, server.StartWebhookForwarder(e, webhookEvery, log))
			}
			if retentionEvery > 0 {
				stops = append(stops, server.StartRetentionSweeper(e, retentionEvery, log))
			}
			defer func() {
				for _, stop := range stops {
					stop()
				}
			}()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Dawin dispatch API on http://%s%s (OpenAPI at %s/openapi.json, docs at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for bearer tokens (env DW_JWT_SECRET)")
	cmd.Flags().String("nats-url", "", "NATS URL for notification publishing (env DW_NATS_URL)")
	cmd.Flags().BoolVar(&legacyHeader, "legacy-actor-header", false, "accept the X-Actor-Id header without credentials (local use only)")
	cmd.Flags().BoolVar(&enableMetrics, "metrics", false, "expose Prometheus metrics on /metrics")
	cmd.Flags().DurationVar(&webhookEvery, "webhook-interval", 5*time.Second, "webhook forwarder poll interval (0 disables)")
	cmd.Flags().DurationVar(&retentionEvery, "retention-interval", time.Hour, "retention sweep interval (0 disables)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	cmd.Flags().BoolVar(&logPretty, "log-pretty", false, "human readable log output")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	_ = viper.BindPFlag("nats-url", cmd.Flags().Lookup("nats-url"))
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("dw " + appVersion)
		},
	}
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, seed)
	tenantID, cfg, err := app.ResolveTenantAndConfig(ctx, viper.GetString("tenant"), viper.GetString("actor-id"), e)
	if err != nil {
		return err
	}
	e.Config = cfg
	return fn(ctx, e, tenantID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func parsePayload(raw string, fields []string) (map[string]any, error) {
	payload := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("invalid --payload: %w", err)
		}
	}
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --field %q, want key=value", f)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		payload[k] = parsed
	}
	return payload, nil
}

func renderTable(header table.Row, rows []table.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
