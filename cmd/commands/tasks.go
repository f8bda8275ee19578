package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/lazytasks/internal/dispatch"
	"github.com/dohr-michael/lazytasks/internal/store"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Manage tasks directly in the database",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only tasks with this status (default: active)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include done and cancelled tasks",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tasks",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "recent",
						Usage: "Order by last update instead of priority",
					},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show task details",
				ArgsUsage: "<task_id>",
				Action:    runTasksShow,
			},
			{
				Name:      "add",
				Usage:     "Create a task",
				ArgsUsage: "<content>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "priority",
						Aliases: []string{"p"},
						Usage:   "1 (most urgent) to 5",
						Value:   store.DefaultPriority,
					},
					&cli.StringFlag{
						Name:  "deadline",
						Usage: "Deadline as YYYY-MM-DD",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Tag (repeatable)",
					},
					&cli.StringFlag{
						Name:  "project",
						Usage: "Project name, created when missing",
					},
					&cli.StringFlag{
						Name:  "parent",
						Usage: "Parent task ID",
					},
				},
				Action: runTasksAdd,
			},
			{
				Name:      "parent",
				Usage:     "Attach a task to a parent task, or detach it with \"none\"",
				ArgsUsage: "<task_id> <parent_id|none>",
				Action:    runTasksParent,
			},
			{
				Name:  "projects",
				Usage: "Manage projects",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List projects",
						Action: runProjectsList,
					},
					{
						Name:      "add",
						Usage:     "Create a project",
						ArgsUsage: "<name>",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "description",
								Usage: "What the project is about",
							},
						},
						Action: runProjectsAdd,
					},
				},
				DefaultCommand: "list",
			},
			{
				Name:      "status",
				Usage:     "Change the status of a task",
				ArgsUsage: "<task_id> <todo|in_progress|done|cancelled>",
				Action:    runTasksStatus,
			},
		},
		DefaultCommand: "list",
	}
}

func openStore(ctx context.Context, cmd *cli.Command) (*store.DB, *time.Location, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg.App.Location(), nil
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	db, loc, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	filter := store.TaskFilter{
		Statuses:    store.ActiveStatuses,
		Limit:       cmd.Int("limit"),
		RecentFirst: cmd.Bool("recent"),
	}
	if cmd.Bool("all") {
		filter.Statuses = nil
	}
	if s := cmd.String("status"); s != "" {
		st, err := store.ParseStatus(s)
		if err != nil {
			return err
		}
		filter.Statuses = []store.TaskStatus{st}
	}

	list, err := db.ListTasks(ctx, filter)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No tasks found.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tP\tSTATUS\tDEADLINE\tCONTENT")
		for _, t := range list {
			deadline := "-"
			if t.Deadline != nil {
				deadline = t.Deadline.In(loc).Format("2006-01-02")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				t.ID,
				dispatch.PriorityGlyph(t.Priority),
				t.Status,
				deadline,
				shorten(t.Content, 60),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	counts, err := db.CountTasksByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}
	fmt.Printf("\ntodo: %d | in_progress: %d | done: %d | cancelled: %d\n",
		counts[store.StatusTodo],
		counts[store.StatusInProgress],
		counts[store.StatusDone],
		counts[store.StatusCancelled],
	)
	return nil
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func runTasksShow(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("usage: lazytasks tasks show <task_id>")
	}
	id, err := parseTaskID(cmd.Args().First())
	if err != nil {
		return err
	}

	db, loc, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := db.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if t == nil {
		return fmt.Errorf("task #%d not found", id)
	}

	const stamp = "2006-01-02 15:04"
	fmt.Printf("ID:          %d\n", t.ID)
	fmt.Printf("Content:     %s\n", t.Content)
	fmt.Printf("Status:      %s\n", t.Status)
	fmt.Printf("Priority:    %s P%d\n", dispatch.PriorityGlyph(t.Priority), t.Priority)
	if t.Deadline != nil {
		fmt.Printf("Deadline:    %s\n", t.Deadline.In(loc).Format(stamp))
	}
	if len(t.Tags) > 0 {
		fmt.Printf("Tags:        %s\n", strings.Join(t.Tags, ", "))
	}
	if t.Complexity != "" {
		fmt.Printf("Complexity:  %s\n", t.Complexity)
	}
	if t.ProjectName != "" {
		fmt.Printf("Project:     %s\n", t.ProjectName)
	}
	if t.ParentID != nil {
		fmt.Printf("Parent:      #%d\n", *t.ParentID)
	}
	fmt.Printf("Created:     %s\n", t.CreatedAt.In(loc).Format(stamp))
	fmt.Printf("Updated:     %s\n", t.UpdatedAt.In(loc).Format(stamp))
	return nil
}

func runTasksAdd(ctx context.Context, cmd *cli.Command) error {
	content := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("usage: lazytasks tasks add <content>")
	}

	db, loc, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	in := store.NewTask{
		Content:  content,
		Priority: cmd.Int("priority"),
		Tags:     cmd.StringSlice("tag"),
	}
	if s := cmd.String("deadline"); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return fmt.Errorf("invalid deadline %q: want YYYY-MM-DD", s)
		}
		in.Deadline = &d
	}

	var t *store.Task
	err = db.WithTx(ctx, func(tx *store.Tx) error {
		created, err := addTask(ctx, tx, in, cmd.String("project"), cmd.String("parent"))
		t = created
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("Task #%d created.\n", t.ID)
	return nil
}

// addTask creates in under the named project and parent task, either of
// which may be empty.
func addTask(ctx context.Context, tx *store.Tx, in store.NewTask, project, parent string) (*store.Task, error) {
	if project != "" {
		p, err := tx.EnsureProject(ctx, project)
		if err != nil {
			return nil, err
		}
		in.ProjectID = &p.ID
	}
	if parent != "" {
		id, err := parseTaskID(parent)
		if err != nil {
			return nil, err
		}
		pt, err := tx.GetTask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get parent task: %w", err)
		}
		if pt == nil {
			return nil, fmt.Errorf("parent task #%d not found", id)
		}
		in.ParentID = &pt.ID
	}

	t, err := tx.CreateTask(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func runTasksParent(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("usage: lazytasks tasks parent <task_id> <parent_id|none>")
	}
	id, err := parseTaskID(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	var parent *int64
	if arg := cmd.Args().Get(1); arg != "none" {
		pid, err := parseTaskID(arg)
		if err != nil {
			return err
		}
		parent = &pid
	}

	db, _, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SetParent(ctx, id, parent); err != nil {
		return err
	}
	if parent == nil {
		fmt.Printf("Task #%d detached.\n", id)
	} else {
		fmt.Printf("Task #%d is now under #%d.\n", id, *parent)
	}
	return nil
}

func runProjectsList(ctx context.Context, cmd *cli.Command) error {
	db, loc, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	projects, err := db.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tCREATED\tDESCRIPTION")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			p.Name,
			p.Status,
			p.CreatedAt.In(loc).Format("2006-01-02"),
			shorten(p.Description, 60),
		)
	}
	return w.Flush()
}

func runProjectsAdd(ctx context.Context, cmd *cli.Command) error {
	name := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("usage: lazytasks tasks projects add <name>")
	}

	db, _, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.CreateProject(ctx, name, cmd.String("description"))
	if err != nil {
		return err
	}
	fmt.Printf("Project %q created.\n", p.Name)
	return nil
}

func runTasksStatus(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("usage: lazytasks tasks status <task_id> <status>")
	}
	id, err := parseTaskID(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	status, err := store.ParseStatus(cmd.Args().Get(1))
	if err != nil {
		return err
	}

	db, _, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := db.UpdateTask(ctx, id, store.TaskUpdate{Status: &status})
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if t == nil {
		return fmt.Errorf("task #%d not found", id)
	}
	fmt.Printf("Task #%d is now %s.\n", t.ID, t.Status)
	return nil
}
