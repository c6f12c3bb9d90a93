package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"projectboard/internal/app"
	"projectboard/internal/domain"
	"projectboard/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Due", "Priority", "Progress", "Tasks", "Team"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.DueDate, p.Priority, progressBar(p.Progress, 10), len(p.Tasks), strings.Join(p.Team, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// parseTaskSpec reads "title" or "title:status".
func parseTaskSpec(spec string) engine.TaskDraft {
	title, status, found := strings.Cut(spec, ":")
	d := engine.TaskDraft{Title: strings.TrimSpace(title)}
	if found {
		d.Status = domain.TaskStatus(strings.TrimSpace(status))
	}
	return d
}

func projectCreateCmd() *cobra.Command {
	var d engine.ProjectDraft
	var tasks []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, spec := range tasks {
				d.Tasks = append(d.Tasks, parseTaskSpec(spec))
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.CreateProject(ctx, d, actorID())
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&d.Title, "title", "", "title")
	cmd.Flags().StringVar(&d.Description, "description", "", "description")
	cmd.Flags().StringVar(&d.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&d.Priority, "priority", 3, "priority 1 (highest) to 5")
	cmd.Flags().StringArrayVar(&d.Team, "member", nil, "team member (repeatable)")
	cmd.Flags().StringArrayVar(&tasks, "task", nil, "task as title or title:status (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.GetProject(ctx, args[0])
				if err != nil {
					return fmt.Errorf("project %s: %w", args[0], err)
				}
				return printProject(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var title, description, due string
	var priority int
	var team []string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update project fields; tasks are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.GetProject(ctx, args[0])
				if err != nil {
					return fmt.Errorf("project %s: %w", args[0], err)
				}
				d := engine.DraftOf(p)
				if cmd.Flags().Changed("title") {
					d.Title = title
				}
				if cmd.Flags().Changed("description") {
					d.Description = description
				}
				if cmd.Flags().Changed("due") {
					d.DueDate = due
				}
				if cmd.Flags().Changed("priority") {
					d.Priority = priority
				}
				if cmd.Flags().Changed("member") {
					d.Team = team
				}
				updated, err := ws.Engine.UpdateProject(ctx, p.ID, d, actorID())
				if err != nil {
					return err
				}
				return printProject(updated)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority 1 (highest) to 5")
	cmd.Flags().StringArrayVar(&team, "member", nil, "replace the team (repeatable)")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				return ws.Engine.DeleteProject(ctx, args[0], actorID())
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage a project's tasks",
		Long:  "Tasks move between todo, in-progress and completed. Completing a task stamps its completion time and every change recomputes project progress.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskRemoveCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var d engine.TaskDraft
	var status, due string
	cmd := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d.Status = domain.TaskStatus(status)
			d.DueDate = optionalString(due)
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.AddTask(ctx, args[0], d, actorID())
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&d.Title, "title", "", "title")
	cmd.Flags().StringVar(&status, "status", "todo", "todo, in-progress or completed")
	cmd.Flags().StringArrayVar(&d.Assignees, "assignee", nil, "assignee (repeatable)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id> <task-id> <todo|in-progress|completed>",
		Short: "Set a task's status",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				s := engine.NewSession(ws.Engine, ws.Engine.Now)
				p, err := s.SetTaskStatus(ctx, args[0], args[1], domain.TaskStatus(args[2]), actorID())
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func taskRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <project-id> <task-id>",
		Short: "Remove a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.RemoveTask(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage a project's team"}
	team.AddCommand(&cobra.Command{
		Use:   "add <project-id> <name>",
		Short: "Add a team member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.AddTeamMember(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	})
	team.AddCommand(&cobra.Command{
		Use:   "remove <project-id> <name>",
		Short: "Remove a team member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				p, err := ws.Engine.RemoveTeamMember(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	})
	return team
}

func printProject(p domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	fmt.Printf("%s  %s\n", p.ID, p.Title)
	if p.Description != "" {
		fmt.Println(p.Description)
	}
	fmt.Printf("Due %s  Priority %d  Progress %s\n", p.DueDate, p.Priority, progressBar(p.Progress, 20))
	if len(p.Team) > 0 {
		fmt.Printf("Team: %s\n", strings.Join(p.Team, ", "))
	}
	writeTasks(os.Stdout, p.Tasks, 0)
	return nil
}
