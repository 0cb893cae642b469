package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/dispatch/delegation"
	"github.com/GoCodeAlone/dispatch/task"
)

var (
	submitSkills      []string
	submitPriority    string
	submitDescription string
	submitComplexity  int

	tasksStatus string
	tasksLimit  int
)

var submitCmd = &cobra.Command{
	Use:   "submit <title>",
	Short: "Submit a task for delegation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res delegation.SubmitResult
		err := cli.post("/api/tasks", map[string]any{
			"title":           args[0],
			"description":     submitDescription,
			"required_skills": submitSkills,
			"priority":        submitPriority,
			"complexity":      submitComplexity,
		}, &res)
		if err != nil {
			return err
		}
		fmt.Printf("task %s submitted\n", res.TaskID)
		if res.Assignment == nil {
			fmt.Println("no agent available; task is pending, retry with `dispatch delegate`")
			return nil
		}
		fmt.Printf("delegated to %s (score %.2f)\n", res.Assignment.AgentName, res.Assignment.Score)
		return nil
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		var tasks []*task.Task
		q := query(map[string]string{
			"status": tasksStatus,
			"limit":  itoaIfSet(tasksLimit),
		})
		if err := cli.get("/api/tasks"+q, &tasks); err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("no tasks")
			return nil
		}
		for _, t := range tasks {
			assignee := t.AssignedTo
			if assignee == "" {
				assignee = "-"
			}
			fmt.Printf("%-40s  %-11s  %-6s  %-10s  %s\n",
				t.ID, t.Status, t.Priority, assignee, t.Title)
		}
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:   "task <id>",
	Short: "Show a task and its assignment history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res struct {
			Task        *task.Task               `json:"task"`
			Assignments []*delegation.Assignment `json:"assignments"`
		}
		if err := cli.get("/api/tasks/"+args[0], &res); err != nil {
			return err
		}
		t := res.Task
		fmt.Printf("Task: %s\n", t.ID)
		fmt.Printf("Title: %s\n", t.Title)
		fmt.Printf("Status: %s  Priority: %s  Complexity: %d\n", t.Status, t.Priority, t.Complexity)
		fmt.Printf("Skills: %s\n", strings.Join(t.RequiredSkills, ", "))
		if t.AssignedTo != "" {
			fmt.Printf("Assigned to: %s\n", t.AssignedTo)
		}
		for _, a := range res.Assignments {
			outcome := "open"
			if a.Success != nil {
				if *a.Success {
					outcome = "success"
				} else {
					outcome = "failure"
				}
			}
			fmt.Printf("  assignment %s -> %s (score %.2f, %s)\n", a.ID, a.AgentID, a.Score, outcome)
		}
		return nil
	},
}

var delegateCmd = &cobra.Command{
	Use:   "delegate <task-id>",
	Short: "Delegate a pending task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res delegation.AssignmentResult
		if err := cli.post("/api/tasks/"+args[0]+"/delegate", nil, &res); err != nil {
			return err
		}
		fmt.Printf("delegated to %s (score %.2f)\n", res.AgentName, res.Score)
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return resolve(args[0], true) },
}

var failCmd = &cobra.Command{
	Use:   "fail <task-id>",
	Short: "Mark a task failed",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return resolve(args[0], false) },
}

var progressCmd = &cobra.Command{
	Use:   "progress <task-id>",
	Short: "Mark an assigned task in progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.post("/api/tasks/"+args[0]+"/progress", nil, nil)
	},
}

func resolve(taskID string, success bool) error {
	var res delegation.Resolution
	err := cli.post("/api/tasks/"+taskID+"/complete", map[string]bool{"success": success}, &res)
	if err != nil {
		return err
	}
	fmt.Printf("task %s: agent %s now at %d completed, success rate %.2f\n",
		res.TaskStatus, res.AgentID, res.TotalCompleted, res.SuccessRate)
	return nil
}

func itoaIfSet(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

func init() {
	submitCmd.Flags().StringSliceVarP(&submitSkills, "skills", "s", nil, "required skill tags (comma separated)")
	submitCmd.Flags().StringVarP(&submitPriority, "priority", "p", "medium", "priority: low, medium, high, urgent")
	submitCmd.Flags().StringVarP(&submitDescription, "desc", "d", "", "task description")
	submitCmd.Flags().IntVarP(&submitComplexity, "complexity", "c", 5, "complexity 1-10")

	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by status")
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 0, "limit results")

	rootCmd.AddCommand(submitCmd, tasksCmd, taskCmd, delegateCmd, completeCmd, failCmd, progressCmd)
}
