package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/dispatch/agent"
	"github.com/GoCodeAlone/dispatch/eventlog"
	"github.com/GoCodeAlone/dispatch/report"
	"github.com/GoCodeAlone/dispatch/skills"
	"github.com/GoCodeAlone/dispatch/task"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// statusStyle picks a color for a task status bucket.
func statusStyle(s task.Status) lipgloss.Style {
	switch s {
	case task.StatusCompleted:
		return okStyle
	case task.StatusFailed:
		return badStyle
	case task.StatusPending:
		return warnStyle
	default:
		return lipgloss.NewStyle()
	}
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the delegation dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		var sum report.Summary
		if err := cli.get("/api/report", &sum); err != nil {
			return err
		}

		fmt.Println(titleStyle.Render("Delegation Dashboard"))
		fmt.Println()

		fmt.Println(headerStyle.Render(fmt.Sprintf("Tasks (%d total)", sum.TotalTasks)))
		for _, st := range []task.Status{
			task.StatusPending, task.StatusAssigned, task.StatusInProgress,
			task.StatusCompleted, task.StatusFailed,
		} {
			n := sum.TasksByStatus[st]
			if n == 0 {
				continue
			}
			fmt.Printf("  %s %d\n", statusStyle(st).Render(fmt.Sprintf("%-12s", st)), n)
		}
		fmt.Println()

		fmt.Println(headerStyle.Render("Top agents"))
		fmt.Printf("  %-12s %-10s %-8s %-10s %s\n", "agent", "load", "done", "success", "status")
		for _, a := range sum.Agents {
			load := fmt.Sprintf("%d/%d", a.CurrentLoad, a.Capacity)
			if a.OpenAssignments != a.CurrentLoad {
				load += fmt.Sprintf(" (%d open)", a.OpenAssignments)
			}
			line := fmt.Sprintf("  %-12s %-10s %-8d %-10.2f %s",
				a.Name, load, a.TotalCompleted, a.SuccessRate, a.Status)
			if a.CurrentLoad > a.Capacity {
				line = badStyle.Render(line)
			}
			fmt.Println(line)
		}
		fmt.Println()
		fmt.Printf("open assignments: %d\n", sum.OpenAssignments)
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List active agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		var agents []*agent.Agent
		if err := cli.get("/api/agents", &agents); err != nil {
			return err
		}
		for _, a := range agents {
			fmt.Printf("%-12s %-10s load %d/%d  success %.2f  [%s]\n",
				a.ID, a.Status, a.CurrentLoad, a.Capacity, a.SuccessRate,
				strings.Join(a.Skills, ", "))
		}
		return nil
	},
}

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the skill catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		var list []skills.Skill
		if err := cli.get("/api/skills", &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("no cataloged skills")
			return nil
		}
		for _, s := range list {
			fmt.Printf("%-16s %-14s %s\n", s.ID, s.Category, s.Description)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent delegation events",
	RunE: func(cmd *cobra.Command, args []string) error {
		var evs []*eventlog.Event
		if err := cli.get("/api/events?limit=50", &evs); err != nil {
			return err
		}
		for _, ev := range evs {
			fmt.Printf("%s  %-15s %-40s %s\n",
				ev.Timestamp.Format("15:04:05"), ev.Kind, ev.Subject, ev.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd, agentsCmd, skillsCmd, eventsCmd)
}
