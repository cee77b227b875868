package main

import (
	"encoding/json"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect jobs on the cluster",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		jobs, err := a.dashboard.JobsOverview(cmd.Context())
		if err != nil {
			return err
		}

		data := pterm.TableData{{"ID", "NAME", "STATE", "STARTED", "DURATION"}}
		for _, job := range jobs {
			data = append(data, []string{
				job.JID, job.Name, job.State,
				formatMillis(job.StartTime),
				formatDuration(job.Duration),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show job details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		job, err := a.dashboard.Job(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		pterm.Printfln("Job:      %s", job.Name)
		pterm.Printfln("ID:       %s", job.JID)
		pterm.Printfln("State:    %s", job.State)
		pterm.Printfln("Started:  %s", formatMillis(job.StartTime))
		pterm.Printfln("Duration: %s", formatDuration(job.Duration))

		if len(job.Vertices) > 0 {
			data := pterm.TableData{{"VERTEX", "PARALLELISM", "STATUS"}}
			for _, vertex := range job.Vertices {
				data = append(data, []string{
					vertex.Name,
					pterm.Sprintf("%d", vertex.Parallelism),
					vertex.Status,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		}
		return nil
	},
}

var jobsPlanCmd = &cobra.Command{
	Use:   "plan <id>",
	Short: "Show a job's execution plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		plan, err := a.dashboard.JobPlan(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(plan.Plan, "", "  ")
		if err != nil {
			return err
		}
		pterm.Println(string(data))
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.dashboard.CancelJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		pterm.Success.Printfln("job %s cancel requested", args[0])
		return nil
	},
}

var jobsClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Show cluster overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		overview, err := a.dashboard.Overview(cmd.Context())
		if err != nil {
			return err
		}

		pterm.Printfln("Flink version:   %s", overview.FlinkVersion)
		pterm.Printfln("Task managers:   %d", overview.TaskManagers)
		pterm.Printfln("Slots:           %d/%d available", overview.SlotsAvailable, overview.SlotsTotal)
		pterm.Printfln("Jobs running:    %d", overview.JobsRunning)
		pterm.Printfln("Jobs finished:   %d", overview.JobsFinished)
		pterm.Printfln("Jobs cancelled:  %d", overview.JobsCancelled)
		pterm.Printfln("Jobs failed:     %d", overview.JobsFailed)
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsPlanCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsClusterCmd)
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}

func formatDuration(ms int64) string {
	if ms < 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Truncate(time.Second).String()
}
