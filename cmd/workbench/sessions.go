package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage gateway sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		sessions, err := a.registry.Sessions()
		if err != nil {
			return err
		}
		active, _ := a.registry.ActiveSession()

		data := pterm.TableData{{"", "NAME", "HANDLE", "CONNECTION", "CREATED"}}
		for _, sess := range sessions {
			marker := ""
			if active != nil && sess.Handle == active.Handle {
				marker = "*"
			}
			data = append(data, []string{
				marker, sess.Name, sess.Handle, sess.ConnectionID,
				sess.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session and make it active",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		name, _ := cmd.Flags().GetString("name")
		connectionID, _ := cmd.Flags().GetString("connection")

		sess, err := a.registry.CreateSession(cmd.Context(), name, connectionID)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("session %s created (handle %s)", sess.Name, sess.Handle)
		return nil
	},
}

var sessionsRemoveCmd = &cobra.Command{
	Use:   "remove <handle>",
	Short: "Remove a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.registry.RemoveSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		pterm.Success.Printfln("session %s removed", args[0])
		return nil
	},
}

var sessionsUseCmd = &cobra.Command{
	Use:   "use <handle>",
	Short: "Make a session active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.registry.SetActiveSession(args[0]); err != nil {
			return err
		}
		fmt.Printf("active session: %s\n", args[0])
		return nil
	},
}

func init() {
	sessionsCreateCmd.Flags().String("name", "", "session name")
	sessionsCreateCmd.Flags().String("connection", "", "connection ID")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCreateCmd)
	sessionsCmd.AddCommand(sessionsRemoveCmd)
	sessionsCmd.AddCommand(sessionsUseCmd)
}
