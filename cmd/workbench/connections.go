package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "Manage gateway connections",
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		state, err := a.store.Load()
		if err != nil {
			return err
		}

		data := pterm.TableData{{"ID", "NAME", "GATEWAY", "JOBMANAGER"}}
		for _, conn := range state.Connections {
			data = append(data, []string{conn.ID, conn.Name, conn.GatewayURL, conn.JobManagerURL})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var connectionsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gatewayURL, _ := cmd.Flags().GetString("gateway-url")
		if gatewayURL == "" {
			return fmt.Errorf("--gateway-url is required")
		}
		jobManagerURL, _ := cmd.Flags().GetString("jobmanager-url")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		state, err := a.store.Load()
		if err != nil {
			return err
		}
		conn := state.AddConnection(args[0], gatewayURL, jobManagerURL)
		if err := a.store.Save(state); err != nil {
			return err
		}
		pterm.Success.Printfln("connection %s added (id %s)", conn.Name, conn.ID)
		return nil
	},
}

var connectionsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		state, err := a.store.Load()
		if err != nil {
			return err
		}
		if err := state.RemoveConnection(args[0]); err != nil {
			return err
		}
		if err := a.store.Save(state); err != nil {
			return err
		}
		pterm.Success.Printfln("connection %s removed", args[0])
		return nil
	},
}

func init() {
	connectionsAddCmd.Flags().String("gateway-url", "", "SQL gateway base URL")
	connectionsAddCmd.Flags().String("jobmanager-url", "", "JobManager dashboard base URL")

	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsAddCmd)
	connectionsCmd.AddCommand(connectionsRemoveCmd)
}
