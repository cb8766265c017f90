package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/client"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the envtree server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			status string
			err    error
		)
		switch transport {
		case "grpc":
			c, dialErr := client.NewGRPCClient(grpcAddr, authToken)
			if dialErr != nil {
				return fmt.Errorf("failed to connect to server: %w", dialErr)
			}
			defer c.Close()
			status, err = c.Health(cmd.Context())
		default:
			status, err = apiClient.Health(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput() {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

