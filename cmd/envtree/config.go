package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/client"
	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage configs within a project",
	GroupID: "manage",
}

// currentVersion returns --version when given, otherwise the config's
// latest version token from the server.
func currentVersion(ctx context.Context, cmd *cobra.Command, projectID, configID string) (string, error) {
	if v, _ := cmd.Flags().GetString("version"); v != "" {
		return v, nil
	}
	rc, err := apiClient.GetConfig(ctx, projectID, configID)
	if err != nil {
		return "", fmt.Errorf("getting config: %w", err)
	}
	return rc.Config.Version, nil
}

// configWriteError adds a hint to version conflicts.
func configWriteError(action string, err error) error {
	if client.IsConflict(err) {
		return fmt.Errorf("%s: config was changed by someone else; re-run to apply on the latest version", action)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func reportConfig(cmd *cobra.Command, verb string, c *model.Config) error {
	if jsonOutput() {
		return printJSON(cmd.OutOrStdout(), c)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.OK(fmt.Sprintf("%s config %s (%s)", verb, ui.Highlight.Sprint(c.Name), c.ID)))
	return nil
}

var configListCmd = &cobra.Command{
	Use:   "list <projectId>",
	Short: "List configs with their resolved values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := apiClient.ListConfigs(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("listing configs: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no configs")
			return nil
		}
		return printConfigList(cmd.OutOrStdout(), list)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <projectId> <configId>",
	Short: "Show a config and its flattened values",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := apiClient.GetConfig(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("getting config: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), rc)
		}
		reveal, _ := cmd.Flags().GetBool("reveal")
		return printConfig(cmd.OutOrStdout(), rc, reveal)
	},
}

var configCreateCmd = &cobra.Command{
	Use:   "create <projectId> <name>",
	Short: "Create an empty config",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient.CreateConfig(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("creating config: %w", err)
		}
		return reportConfig(cmd, "Created", c)
	},
}

var configDuplicateCmd = &cobra.Command{
	Use:   "duplicate <projectId> <configId> <name>",
	Short: "Copy a config's own values and link into a new config",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient.DuplicateConfig(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("duplicating config: %w", err)
		}
		return reportConfig(cmd, "Created", c)
	},
}

var configLinkCmd = &cobra.Command{
	Use:   "link <projectId> <configId> <name>",
	Short: "Create a new config that inherits from configId",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient.LinkConfig(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("linking config: %w", err)
		}
		return reportConfig(cmd, "Linked", c)
	},
}

var configUnlinkCmd = &cobra.Command{
	Use:   "unlink <projectId> <configId>",
	Short: "Materialize inherited values and drop the link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		version, err := currentVersion(ctx, cmd, args[0], args[1])
		if err != nil {
			return err
		}
		c, err := apiClient.UnlinkConfig(ctx, args[0], args[1], version)
		if err != nil {
			return configWriteError("unlinking config", err)
		}
		return reportConfig(cmd, "Unlinked", c)
	},
}

var configRenameCmd = &cobra.Command{
	Use:   "rename <projectId> <configId> <name>",
	Short: "Rename a config",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		version, err := currentVersion(ctx, cmd, args[0], args[1])
		if err != nil {
			return err
		}
		c, err := apiClient.RenameConfig(ctx, args[0], args[1], version, args[2])
		if err != nil {
			return configWriteError("renaming config", err)
		}
		return reportConfig(cmd, "Renamed", c)
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <projectId> <configId>",
	Short: "Delete a config; configs linked to it keep their own values",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.DeleteConfig(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("deleting config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK("Deleted config "+args[1]))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <projectId> <configId> <key> [value]",
	Short: "Set or add a property",
	Long: `Set a property on a config's own values. With --create the key must not
exist yet. Omit the value (or pass --null) to store null.`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		version, err := currentVersion(ctx, cmd, args[0], args[1])
		if err != nil {
			return err
		}

		req := client.SetValueRequest{Version: version}
		setNull, _ := cmd.Flags().GetBool("null")
		if len(args) == 4 && !setNull {
			req.Value = model.StringPtr(args[3])
		}
		req.Hidden, _ = cmd.Flags().GetBool("hidden")
		req.Create, _ = cmd.Flags().GetBool("create")
		if cmd.Flags().Changed("group") {
			g, _ := cmd.Flags().GetString("group")
			req.Group = &g
		}

		c, err := apiClient.SetValue(ctx, args[0], args[1], args[2], req)
		if err != nil {
			return configWriteError("setting value", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), c)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK(fmt.Sprintf("Set %s on %s", ui.Highlight.Sprint(args[2]), c.Name)))
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <projectId> <configId> <key>",
	Short: "Remove a property from a config's own values",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		version, err := currentVersion(ctx, cmd, args[0], args[1])
		if err != nil {
			return err
		}
		c, err := apiClient.UnsetValue(ctx, args[0], args[1], version, args[2])
		if err != nil {
			return configWriteError("unsetting value", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), c)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK(fmt.Sprintf("Removed %s from %s", ui.Highlight.Sprint(args[2]), c.Name)))
		return nil
	},
}

func init() {
	configShowCmd.Flags().Bool("reveal", false, "show hidden values")

	for _, c := range []*cobra.Command{configUnlinkCmd, configRenameCmd, configSetCmd, configUnsetCmd} {
		c.Flags().String("version", "", "expected config version (default: latest)")
	}
	configSetCmd.Flags().Bool("create", false, "fail if the key already exists")
	configSetCmd.Flags().Bool("hidden", false, "mask the value in listings")
	configSetCmd.Flags().Bool("null", false, "store a null value")
	configSetCmd.Flags().String("group", "", "property group")

	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configCreateCmd)
	configCmd.AddCommand(configDuplicateCmd)
	configCmd.AddCommand(configLinkCmd)
	configCmd.AddCommand(configUnlinkCmd)
	configCmd.AddCommand(configRenameCmd)
	configCmd.AddCommand(configDeleteCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
