package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Short:   "Manage projects",
	GroupID: "manage",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project owned by the current user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")
		p, err := apiClient.CreateProject(cmd.Context(), args[0], desc)
		if err != nil {
			return fmt.Errorf("creating project: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK(fmt.Sprintf("Created project %s (%s)", ui.Highlight.Sprint(p.Name), p.ID)))
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects you are a member of",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		projects, err := apiClient.ListProjects(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), projects)
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no projects")
			return nil
		}
		return printProjectList(cmd.OutOrStdout(), projects)
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <projectId>",
	Short: "Show a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := apiClient.GetProject(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("getting project: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), p)
		}
		printProject(cmd.OutOrStdout(), p)
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <projectId>",
	Short: "Delete a project with all of its configs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.DeleteProject(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deleting project: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK("Deleted project "+args[0]))
		return nil
	},
}

var projectAddMemberCmd = &cobra.Command{
	Use:   "add-member <projectId> <email>",
	Short: "Grant a registered user access to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := apiClient.AddMember(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("adding member: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), u)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK(fmt.Sprintf("Added %s to %s", ui.Highlight.Sprint(u.Email), args[0])))
		return nil
	},
}

var projectEventsCmd = &cobra.Command{
	Use:   "events <projectId>",
	Short: "Show the recorded change history of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		evts, err := apiClient.GetEvents(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("getting events: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		return printEvents(cmd.OutOrStdout(), evts)
	},
}

func init() {
	projectCreateCmd.Flags().String("description", "", "project description")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	projectCmd.AddCommand(projectAddMemberCmd)
	projectCmd.AddCommand(projectEventsCmd)
}
