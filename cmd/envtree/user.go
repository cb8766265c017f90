package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/ui"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Short:   "Manage your account",
	GroupID: "manage",
}

var userRegisterCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Register a new user and print its auth token",
	Long: `Register a new user. When the server has an admin token configured,
pass it with --token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		u, err := apiClient.RegisterUser(cmd.Context(), args[0], name)
		if err != nil {
			return fmt.Errorf("registering user: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), u)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.OK("Registered "+ui.Highlight.Sprint(u.Email)))
		printUser(out, u)
		fmt.Fprintln(out, ui.Hint("Save it with "+ui.Highlight.Sprint("envtree remote add <name> <url> --token "+u.AuthToken)))
		return nil
	},
}

var userShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := apiClient.CurrentUser(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), u)
		}
		printUser(cmd.OutOrStdout(), u)
		return nil
	},
}

var userRenameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Change your display name or username",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var name, username *string
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			name = &v
		}
		if cmd.Flags().Changed("username") {
			v, _ := cmd.Flags().GetString("username")
			username = &v
		}
		if name == nil && username == nil {
			return fmt.Errorf("pass --name and/or --username")
		}
		u, err := apiClient.UpdateUser(cmd.Context(), name, username)
		if err != nil {
			return fmt.Errorf("updating user: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), u)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK("Updated "+u.Email))
		return nil
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Regenerate your auth token",
	Long:  "Regenerate your auth token. The previous token stops working immediately.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := apiClient.RegenerateToken(cmd.Context())
		if err != nil {
			return fmt.Errorf("regenerating token: %w", err)
		}
		if jsonOutput() {
			return printJSON(cmd.OutOrStdout(), u)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK("New token: "+ui.Highlight.Sprint(u.AuthToken)))
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete your account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to delete the account without --yes")
		}
		if err := apiClient.DeleteUser(cmd.Context()); err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK("Account deleted"))
		return nil
	},
}

func init() {
	userRegisterCmd.Flags().String("name", "", "display name")
	userRenameCmd.Flags().String("name", "", "new display name")
	userRenameCmd.Flags().String("username", "", "new username")
	userDeleteCmd.Flags().Bool("yes", false, "confirm deletion")

	userCmd.AddCommand(userRegisterCmd)
	userCmd.AddCommand(userShowCmd)
	userCmd.AddCommand(userRenameCmd)
	userCmd.AddCommand(userTokenCmd)
	userCmd.AddCommand(userDeleteCmd)
}
