package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:               "remote",
	Short:             "Manage named server remotes",
	Long:              "Remotes are stored in remotes.toml under the user config directory, or at $ENVTREE_REMOTES.",
	GroupID:           "system",
	PersistentPreRunE: localCommand,
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := Remote{URL: args[1]}
		r.Token, _ = cmd.Flags().GetString("token")
		r.GRPCAddr, _ = cmd.Flags().GetString("grpc")
		r.NATSURL, _ = cmd.Flags().GetString("nats")
		use, _ := cmd.Flags().GetBool("use")

		if err := updateRemotes(func(c *RemotesConfig) error { return c.Add(args[0], r, use) }); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK(fmt.Sprintf("remote %s saved (%s)", ui.Highlight.Sprint(args[0]), r.URL)))
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a named remote",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := updateRemotes(func(c *RemotesConfig) error { return c.Remove(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK("remote "+ui.Highlight.Sprint(args[0])+" removed"))
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := updateRemotes(func(c *RemotesConfig) error { return c.Use(args[0]) }); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.OK("active remote set to "+ui.Highlight.Sprint(args[0])))
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes; the active one is starred",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotes()
		if err != nil {
			return err
		}
		if jsonOutput() {
			for name, r := range cfg.Remotes {
				r.Token = maskToken(r.Token)
				cfg.Remotes[name] = r
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		}
		if len(cfg.Remotes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Hint("no remotes configured, add one with envtree remote add"))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tURL\tGRPC\tNATS\tTOKEN")
		for _, name := range cfg.Names() {
			r := cfg.Remotes[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n", marker, name, r.URL, dash(r.GRPCAddr), dash(r.NATSURL), dash(maskToken(r.Token)))
		}
		return w.Flush()
	},
}

// maskToken keeps the first 8 characters of a token for display.
func maskToken(token string) string {
	if len(token) > 8 {
		return token[:8] + "..."
	}
	return token
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	remoteAddCmd.Flags().String("token", "", "auth token for this remote")
	remoteAddCmd.Flags().String("grpc", "", "gRPC address for this remote")
	remoteAddCmd.Flags().String("nats", "", "NATS URL used by watch")
	remoteAddCmd.Flags().Bool("use", false, "make this the active remote")

	remoteCmd.AddCommand(remoteAddCmd, remoteUseCmd, remoteListCmd, remoteRemoveCmd)
}
