package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/client"
	"github.com/alfredjeanlab/envtree/internal/ui"
)

var (
	serverURL  string
	grpcAddr   string
	authToken  string
	transport  string
	outputMode string
	noColor    bool

	apiClient *client.HTTPClient
)

// errReported marks an error whose message was already shown to the user.
var errReported = errors.New("reported")

func defaultURL() string {
	if s := os.Getenv("ENVTREE_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultGRPCAddr() string {
	if s := os.Getenv("ENVTREE_SERVER"); s != "" {
		return s
	}
	if a := activeRemote().GRPCAddr; a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("ENVTREE_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

var rootCmd = &cobra.Command{
	Use:           "envtree <command>",
	Short:         "Manage and download inherited config secrets",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := configureOutput(); err != nil {
			return err
		}
		apiClient = client.NewHTTPClient(serverURL, authToken)
		return nil
	},
}

// localCommand skips client setup for commands that never talk to a server.
func localCommand(cmd *cobra.Command, args []string) error {
	return configureOutput()
}

func configureOutput() error {
	if noColor {
		ui.ForceNoColor()
	} else {
		ui.ConfigureColor()
	}
	switch outputMode {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unknown output %q (must be text or json)", outputMode)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "url", "u", defaultURL(), "envtree server URL")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "server", defaultGRPCAddr(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "auth token")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol for downloads (http or grpc)")
	rootCmd.PersistentFlags().StringVarP(&outputMode, "output", "o", "text", "output format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "secrets", Title: "Secrets:"},
		&cobra.Group{ID: "manage", Title: "Management:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(userCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, ui.Fail(err.Error()))
		}
		os.Exit(1)
	}
}
