package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/client"
	"github.com/alfredjeanlab/envtree/internal/export"
	"github.com/alfredjeanlab/envtree/internal/ui"
)

var downloadCmd = &cobra.Command{
	Use:   "download <projectId> <configId> [userEmail userToken]",
	Short: "Download a flattened config as a secrets file",
	Long: `Download the resolved values of a config, including everything it
inherits through links, and write them to a local file.

With userEmail and userToken the legacy credential endpoint is used instead
of bearer auth.`,
	GroupID: "secrets",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 && len(args) != 4 {
			return fmt.Errorf("accepts 2 or 4 args, received %d", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := downloadOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		opts.ProjectID, opts.ConfigID = args[0], args[1]
		if len(args) == 4 {
			opts.Email, opts.Token = args[2], args[3]
		}

		dl, err := newDownloader(opts)
		if err != nil {
			return err
		}
		defer dl.Close()

		stderr := cmd.ErrOrStderr()
		return runDownload(cmd.Context(), dl, opts, stderr, ui.IsTerminal(stderr))
	},
}

// downloadOptions describes a single download invocation.
type downloadOptions struct {
	ProjectID string
	ConfigID  string
	Email     string
	Token     string
	Format    export.Format
	Directory string
	Filename  string
}

// Legacy reports whether email/token credentials were given as arguments.
func (o downloadOptions) Legacy() bool {
	return o.Email != "" || o.Token != ""
}

// Path is the destination file. A blank filename selects the format default.
func (o downloadOptions) Path() string {
	name := strings.TrimSpace(o.Filename)
	if name == "" {
		name = o.Format.DefaultFilename()
	}
	return filepath.Join(o.Directory, name)
}

func downloadOptionsFromFlags(cmd *cobra.Command) (downloadOptions, error) {
	asJSON, _ := cmd.Flags().GetBool("json")
	asGrouped, _ := cmd.Flags().GetBool("json-grouped")
	asEnv, _ := cmd.Flags().GetBool("env")
	dir, _ := cmd.Flags().GetString("download-directory")
	filename, _ := cmd.Flags().GetString("filename")

	selected := 0
	for _, b := range []bool{asJSON, asGrouped, asEnv} {
		if b {
			selected++
		}
	}
	if selected > 1 {
		return downloadOptions{}, fmt.Errorf("--env, --json and --json-grouped are mutually exclusive")
	}

	format := export.FormatEnv
	switch {
	case asJSON:
		format = export.FormatJSON
	case asGrouped:
		format = export.FormatJSONGrouped
	}
	return downloadOptions{Format: format, Directory: dir, Filename: filename}, nil
}

// legacyDownloader adapts the email/token endpoint to client.Downloader.
type legacyDownloader struct {
	c            *client.HTTPClient
	email, token string
}

func (l *legacyDownloader) Download(ctx context.Context, projectID, configID string, format export.Format) (*client.Download, error) {
	return l.c.LegacyDownload(ctx, projectID, configID, l.email, l.token, format)
}

func (l *legacyDownloader) Close() error { return l.c.Close() }

func newDownloader(opts downloadOptions) (client.Downloader, error) {
	switch transport {
	case "http":
		if opts.Legacy() {
			return &legacyDownloader{c: client.NewHTTPClient(serverURL, ""), email: opts.Email, token: opts.Token}, nil
		}
		return client.NewHTTPClient(serverURL, authToken), nil
	case "grpc":
		if opts.Legacy() {
			return nil, fmt.Errorf("email and token arguments require the http transport")
		}
		c, err := client.NewGRPCClient(grpcAddr, authToken)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
}

// runDownload fetches the config and writes it to opts.Path() with 0600
// permissions. Progress and failures are reported on w; a returned error
// has already been shown.
func runDownload(ctx context.Context, dl client.Downloader, opts downloadOptions, w io.Writer, spin bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sp := ui.StartSpinner(w, fmt.Sprintf("Getting configuration %s for project %s",
		ui.Success.Sprint(opts.ConfigID), ui.Success.Sprint(opts.ProjectID)), spin)

	d, err := dl.Download(ctx, opts.ProjectID, opts.ConfigID, opts.Format)
	if err != nil {
		msg := ui.Fail(fmt.Sprintf("Failed to fetch config %s for project %s",
			ui.Error.Sprint(opts.ConfigID), ui.Error.Sprint(opts.ProjectID)))
		if !client.IsNotFound(err) {
			msg += ": " + err.Error()
		}
		sp.Stop(msg)
		return fmt.Errorf("download: %w", errReported)
	}
	sp.Stop(ui.OK("Got configuration"))

	path := opts.Path()
	sp = ui.StartSpinner(w, "Writing secret file to "+path, spin)
	if err := writeSecretFile(path, d.Content); err != nil {
		sp.Stop(ui.Fail("Failed to write file: " + ui.Error.Sprint(err.Error())))
		return fmt.Errorf("write: %w", errReported)
	}
	sp.Stop(ui.OK("Wrote " + ui.Highlight.Sprint(path)))
	return nil
}

func writeSecretFile(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0o600)
}

// addFileFlags registers the format and destination flags shared by
// download and watch.
func addFileFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("env", false, ".env file format (default)")
	cmd.Flags().Bool("json", false, "JSON file format")
	cmd.Flags().Bool("json-grouped", false, "JSON file format preserving property groups")
	cmd.Flags().StringP("download-directory", "d", ".", "directory to write the file to")
	cmd.Flags().StringP("filename", "f", "", "filename for the secrets file (default .env or secrets.json)")
}

func init() {
	addFileFlags(downloadCmd)
}
