package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/envtree/internal/client"
	"github.com/alfredjeanlab/envtree/internal/events"
	"github.com/alfredjeanlab/envtree/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <projectId> <configId>",
	Short: "Keep a downloaded secrets file in sync with the server",
	Long: `Download a config and rewrite the local file whenever it, or any config it
inherits from, changes. Uses NATS events when a NATS URL is configured
(--nats, ENVTREE_NATS_URL or the active remote) and polls otherwise.`,
	GroupID: "secrets",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := downloadOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		opts.ProjectID, opts.ConfigID = args[0], args[1]
		interval, _ := cmd.Flags().GetDuration("interval")
		once, _ := cmd.Flags().GetBool("once")
		natsURL, _ := cmd.Flags().GetString("nats")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		w := &fileWatcher{dl: apiClient, opts: opts, out: cmd.OutOrStdout()}
		if err := w.refresh(ctx); err != nil {
			return err
		}
		if once {
			return nil
		}

		if natsURL == "" {
			natsURL = os.Getenv("ENVTREE_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemote().NATSURL
		}
		if natsURL != "" {
			return w.watchNATS(ctx, natsURL)
		}
		return w.watchPoll(ctx, interval)
	},
}

// Events are coalesced for watchDebounce after the latest one, but a
// steady stream never delays a refresh beyond watchMaxWait.
const (
	watchDebounce = 200 * time.Millisecond
	watchMaxWait  = time.Second
)

// fileWatcher rewrites the secrets file when the rendered content changes.
type fileWatcher struct {
	dl   client.Downloader
	opts downloadOptions
	out  io.Writer
	last []byte

	// ready, when set, is closed once the event subscription is active.
	ready chan struct{}
}

// refresh downloads the config and writes it if it differs from the last
// written content.
func (w *fileWatcher) refresh(ctx context.Context) error {
	d, err := w.dl.Download(ctx, w.opts.ProjectID, w.opts.ConfigID, w.opts.Format)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("downloading config: %w", err)
	}
	if w.last != nil && bytes.Equal(d.Content, w.last) {
		return nil
	}
	path := w.opts.Path()
	if err := writeSecretFile(path, d.Content); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	w.last = d.Content
	fmt.Fprintf(w.out, "%s %s\n", ui.Muted.Sprint(time.Now().Format("15:04:05")), ui.OK("wrote "+ui.Highlight.Sprint(path)))
	return nil
}

// watchNATS re-downloads after config events in the watched project, with
// a short debounce so bursts of writes cause a single refresh.
func (w *fileWatcher) watchNATS(ctx context.Context, natsURL string) error {
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("envtree.config.>")
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()
	if w.ready != nil {
		close(w.ready)
	}

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	var pending time.Time // arrival of the oldest event not yet refreshed

	schedule := func(delay time.Duration) {
		now := time.Now()
		if pending.IsZero() {
			pending = now
		}
		debounce.Reset(max(0, min(delay, pending.Add(watchMaxWait).Sub(now))))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if affects(msg, w.opts.ProjectID) {
				schedule(watchDebounce)
			}
		case <-reconnectCh:
			// Events may have been missed while disconnected.
			schedule(0)
		case <-debounce.C:
			pending = time.Time{}
			if err := w.refresh(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *fileWatcher) watchPoll(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := w.refresh(ctx); err != nil {
			return err
		}
	}
}

// affects reports whether msg may change a config in projectID. The
// project header is preferred; publishers that omit it fall back to the
// payload, and events with no project at all are treated as relevant.
func affects(msg events.Message, projectID string) bool {
	p := msg.ProjectID
	if p == "" {
		p = eventProject(msg.Data)
	}
	return p == "" || p == projectID
}

// eventProject extracts project_id from an event payload, or "" when the
// payload has none.
func eventProject(data []byte) string {
	var p struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return ""
	}
	return p.ProjectID
}

func init() {
	addFileFlags(watchCmd)
	watchCmd.Flags().Duration("interval", 10*time.Second, "polling interval without NATS")
	watchCmd.Flags().Bool("once", false, "exit after the first download")
	watchCmd.Flags().String("nats", "", "NATS URL for change events")
}
