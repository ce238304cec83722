package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"gameflow/internal/editor"
	"gameflow/internal/livesync"
	"gameflow/internal/persistence"

	"github.com/spf13/cobra"
)

// NewSessionCommand creates the session command.
func NewSessionCommand(opts *RootOptions) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Join the flow live and report status changes",
		Long: `Join the flow as a live editor: load it, keep it in sync with other
editors and print save, load and connection status as it changes.
Runs until interrupted or until --duration elapses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return runSession(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "leave after this long (default until interrupted)")
	return cmd
}

func runSession(ctx context.Context, opts *RootOptions, out io.Writer) error {
	cfg := opts.config
	syncURL, err := persistence.SyncURL(cfg.ServerURL, opts.ClientID)
	if err != nil {
		return err
	}

	deps := editor.Deps{
		API:     opts.api(),
		SyncURL: syncURL,
		Logger:  opts.logger,
	}
	if !cfg.DisableSync {
		deps.Dialer = livesync.NewWebsocketDialer()
	}
	session := editor.NewSession(editor.Config{
		HistorySize:        cfg.HistorySize,
		SaveDelay:          cfg.SaveDelay,
		ReconnectDelay:     cfg.ReconnectDelay,
		RemoteHintDuration: cfg.RemoteHintDuration,
	}, deps)

	p := &statePrinter{out: out, session: session}
	unsubscribe := session.Subscribe(p.print)

	startErr := session.Start(ctx)
	if startErr == nil {
		<-ctx.Done()
	}

	unsubscribe()
	session.Close()
	return startErr
}

// statePrinter writes one line per status change, plus the graph size
// whenever a remote update lands.
type statePrinter struct {
	mu      sync.Mutex
	out     io.Writer
	session *editor.Session
	last    *editor.State
}

func (p *statePrinter) print(st editor.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last != nil && statusEqual(*p.last, st) {
		return
	}
	line := fmt.Sprintf("load=%s save=%s connected=%t", st.Load, st.Save, st.Connected)
	if st.RemoteUpdate && (p.last == nil || !p.last.RemoteUpdate) {
		g := p.session.Graph()
		line += fmt.Sprintf(" remote-update nodes=%d edges=%d", len(g.Nodes), len(g.Edges))
	}
	fmt.Fprintln(p.out, line)
	p.last = &st
}

func statusEqual(a, b editor.State) bool {
	return a.Load == b.Load && a.Save == b.Save && a.Connected == b.Connected && a.RemoteUpdate == b.RemoteUpdate
}
