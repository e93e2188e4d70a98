// Package app runs an interactive chat session in the terminal: typed lines
// go to the partner, slash commands drive the session, and coordinator
// updates are printed as they happen.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/blinkchat/internal/api"
	"github.com/1ureka/blinkchat/internal/chat"
	"github.com/1ureka/blinkchat/internal/config"
	"github.com/1ureka/blinkchat/internal/media"
	"github.com/1ureka/blinkchat/internal/negotiation"
	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/session"
	"github.com/1ureka/blinkchat/internal/signaling"
	"github.com/1ureka/blinkchat/internal/transport"
	"github.com/1ureka/blinkchat/internal/util"
)

// Session is the part of *session.Coordinator the terminal drives.
type Session interface {
	Run(ctx context.Context)
	Connect()
	SendChat(ctx context.Context, text string) error
	RequestNext(ctx context.Context) error
	View() session.View
	Changes() <-chan struct{}
	ReportTarget() (partnerID, sessionID string, ok bool)
}

// Reporter files moderation reports. *api.Client implements it.
type Reporter interface {
	CreateReport(ctx context.Context, token string, r api.Report) (int64, error)
}

var (
	_ Session  = (*session.Coordinator)(nil)
	_ Reporter = (*api.Client)(nil)
)

// Options wires Run to its collaborators.
type Options struct {
	Session  Session
	Reporter Reporter
	Token    string

	In  io.Reader
	Out io.Writer
}

// NewSession builds a coordinator that talks to the configured backend and
// publishes a synthetic stream, since a terminal has no camera.
func NewSession(cfg *config.Config) *session.Coordinator {
	opts := transport.Options{
		ICEServers:         cfg.ICEServers(),
		ICETransportPolicy: cfg.ICETransportPolicy(),
	}
	return session.New(session.Config{
		NewChannel: func() session.Channel { return signaling.New(cfg.WSURL, cfg.Token) },
		NewPeer: func(ctx context.Context) (negotiation.PeerChannel, error) {
			return transport.NewPeer(ctx, opts)
		},
		Media:     media.Synthetic{},
		ChatLimit: cfg.ChatLimit,
	})
}

// Run joins the queue and serves the terminal until /quit, end of input or
// ctx cancellation. The session is stopped before Run returns.
func Run(ctx context.Context, opts Options) error {
	if opts.Session == nil {
		return errors.New("app: no session")
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		opts.Session.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	t := &terminal{opts: opts, out: out, status: signaling.StatusClosed}
	lines := make(chan string)
	go readLines(ctx, in, lines)

	t.printHelp()
	opts.Session.Connect()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-opts.Session.Changes():
			t.render(opts.Session.View())

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if t.handleLine(ctx, line) {
				return nil
			}
		}
	}
}

// readLines forwards input lines until EOF, then closes out.
func readLines(ctx context.Context, in io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		util.LogDebug("stdin closed: %v", err)
	}
}

// terminal holds what was last printed so render only shows changes.
type terminal struct {
	opts Options
	out  io.Writer

	phase     session.Phase
	status    signaling.Status
	sessionID string
	lastEntry uint64
	connected bool
	lastErr   error
}

// handleLine runs a command or sends chat. It returns true on /quit.
func (t *terminal) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := t.opts.Session.SendChat(ctx, line); err != nil {
			t.warn("Not sent: %v", err)
		}
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true

	case "/next":
		if err := t.opts.Session.RequestNext(ctx); err != nil {
			t.warn("%v", err)
		}

	case "/connect":
		t.opts.Session.Connect()

	case "/report":
		t.report(ctx, strings.TrimSpace(rest))

	case "/help":
		t.printHelp()

	default:
		t.warn("Unknown command %s (try /help)", cmd)
	}
	return false
}

// report files "/report <reason> [details]" against the current partner.
func (t *terminal) report(ctx context.Context, args string) {
	reason, details, _ := strings.Cut(args, " ")
	if reason == "" {
		t.warn("Usage: /report <reason> [details]")
		return
	}
	if t.opts.Reporter == nil || t.opts.Token == "" {
		t.warn("Reporting needs a login token")
		return
	}

	partnerID, sessionID, ok := t.opts.Session.ReportTarget()
	if !ok {
		t.warn("%v", session.ErrNotMatched)
		return
	}
	userID, ok := protocol.LooseString(partnerID).Int()
	if !ok {
		t.warn("Partner id %q cannot be reported", partnerID)
		return
	}

	id, err := t.opts.Reporter.CreateReport(ctx, t.opts.Token, api.Report{
		ReportedUser: userID,
		Reason:       reason,
		Description:  strings.TrimSpace(details),
		SessionID:    sessionID,
	})
	if err != nil {
		t.warn("Report failed: %v", err)
		return
	}
	t.note(pterm.FgGreen.Sprintf("Report #%d filed", id))
}

// render prints what changed since the previous view.
func (t *terminal) render(v session.View) {
	if v.Status != t.status {
		switch v.Status {
		case signaling.StatusError:
			t.warn("Connection to the server lost (/connect to retry)")
		case signaling.StatusClosed:
			if t.status == signaling.StatusOpen && v.Phase == session.PhaseIdle {
				t.note(pterm.FgGray.Sprint("Disconnected (/connect to retry)"))
			}
		}
		t.status = v.Status
	}

	sessionID := ""
	if v.Session != nil {
		sessionID = v.Session.ID
	}
	if v.Phase != t.phase || sessionID != t.sessionID {
		switch {
		case v.Phase == session.PhaseWaiting:
			t.note(pterm.FgGray.Sprint("Looking for someone to talk to..."))
		case v.Phase == session.PhaseMatched:
			t.note(pterm.FgGreen.Sprintf("You are now chatting with %s", v.Session.Partner.Name()))
		case t.phase == session.PhaseMatched:
			t.note(pterm.FgGray.Sprint("Chat ended"))
		}
		t.phase = v.Phase
		t.sessionID = sessionID
		t.connected = false
		t.lastErr = nil
	}

	for _, e := range v.Messages {
		if e.ID <= t.lastEntry {
			continue
		}
		t.lastEntry = e.ID
		if e.Origin == chat.Remote {
			name := "Stranger"
			if v.Session != nil {
				name = v.Session.Partner.Name()
			}
			t.note(fmt.Sprintf("%s %s", pterm.FgCyan.Sprint(name+":"), e.Text))
		}
	}

	if v.Connected && !t.connected {
		t.note(pterm.FgGreen.Sprint("Media connected"))
	}
	t.connected = v.Connected

	if v.Error != nil && v.Error != t.lastErr {
		var mediaErr *negotiation.MediaAccessError
		if errors.As(v.Error, &mediaErr) {
			t.warn("No local media, receiving only: %v", mediaErr.Err)
		} else {
			t.warn("%v", v.Error)
		}
	}
	t.lastErr = v.Error
}

func (t *terminal) printHelp() {
	t.note(pterm.FgGray.Sprint("Type to chat. Commands: /next, /report <reason> [details], /connect, /quit"))
}

func (t *terminal) note(s string) {
	pterm.Fprintln(t.out, s)
}

func (t *terminal) warn(format string, args ...any) {
	pterm.Fprintln(t.out, pterm.FgYellow.Sprintf(format, args...))
}
