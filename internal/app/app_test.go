package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/blinkchat/internal/api"
	"github.com/1ureka/blinkchat/internal/chat"
	"github.com/1ureka/blinkchat/internal/negotiation"
	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/session"
	"github.com/1ureka/blinkchat/internal/signaling"
)

func init() {
	pterm.DisableColor()
}

type fakeSession struct {
	mu       sync.Mutex
	connects int
	sent     []string
	nextErr  error
	target   [2]string
	hasPeer  bool
	view     session.View
	changes  chan struct{}
	stopped  bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{changes: make(chan struct{}, 1)}
}

func (f *fakeSession) Run(ctx context.Context) {
	<-ctx.Done()
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeSession) Connect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeSession) SendChat(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSession) RequestNext(context.Context) error { return f.nextErr }

func (f *fakeSession) View() session.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeSession) Changes() <-chan struct{} { return f.changes }

func (f *fakeSession) ReportTarget() (string, string, bool) {
	return f.target[0], f.target[1], f.hasPeer
}

type fakeReporter struct {
	got   []api.Report
	token string
	err   error
}

func (r *fakeReporter) CreateReport(_ context.Context, token string, rep api.Report) (int64, error) {
	r.token = token
	r.got = append(r.got, rep)
	return 42, r.err
}

func run(t *testing.T, opts Options, input string) string {
	t.Helper()
	var out bytes.Buffer
	opts.In = strings.NewReader(input)
	opts.Out = &out

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Run(ctx, opts))
	return out.String()
}

func TestRunChatAndQuit(t *testing.T) {
	s := newFakeSession()
	run(t, Options{Session: s}, "hello\n\n  \n/quit\nnot sent\n")

	assert.Equal(t, 1, s.connects)
	assert.Equal(t, []string{"hello"}, s.sent)
	assert.True(t, s.stopped, "session stopped before Run returns")
}

func TestRunEndOfInput(t *testing.T) {
	s := newFakeSession()
	run(t, Options{Session: s}, "")
	assert.True(t, s.stopped)
}

func TestRunRequiresSession(t *testing.T) {
	assert.Error(t, Run(context.Background(), Options{}))
}

func TestCommands(t *testing.T) {
	s := newFakeSession()
	s.nextErr = session.ErrNotMatched
	out := run(t, Options{Session: s}, "/next\n/connect\n/bogus\n/help\n")

	assert.Contains(t, out, "no active session")
	assert.Contains(t, out, "Unknown command /bogus")
	assert.Equal(t, 2, s.connects)
}

func TestReport(t *testing.T) {
	s := newFakeSession()
	s.target = [2]string{"7", "s1"}
	s.hasPeer = true
	r := &fakeReporter{}

	out := run(t, Options{Session: s, Reporter: r, Token: "tok"}, "/report spam  kept sending links\n")

	require.Len(t, r.got, 1)
	assert.Equal(t, "tok", r.token)
	assert.Equal(t, api.Report{
		ReportedUser: 7,
		Reason:       "spam",
		Description:  "kept sending links",
		SessionID:    "s1",
	}, r.got[0])
	assert.Contains(t, out, "Report #42 filed")
}

func TestReportRejected(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		target  [2]string
		hasPeer bool
		input   string
		want    string
	}{
		{"no reason", "tok", [2]string{"7", "s1"}, true, "/report\n", "Usage"},
		{"no token", "", [2]string{"7", "s1"}, true, "/report spam\n", "login"},
		{"no partner", "tok", [2]string{}, false, "/report spam\n", "no active session"},
		{"non-numeric partner", "tok", [2]string{"anon", "s1"}, true, "/report spam\n", "cannot be reported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSession()
			s.target = tt.target
			s.hasPeer = tt.hasPeer
			r := &fakeReporter{}

			out := run(t, Options{Session: s, Reporter: r, Token: tt.token}, tt.input)
			assert.Empty(t, r.got)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestReportFailure(t *testing.T) {
	s := newFakeSession()
	s.target = [2]string{"7", "s1"}
	s.hasPeer = true
	r := &fakeReporter{err: errors.New("boom")}

	out := run(t, Options{Session: s, Reporter: r, Token: "tok"}, "/report spam\n")
	assert.Contains(t, out, "Report failed: boom")
}

func TestRender(t *testing.T) {
	var out bytes.Buffer
	term := &terminal{out: &out, status: signaling.StatusClosed}
	bob := &session.Session{ID: "s1", Partner: protocol.Partner{ID: "7", Username: "bob"}}

	step := func(v session.View) string {
		out.Reset()
		term.render(v)
		return out.String()
	}

	assert.Empty(t, step(session.View{Phase: session.PhaseIdle, Status: signaling.StatusConnecting}))
	assert.Contains(t, step(session.View{Phase: session.PhaseWaiting, Status: signaling.StatusOpen}), "Looking for someone")

	matched := session.View{Phase: session.PhaseMatched, Status: signaling.StatusOpen, Session: bob}
	assert.Contains(t, step(matched), "chatting with bob")
	assert.Empty(t, step(matched), "unchanged view prints nothing")

	matched.Messages = []chat.Entry{
		{ID: 1, Text: "mine", Origin: chat.Local},
		{ID: 2, Text: "hi there", Origin: chat.Remote, SenderID: "7"},
	}
	got := step(matched)
	assert.Contains(t, got, "bob: hi there")
	assert.NotContains(t, got, "mine")
	assert.Empty(t, step(matched), "entries are printed once")

	matched.Connected = true
	assert.Contains(t, step(matched), "Media connected")

	matched.Error = &negotiation.MediaAccessError{Err: errors.New("no camera")}
	assert.Contains(t, step(matched), "receiving only: no camera")
	assert.Empty(t, step(matched))

	assert.Contains(t, step(session.View{Phase: session.PhaseIdle, Status: signaling.StatusOpen}), "Chat ended")
	assert.Contains(t, step(session.View{Phase: session.PhaseIdle, Status: signaling.StatusClosed}), "Disconnected")
	assert.Contains(t, step(session.View{Phase: session.PhaseIdle, Status: signaling.StatusError}), "Connection to the server lost")
}
