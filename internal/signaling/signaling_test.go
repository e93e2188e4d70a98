package signaling_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/blinkchat/internal/protocol"
	"github.com/1ureka/blinkchat/internal/signaling"
	"github.com/1ureka/blinkchat/internal/signaling/signalingtest"
)

const waitTimeout = 3 * time.Second

func nextEvent(t *testing.T, ch *signaling.Channel) signaling.Event {
	t.Helper()
	select {
	case ev := <-ch.Events():
		assert.Equal(t, ch.ID(), ev.ChannelID)
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for channel event")
		return signaling.Event{}
	}
}

// nextMessage skips status events until an inbound message arrives.
func nextMessage(t *testing.T, ch *signaling.Channel) protocol.Inbound {
	t.Helper()
	for {
		if ev := nextEvent(t, ch); ev.Message != nil {
			return ev.Message
		}
	}
}

func connect(t *testing.T, srv *signalingtest.Server, token string) (*signaling.Channel, *signalingtest.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	ch := signaling.New(srv.URL(), token)
	require.NoError(t, ch.Connect(ctx))
	t.Cleanup(ch.Close)

	assert.Equal(t, signaling.StatusConnecting, nextEvent(t, ch).Status)
	assert.Equal(t, signaling.StatusOpen, nextEvent(t, ch).Status)

	conn, err := srv.Accept(ctx)
	require.NoError(t, err)
	return ch, conn
}

func TestConnectAttachesToken(t *testing.T) {
	srv := signalingtest.NewServer("secret")
	defer srv.Close()

	ch, conn := connect(t, srv, "secret")
	assert.Equal(t, "secret", conn.Token)
	assert.Equal(t, signaling.StatusOpen, ch.Status())
}

func TestConnectRejected(t *testing.T) {
	srv := signalingtest.NewServer("secret")
	defer srv.Close()

	ch := signaling.New(srv.URL(), "wrong")
	defer ch.Close()

	err := ch.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, signaling.StatusError, ch.Status())
	assert.Equal(t, signaling.StatusConnecting, nextEvent(t, ch).Status)
	assert.Equal(t, signaling.StatusError, nextEvent(t, ch).Status)
}

func TestInboundDispatch(t *testing.T) {
	srv := signalingtest.NewServer("")
	defer srv.Close()
	ch, conn := connect(t, srv, "")

	require.NoError(t, conn.SendFrame(signalingtest.Waiting()))
	require.NoError(t, conn.SendRaw([]byte(`{not json`)))
	require.NoError(t, conn.SendRaw([]byte(`{"type":"mystery"}`)))
	require.NoError(t, conn.SendRaw([]byte(`{"type":"matched"}`)))
	require.NoError(t, conn.SendFrame(signalingtest.Chat("hello", "7")))

	_, ok := nextMessage(t, ch).(protocol.Waiting)
	assert.True(t, ok)

	chat, ok := nextMessage(t, ch).(protocol.Chat)
	require.True(t, ok, "malformed and unknown frames are skipped")
	assert.Equal(t, "hello", chat.Text)
	assert.Equal(t, "7", chat.SenderID)

	assert.Equal(t, signaling.StatusOpen, ch.Status())
}

func TestSendDeliversWhenOpen(t *testing.T) {
	srv := signalingtest.NewServer("")
	defer srv.Close()
	ch, conn := connect(t, srv, "")

	assert.True(t, ch.Send(protocol.ChatMessage("hi")))
	assert.True(t, ch.Send(protocol.SignalMessage(protocol.Offer("v=0"))))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	msg, err := conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeChat, msg.Type)
	assert.Equal(t, "hi", msg.Message)

	msg, err = conn.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg.Payload)
	assert.Equal(t, protocol.SignalOffer, msg.Payload.Type)
}

func TestSendDroppedWhenNotOpen(t *testing.T) {
	ch := signaling.New("ws://127.0.0.1:1/ws/chat/", "")
	assert.False(t, ch.Send(protocol.NextMessage()))

	ch.Close()
	assert.False(t, ch.Send(protocol.NextMessage()))
	assert.ErrorIs(t, ch.Connect(context.Background()), signaling.ErrAlreadyConnected)
}

func TestRemoteCloseReportsClosed(t *testing.T) {
	srv := signalingtest.NewServer("")
	defer srv.Close()
	ch, conn := connect(t, srv, "")

	require.NoError(t, conn.Close())

	assert.Equal(t, signaling.StatusClosed, nextEvent(t, ch).Status)
	select {
	case <-ch.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Done not closed after remote close")
	}
	assert.False(t, ch.Send(protocol.NextMessage()))
}

func TestDroppedConnectionReportsError(t *testing.T) {
	srv := signalingtest.NewServer("")
	defer srv.Close()
	ch, conn := connect(t, srv, "")

	require.NoError(t, conn.Drop())
	assert.Equal(t, signaling.StatusError, nextEvent(t, ch).Status)
}

func TestCloseIdempotent(t *testing.T) {
	srv := signalingtest.NewServer("")
	defer srv.Close()
	ch, conn := connect(t, srv, "")

	ch.Close()
	ch.Close()
	assert.Equal(t, signaling.StatusClosed, ch.Status())

	select {
	case <-conn.Closed():
	case <-time.After(waitTimeout):
		t.Fatal("server never saw the close")
	}
}

func TestCloseFlushesAcceptedMessages(t *testing.T) {
	srv := signalingtest.NewServer("")
	defer srv.Close()
	ch, conn := connect(t, srv, "")

	require.True(t, ch.Send(protocol.ChatMessage("bye")))
	require.True(t, ch.Send(protocol.NextMessage()))
	ch.Close()

	_, ok := conn.Expect(protocol.TypeChat, "", waitTimeout)
	assert.True(t, ok, "queued chat written before the close frame")
	_, ok = conn.Expect(protocol.TypeNext, "", waitTimeout)
	assert.True(t, ok, "queued next written before the close frame")

	select {
	case <-conn.Closed():
	case <-time.After(waitTimeout):
		t.Fatal("server never saw the close")
	}
	assert.False(t, ch.Send(protocol.NextMessage()))
}

func TestChannelIDsUnique(t *testing.T) {
	a := signaling.New("ws://example/ws/chat/", "")
	b := signaling.New("ws://example/ws/chat/", "")
	assert.NotEqual(t, a.ID(), b.ID())
}
