package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/blinkchat/internal/media"
	"github.com/1ureka/blinkchat/internal/transport"
)

// vnetOptions builds two Options sharing one virtual LAN so ICE completes on
// host candidates without touching the real network.
func vnetOptions(t *testing.T) (transport.Options, transport.Options) {
	t.Helper()

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "1.2.3.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)

	a, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.4"}})
	require.NoError(t, err)
	require.NoError(t, wan.AddNet(a))

	b, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.5"}})
	require.NoError(t, err)
	require.NoError(t, wan.AddNet(b))

	require.NoError(t, wan.Start())
	t.Cleanup(func() { _ = wan.Stop() })

	none := []webrtc.ICEServer{}
	return transport.Options{ICEServers: none, Net: a}, transport.Options{ICEServers: none, Net: b}
}

// trickle forwards candidates gathered by from into to, starting only after
// start is closed (both descriptions applied).
func trickle(t *testing.T, from, to *transport.Peer, start <-chan struct{}) {
	t.Helper()
	queue := make(chan webrtc.ICECandidateInit, 32)
	from.OnICECandidate(func(c webrtc.ICECandidateInit) { queue <- c })
	go func() {
		<-start
		for c := range queue {
			if err := to.AddICECandidate(c); err != nil {
				t.Logf("add candidate: %v", err)
			}
		}
	}()
}

func TestPeerRoundTrip(t *testing.T) {
	offerOpts, answerOpts := vnetOptions(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	offerer, err := transport.NewPeer(ctx, offerOpts)
	require.NoError(t, err)
	defer offerer.Close()

	answerer, err := transport.NewPeer(ctx, answerOpts)
	require.NoError(t, err)
	defer answerer.Close()

	local, err := media.Synthetic{}.Acquire(ctx)
	require.NoError(t, err)
	defer local.Stop()
	require.NoError(t, offerer.AddLocalStream(local))

	remote := make(chan *media.RemoteStream, 4)
	answerer.OnRemoteStream(func(s *media.RemoteStream) { remote <- s })

	start := make(chan struct{})
	trickle(t, offerer, answerer, start)
	trickle(t, answerer, offerer, start)

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	assert.Contains(t, offer, "m=audio")
	assert.Contains(t, offer, "m=video", "video is offered receive-only without a camera")

	require.NoError(t, answerer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}))
	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, offerer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}))
	close(start)

	select {
	case <-offerer.Ready():
	case <-ctx.Done():
		t.Fatal("offerer never connected")
	}
	assert.Equal(t, webrtc.PeerConnectionStateConnected, offerer.ConnectionState())

	select {
	case s := <-remote:
		assert.Equal(t, local.ID(), s.ID())
		assert.True(t, s.HasKind(webrtc.RTPCodecTypeAudio))
	case <-ctx.Done():
		t.Fatal("remote audio track never arrived")
	}
}

func TestPeerCloseIdempotent(t *testing.T) {
	opts, _ := vnetOptions(t)

	p, err := transport.NewPeer(context.Background(), opts)
	require.NoError(t, err)

	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
}

func TestPeerCreateAnswerWithoutOffer(t *testing.T) {
	opts, _ := vnetOptions(t)

	p, err := transport.NewPeer(context.Background(), opts)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.CreateAnswer()
	assert.Error(t, err)
}
