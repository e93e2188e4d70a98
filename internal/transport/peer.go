package transport

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	piontransport "github.com/pion/transport/v4"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/blinkchat/internal/util"
)

// DefaultSTUNServers are used when Options.ICEServers is nil.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
}

// Options configures the PeerConnections built by NewPeer.
type Options struct {
	// ICEServers lists STUN/TURN servers. nil means DefaultSTUNServers; a
	// non-nil empty slice gathers host candidates only.
	ICEServers []webrtc.ICEServer

	// ICETransportPolicy restricts candidate types (relay-only for TURN).
	ICETransportPolicy webrtc.ICETransportPolicy

	// LoggerFactory receives pion's internal logs. nil routes them to the
	// shared pterm logger.
	LoggerFactory logging.LoggerFactory

	// Net replaces the host network stack, e.g. with a vnet for tests.
	Net piontransport.Net
}

// newPeerConnection creates a PeerConnection with default codecs and
// interceptors, configured from opts.
func newPeerConnection(opts Options) (*webrtc.PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = opts.LoggerFactory
	if se.LoggerFactory == nil {
		se.LoggerFactory = util.PionLoggerFactory{}
	}
	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)

	iceServers := opts.ICEServers
	if iceServers == nil {
		iceServers = []webrtc.ICEServer{{URLs: DefaultSTUNServers}}
	}

	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: opts.ICETransportPolicy,
	})
}
