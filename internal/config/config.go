// Package config resolves the client settings from CLI flags, the
// environment and a local .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/blinkchat/internal/util"
)

// Defaults used when neither a flag nor the environment sets a value.
const (
	DefaultAPIURL = "http://localhost:8000/api"
	DefaultSTUN   = "stun:stun.l.google.com:19302"

	// wsPath is where the backend mounts the matchmaking socket.
	wsPath = "/ws/chat/"
)

// Environment keys.
const (
	EnvAPIURL     = "BLINKCHAT_API_URL"
	EnvWSURL      = "BLINKCHAT_WS_URL"
	EnvToken      = "BLINKCHAT_TOKEN"
	EnvChatLimit  = "BLINKCHAT_CHAT_LIMIT"
	EnvForceRelay = "BLINKCHAT_FORCE_RELAY"
	EnvSTUN       = "STUN_SERVER"
	EnvTURN       = "TURN_SERVER"
	EnvTURNUser   = "TURN_USERNAME"
	EnvTURNPass   = "TURN_PASSWORD"
)

// ErrInvalidURL is returned for URLs without a host.
var ErrInvalidURL = errors.New("invalid URL")

// Config is the resolved client configuration.
type Config struct {
	APIURL string
	WSURL  string
	Token  string

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// ChatLimit caps the chat log; 0 keeps every message.
	ChatLimit int
}

// Options carries CLI flag values. Zero values fall through to the
// environment.
type Options struct {
	APIURL     string
	WSURL      string
	Token      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	ChatLimit  int

	// EnvFile is loaded before reading the environment. Empty means ".env";
	// a missing file is not an error.
	EnvFile string
}

// Load resolves the configuration. Priority is CLI flag, then environment
// (including the .env file, which never overrides variables already set),
// then the built-in defaults.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		APIURL:     pick(opts.APIURL, EnvAPIURL, DefaultAPIURL),
		Token:      pick(opts.Token, EnvToken, ""),
		STUNServer: pick(opts.STUNServer, EnvSTUN, DefaultSTUN),
		TURNServer: pick(opts.TURNServer, EnvTURN, ""),
		TURNUser:   pick(opts.TURNUser, EnvTURNUser, ""),
		TURNPass:   pick(opts.TURNPass, EnvTURNPass, ""),
		ForceRelay: opts.ForceRelay,
		ChatLimit:  opts.ChatLimit,
	}

	if _, err := origin(cfg.APIURL); err != nil {
		return nil, err
	}

	wsURL := pick(opts.WSURL, EnvWSURL, "")
	if wsURL == "" {
		derived, err := WebSocketURL(cfg.APIURL)
		if err != nil {
			return nil, err
		}
		cfg.WSURL = derived
	} else {
		normalized, err := normalizeWSURL(wsURL)
		if err != nil {
			return nil, err
		}
		cfg.WSURL = normalized
	}

	if !cfg.ForceRelay {
		if raw := os.Getenv(EnvForceRelay); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", EnvForceRelay, err)
			}
			cfg.ForceRelay = v
		}
	}

	if cfg.ChatLimit == 0 {
		if raw := os.Getenv(EnvChatLimit); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%s: must be a non-negative integer, got %q", EnvChatLimit, raw)
			}
			cfg.ChatLimit = n
		}
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, errors.New("relay-only mode needs a TURN server")
	}

	util.LogDebug("config: api=%s ws=%s stun=%s turn=%q relay=%v", cfg.APIURL, cfg.WSURL, cfg.STUNServer, cfg.TURNServer, cfg.ForceRelay)
	return cfg, nil
}

// pick returns flag, else the environment value of key, else def.
func pick(flag, key, def string) string {
	if v := strings.TrimSpace(flag); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// ICEServers builds the PeerConnection server list.
func (c *Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if c.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{c.STUNServer}})
	}
	if c.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:           []string{c.TURNServer},
			Username:       c.TURNUser,
			Credential:     c.TURNPass,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers
}

// ICETransportPolicy is relay-only when ForceRelay is set.
func (c *Config) ICETransportPolicy() webrtc.ICETransportPolicy {
	if c.ForceRelay {
		return webrtc.ICETransportPolicyRelay
	}
	return webrtc.ICETransportPolicyAll
}

// WebSocketURL derives the matchmaking socket URL from the API URL: same
// host, ws for http and wss for https, fixed path.
func WebSocketURL(apiURL string) (string, error) {
	u, err := origin(apiURL)
	if err != nil {
		return "", err
	}
	scheme := "wss"
	if u.Scheme == "http" {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s%s", scheme, u.Host, wsPath), nil
}

// normalizeWSURL accepts a bare host or any ws/wss/http/https URL and
// returns the socket URL on that host.
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	scheme := "wss"
	switch u.Scheme {
	case "ws", "http":
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s%s", scheme, u.Host, wsPath), nil
}

func origin(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return u, nil
}
