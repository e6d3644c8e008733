package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/roomdrop/roomdrop/internal/protocol"
)

// Default configuration values
const (
	DefaultHost      = "localhost"
	DefaultPort      = "3000"
	DefaultServerURL = "http://localhost:3000"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// ServerConfig holds the relay server configuration
type ServerConfig struct {
	Host string
	Port string

	// Env is "development" or "production"; development enables debug logs.
	Env string
}

// ServerOptions carries CLI flag overrides for the server
type ServerOptions struct {
	Host string
	Port string
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Development reports whether the server runs in development mode.
func (c *ServerConfig) Development() bool {
	return c.Env == "development" || c.Env == "dev"
}

// LoadServer reads the server configuration: CLI flag > env > default.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	port := firstNonEmpty(opts.Port, os.Getenv("PORT"), DefaultPort)
	if _, err := net.LookupPort("tcp", port); err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", port, err)
	}

	return &ServerConfig{
		Host: firstNonEmpty(opts.Host, os.Getenv("HOST"), DefaultHost),
		Port: port,
		Env:  firstNonEmpty(os.Getenv("ENV"), "production"),
	}, nil
}

// Config holds the peer (CLI) configuration
type Config struct {
	// ServerURL is the relay's HTTP base URL, e.g. https://drop.example.com
	ServerURL string

	// WebSocketURL is derived from ServerURL
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("ROOMDROP_SERVER"), DefaultServerURL)
	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:    strings.TrimSuffix(serverURL, "/"),
		WebSocketURL: wsURL,
		STUNServer:   firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:   firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:     firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:     firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:   opts.ForceRelay,
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// websocketURL maps http(s)://host/base to ws(s)://host/base/socket.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme %q", serverURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", serverURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + protocol.SocketPath
	return u.String(), nil
}

// GetRoomStatusURL returns the status endpoint for a room ID
func (c *Config) GetRoomStatusURL(roomID string) string {
	return c.ServerURL + protocol.RoomsPath + url.PathEscape(roomID)
}

// GetRoomLink returns the shareable URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("%s/r/%s", c.ServerURL, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
