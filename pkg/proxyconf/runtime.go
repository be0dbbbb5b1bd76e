package proxyconf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"wayfarer-hq/keeper/pkg/identity"
)

// DefaultLogLevel is the proxy's own log verbosity.
const DefaultLogLevel = "warning"

// RuntimeConfig is the configuration file handed to the supervised binary.
type RuntimeConfig struct {
	Log       LogConfig  `json:"log"`
	Inbounds  []Inbound  `json:"inbounds"`
	Outbounds []Outbound `json:"outbounds"`
}

// LogConfig controls the proxy's log output.
type LogConfig struct {
	LogLevel string `json:"loglevel"`
}

// Inbound is a listener description.
type Inbound struct {
	Port           int             `json:"port"`
	Listen         string          `json:"listen,omitempty"`
	Protocol       string          `json:"protocol"`
	Settings       InboundSettings `json:"settings"`
	StreamSettings StreamSettings  `json:"streamSettings"`
}

// InboundSettings lists the accepted clients.
type InboundSettings struct {
	Clients []Client `json:"clients"`
}

// Client is one accepted client identity.
type Client struct {
	ID      string `json:"id"`
	AlterID int    `json:"alterId"`
}

// StreamSettings selects the transport.
type StreamSettings struct {
	Network    string     `json:"network"`
	WSSettings WSSettings `json:"wsSettings"`
}

// WSSettings configures the WebSocket transport.
type WSSettings struct {
	Path string `json:"path"`
}

// Outbound is an egress description.
type Outbound struct {
	Protocol string `json:"protocol"`
}

// RuntimeOption adjusts optional runtime config fields.
type RuntimeOption func(*RuntimeConfig)

// WithLogLevel sets the proxy log level.
func WithLogLevel(level string) RuntimeOption {
	return func(rc *RuntimeConfig) {
		if level != "" {
			rc.Log.LogLevel = level
		}
	}
}

// WithListen binds the inbound to a specific address, e.g. 127.0.0.1 when
// the HTTP facade forwards WebSocket traffic to it.
func WithListen(addr string) RuntimeOption {
	return func(rc *RuntimeConfig) {
		rc.Inbounds[0].Listen = addr
	}
}

// BuildRuntimeConfig derives the proxy configuration from p. The inbound
// listens on listenPort, which the caller resolves at startup; p.Port() is
// deliberately not consulted.
func BuildRuntimeConfig(p identity.Parameters, listenPort int, opts ...RuntimeOption) RuntimeConfig {
	rc := RuntimeConfig{
		Log: LogConfig{LogLevel: DefaultLogLevel},
		Inbounds: []Inbound{{
			Port:     listenPort,
			Protocol: "vmess",
			Settings: InboundSettings{
				Clients: []Client{{ID: p.ID(), AlterID: 0}},
			},
			StreamSettings: StreamSettings{
				Network:    "ws",
				WSSettings: WSSettings{Path: p.Path()},
			},
		}},
		Outbounds: []Outbound{{Protocol: "freedom"}},
	}
	for _, opt := range opts {
		opt(&rc)
	}
	return rc
}

// Marshal renders rc as indented JSON.
func (rc RuntimeConfig) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode runtime config: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteRuntimeConfig overwrites path with rc, creating the parent directory
// if needed. The write goes through a temp file and a rename so the proxy
// never reads a partial file. It returns the bytes written.
func WriteRuntimeConfig(path string, rc RuntimeConfig) ([]byte, error) {
	data, err := rc.Marshal()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write runtime config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write runtime config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to set runtime config mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to replace runtime config %q: %w", path, err)
	}

	return data, nil
}
