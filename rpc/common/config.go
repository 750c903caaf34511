package common

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/bKV/lib/cert"
)

// --------------------------------------------------------------------------
// Peer configuration struct
// --------------------------------------------------------------------------

// PeerConfig holds the replication parameters of one peer
type PeerConfig struct {
	// Identity, base64 encoded ed25519 keys
	PrivateKey     string
	PeerPublicKeys []string
	PeerAddresses  []string // index aligned with PeerPublicKeys
	BindAddress    string

	// MaxFaultyPeers is f, the number of peers that may fail arbitrarily
	MaxFaultyPeers int

	// The timeouts are the delays before a failed quorum round is retried
	ReadTimeout      time.Duration
	ReadRetryCount   int
	Write1Timeout    time.Duration
	Write1RetryCount int
	Write2Timeout    time.Duration
	Write2RetryCount int
	ExecuteTimeout   time.Duration

	// GCInterval is the time between two garbage collection sweeps. GCKeyDelay is slept
	// between two keys so a sweep does not starve client transactions.
	GCInterval time.Duration
	GCKeyDelay time.Duration

	// GrantLease is how long a pending grant blocks other writers at the same epoch
	GrantLease time.Duration
}

// DefaultPeerConfig returns a config with the default timing parameters and no identity
func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		MaxFaultyPeers:   1,
		ReadTimeout:      1000 * time.Millisecond,
		ReadRetryCount:   3,
		Write1Timeout:    1000 * time.Millisecond,
		Write1RetryCount: 3,
		Write2Timeout:    1000 * time.Millisecond,
		Write2RetryCount: 3,
		ExecuteTimeout:   1000 * time.Millisecond,
		GCInterval:       60 * time.Second,
		GCKeyDelay:       0,
		GrantLease:       5 * time.Second,
	}
}

// Validate checks the configuration for consistency
func (c *PeerConfig) Validate() error {
	var errs []error

	if c.MaxFaultyPeers < 1 {
		errs = append(errs, fmt.Errorf("max faulty peers must be at least 1, got %d", c.MaxFaultyPeers))
	}
	if len(c.PeerPublicKeys) < 3*c.MaxFaultyPeers {
		errs = append(errs, fmt.Errorf("%d remote peers configured, at least 3 * max faulty peers = %d are required",
			len(c.PeerPublicKeys), 3*c.MaxFaultyPeers))
	}
	if len(c.PeerAddresses) != len(c.PeerPublicKeys) {
		errs = append(errs, fmt.Errorf("%d peer addresses for %d peer public keys", len(c.PeerAddresses), len(c.PeerPublicKeys)))
	}

	priv, err := cert.ParsePrivateKey(c.PrivateKey)
	if err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]struct{}, len(c.PeerPublicKeys))
	for i, k := range c.PeerPublicKeys {
		if _, err := cert.ParsePublicKey(k); err != nil {
			errs = append(errs, fmt.Errorf("peer %d: %w", i, err))
			continue
		}
		if _, dup := seen[k]; dup {
			errs = append(errs, fmt.Errorf("peer %d: duplicate public key", i))
		}
		seen[k] = struct{}{}
	}
	if priv != nil {
		own := string(cert.IDFromPublicKey(priv.Public().(ed25519.PublicKey)))
		if _, ok := seen[own]; ok {
			errs = append(errs, errors.New("the own public key must not be listed as a peer"))
		}
	}

	durations := map[string]time.Duration{
		"read timeout":    c.ReadTimeout,
		"write1 timeout":  c.Write1Timeout,
		"write2 timeout":  c.Write2Timeout,
		"execute timeout": c.ExecuteTimeout,
		"gc interval":     c.GCInterval,
	}
	for _, name := range []string{"read timeout", "write1 timeout", "write2 timeout", "execute timeout", "gc interval"} {
		if durations[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.ReadRetryCount < 0 || c.Write1RetryCount < 0 || c.Write2RetryCount < 0 {
		errs = append(errs, errors.New("retry counts must not be negative"))
	}
	if c.GCKeyDelay < 0 || c.GrantLease < 0 {
		errs = append(errs, errors.New("gc key delay and grant lease must not be negative"))
	}

	return errors.Join(errs...)
}

// String returns a formatted string representation of the configuration
func (c *PeerConfig) String() string {
	var sb strings.Builder
	f := newFormatter(&sb)

	f.addSection("Peer")
	if priv, err := cert.ParsePrivateKey(c.PrivateKey); err == nil {
		f.addField("Peer ID", string(cert.IDFromPublicKey(priv.Public().(ed25519.PublicKey))))
	} else {
		f.addField("Peer ID", "<invalid private key>")
	}
	f.addField("Bind Address", c.BindAddress)
	f.addField("Max Faulty Peers", strconv.Itoa(c.MaxFaultyPeers))
	f.addField("Write Quorum", strconv.Itoa(2*c.MaxFaultyPeers+1))
	f.addField("Read Quorum", strconv.Itoa(c.MaxFaultyPeers+1))

	f.addSection("Timing")
	f.addField("Read", fmt.Sprintf("%s, %d retries", c.ReadTimeout, c.ReadRetryCount))
	f.addField("Write1", fmt.Sprintf("%s, %d retries", c.Write1Timeout, c.Write1RetryCount))
	f.addField("Write2", fmt.Sprintf("%s, %d retries", c.Write2Timeout, c.Write2RetryCount))
	f.addField("Execute Timeout", c.ExecuteTimeout.String())
	f.addField("GC Interval", c.GCInterval.String())
	f.addField("GC Key Delay", c.GCKeyDelay.String())
	f.addField("Grant Lease", c.GrantLease.String())

	f.addSection("Peers")
	for i, k := range c.PeerPublicKeys {
		addr := "<missing>"
		if i < len(c.PeerAddresses) {
			addr = c.PeerAddresses[i]
		}
		f.addField(addr, k)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the settings of the control API listener
type ServerTransportConfig struct {
	Endpoint        string
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	WriteBufferSize int
	ReadBufferSize  int
}

// ServerConfig holds all configuration parameters of a running peer
type ServerConfig struct {
	Peer PeerConfig

	// Control API
	TransportType string // tcp or unix
	Transport     ServerTransportConfig
	Serializer    string
	TimeoutSecond int64

	// Local store
	StoreBackend string // memory or pebble
	DataDir      string

	// SandboxCommand is the command line EXECUTE code is passed to, empty disables EXECUTE
	SandboxCommand string

	// MetricsEndpoint serves /metrics if not empty
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Validate checks the peer configuration and the server settings
func (c *ServerConfig) Validate() error {
	errs := []error{c.Peer.Validate()}
	switch c.StoreBackend {
	case "memory":
	case "pebble":
		if c.DataDir == "" {
			errs = append(errs, errors.New("the pebble store requires a data directory"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend: %s", c.StoreBackend))
	}
	if c.TransportType != "tcp" && c.TransportType != "unix" {
		errs = append(errs, fmt.Errorf("unknown transport: %s", c.TransportType))
	}
	if c.Transport.Endpoint == "" {
		errs = append(errs, errors.New("the control endpoint must not be empty"))
	}
	return errors.Join(errs...)
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder
	f := newFormatter(&sb)

	// RPC settings
	f.addSection("Control API")
	f.addField("Transport", c.TransportType)
	f.addField("Endpoint", c.Transport.Endpoint)
	f.addField("Serializer", c.Serializer)
	f.addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	f.addSection("Storage")
	f.addField("Backend", c.StoreBackend)
	if c.StoreBackend == "pebble" {
		f.addField("Data Directory", c.DataDir)
	}

	f.addSection("Execution")
	if c.SandboxCommand == "" {
		f.addField("Sandbox", "disabled")
	} else {
		f.addField("Sandbox", c.SandboxCommand)
	}

	// Logging and metrics
	f.addSection("Observability")
	f.addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		f.addField("Metrics", c.MetricsEndpoint)
	} else {
		f.addField("Metrics", "disabled")
	}

	sb.WriteString(c.Peer.String())
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the connection settings of the control client
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
}

type ClientConfig struct {
	Transport     ClientTransportConfig
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder
	f := newFormatter(&sb)

	// General Client Settings
	f.addSection("Client Configuration")
	f.addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	f.addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	f.addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	f.addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		f.addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type formatter struct {
	sb *strings.Builder
}

func newFormatter(sb *strings.Builder) formatter {
	return formatter{sb: sb}
}

func (f formatter) addSection(title string) {
	f.sb.WriteString("\n")
	f.sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func (f formatter) addField(name, value string) {
	f.sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
}
