package common

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/ValentinKolb/bKV/lib/cert"
)

// validPeerConfig creates a config for a 4 peer cluster with f = 1
func validPeerConfig(t *testing.T) PeerConfig {
	t.Helper()
	cfg := DefaultPeerConfig()

	priv, _, err := cert.GenerateKey()
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	cfg.PrivateKey = priv

	for i := 0; i < 3; i++ {
		_, pub, err := cert.GenerateKey()
		if err != nil {
			t.Fatalf("Failed to generate key: %v", err)
		}
		cfg.PeerPublicKeys = append(cfg.PeerPublicKeys, pub)
		cfg.PeerAddresses = append(cfg.PeerAddresses, fmt.Sprintf("127.0.0.1:%d", 27910+i))
	}
	return cfg
}

func TestPeerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *PeerConfig)
		wantErr string
	}{
		{"Valid", func(c *PeerConfig) {}, ""},
		{"ZeroFaulty", func(c *PeerConfig) { c.MaxFaultyPeers = 0 }, "at least 1"},
		{"TooFewPeers", func(c *PeerConfig) { c.MaxFaultyPeers = 2 }, "at least 3 * max faulty peers"},
		{"MissingAddress", func(c *PeerConfig) { c.PeerAddresses = c.PeerAddresses[:2] }, "peer addresses"},
		{"BadPrivateKey", func(c *PeerConfig) { c.PrivateKey = "not base64!" }, "private key"},
		{"BadPublicKey", func(c *PeerConfig) { c.PeerPublicKeys[1] = "AAAA" }, "peer 1"},
		{"DuplicatePeer", func(c *PeerConfig) { c.PeerPublicKeys[2] = c.PeerPublicKeys[0] }, "duplicate"},
		{"ZeroTimeout", func(c *PeerConfig) { c.Write2Timeout = 0 }, "write2 timeout"},
		{"NegativeRetries", func(c *PeerConfig) { c.ReadRetryCount = -1 }, "retry counts"},
		{"OwnKeyAsPeer", func(c *PeerConfig) {
			priv, _ := cert.ParsePrivateKey(c.PrivateKey)
			c.PeerPublicKeys[0] = string(cert.IDFromPublicKey(priv.Public().(ed25519.PublicKey)))
		}, "own public key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validPeerConfig(t)
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestServerConfigValidate(t *testing.T) {
	cfg := ServerConfig{
		Peer:          validPeerConfig(t),
		TransportType: "tcp",
		Transport:     ServerTransportConfig{Endpoint: "127.0.0.1:8080"},
		StoreBackend:  "memory",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected valid config, got: %v", err)
	}

	cfg.StoreBackend = "pebble"
	if err := cfg.Validate(); err == nil {
		t.Errorf("Expected error for pebble store without data dir")
	}

	cfg.DataDir = t.TempDir()
	cfg.TransportType = "http"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown transport") {
		t.Errorf("Expected unknown transport error, got: %v", err)
	}
}

func TestConfigString(t *testing.T) {
	cfg := ServerConfig{
		Peer:          validPeerConfig(t),
		TransportType: "unix",
		Transport:     ServerTransportConfig{Endpoint: "/tmp/bkv.sock"},
		StoreBackend:  "memory",
		LogLevel:      "info",
	}
	s := cfg.String()
	for _, want := range []string{"CONTROL API", "/tmp/bkv.sock", "Write Quorum", ": 3", cfg.Peer.PeerPublicKeys[2]} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected config string to contain %q:\n%s", want, s)
		}
	}
}

func TestMessageTypeJSON(t *testing.T) {
	for mt := MsgTSuccess; mt < msgTEnd; mt++ {
		b, err := json.Marshal(mt)
		if err != nil {
			t.Fatalf("Failed to marshal %s: %v", mt, err)
		}
		var decoded MessageType
		if err := json.Unmarshal(b, &decoded); err != nil {
			t.Fatalf("Failed to unmarshal %s: %v", b, err)
		}
		if decoded != mt {
			t.Errorf("Expected %s, got %s", mt, decoded)
		}
	}

	var mt MessageType
	if err := json.Unmarshal([]byte(`"nope"`), &mt); err == nil {
		t.Errorf("Expected error for unknown message type")
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error"} {
		if _, err := ParseLogLevel(level); err != nil {
			t.Errorf("Expected %q to be valid: %v", level, err)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Errorf("Expected error for invalid level")
	}
}
