package unix

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/bKV/rpc/common"
)

func startServer(t *testing.T, handler func([]byte) []byte) string {
	t.Helper()
	endpoint := filepath.Join(t.TempDir(), "bkv.sock")

	server := NewUnixDefaultServerTransport()
	server.RegisterHandler(handler)

	done := make(chan error, 1)
	go func() {
		done <- server.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: endpoint}})
	}()
	t.Cleanup(func() {
		server.Close()
		if err := <-done; err != nil {
			t.Errorf("Listen returned %v", err)
		}
	})
	return endpoint
}

func connect(t *testing.T, endpoint string) *common.ClientConfig {
	t.Helper()
	return &common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{endpoint},
			RetryCount:             3,
			ConnectionsPerEndpoint: 2,
		},
	}
}

func TestRoundTrip(t *testing.T) {
	endpoint := startServer(t, func(req []byte) []byte {
		return append([]byte("echo:"), req...)
	})
	cfg := connect(t, endpoint)

	client := NewUnixClientTransport()
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := client.Connect(*cfg)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Failed to connect: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := []byte(fmt.Sprintf("request-%d", i))
			resp, err := client.Send(req)
			if err != nil {
				t.Errorf("Request %d failed: %v", i, err)
				return
			}
			if want := append([]byte("echo:"), req...); !bytes.Equal(resp, want) {
				t.Errorf("Request %d: expected %q, got %q", i, want, resp)
			}
		}(i)
	}
	wg.Wait()

	// large payloads exceed the pooled buffers
	large := bytes.Repeat([]byte{'x'}, 256*1024)
	resp, err := client.Send(large)
	if err != nil || len(resp) != len(large)+5 {
		t.Errorf("Large request failed: %v (%d bytes)", err, len(resp))
	}
}

func TestConnectWithoutServer(t *testing.T) {
	client := NewUnixClientTransport()
	cfg := connect(t, filepath.Join(t.TempDir(), "missing.sock"))
	if err := client.Connect(*cfg); err == nil {
		t.Errorf("Expected an error without a server")
	}
	if err := client.Connect(common.ClientConfig{}); err == nil {
		t.Errorf("Expected an error without endpoints")
	}
}
