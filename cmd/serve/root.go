package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/bKV/cmd/util"
	"github.com/ValentinKolb/bKV/rpc/common"
	"github.com/ValentinKolb/bKV/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a bKV peer",
		Long:    `Start a bKV peer with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is BKV_<flag> (e.g. BKV_PRIVATE_KEY=...)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	def := common.DefaultPeerConfig()
	flags := ServeCmd.PersistentFlags()

	// identity and peers
	key := "private-key"
	flags.String(key, "", cmdUtil.WrapString("The base64 encoded ed25519 private key of this peer (see bkv keys gen)"))

	key = "peers"
	flags.String(key, "", cmdUtil.WrapString("Comma-separated list of the other peers in the format 'PUBLIC_KEY@HOST:PORT'. The port defaults to 27918"))

	key = "bind"
	flags.String(key, "0.0.0.0:27918", cmdUtil.WrapString("The UDP address the peer protocol listens on"))

	key = "max-faulty"
	flags.Int(key, def.MaxFaultyPeers, cmdUtil.WrapString("The number of peers that may fail arbitrarily (f). At least 3f other peers are required"))

	// timing
	key = "read-timeout-ms"
	flags.Int64(key, def.ReadTimeout.Milliseconds(), cmdUtil.WrapString("Delay in milliseconds before a failed quorum read is retried"))

	key = "read-retries"
	flags.Int(key, def.ReadRetryCount, cmdUtil.WrapString("How often a failed quorum read is retried"))

	key = "write1-timeout-ms"
	flags.Int64(key, def.Write1Timeout.Milliseconds(), cmdUtil.WrapString("Delay in milliseconds before a failed grant round is retried"))

	key = "write1-retries"
	flags.Int(key, def.Write1RetryCount, cmdUtil.WrapString("How often a failed grant round is retried"))

	key = "write2-timeout-ms"
	flags.Int64(key, def.Write2Timeout.Milliseconds(), cmdUtil.WrapString("Delay in milliseconds before a failed commit round is retried"))

	key = "write2-retries"
	flags.Int(key, def.Write2RetryCount, cmdUtil.WrapString("How often a failed commit round is retried"))

	key = "execute-timeout-ms"
	flags.Int64(key, def.ExecuteTimeout.Milliseconds(), cmdUtil.WrapString("Time limit in milliseconds of one execute operation in the sandbox"))

	key = "gc-interval-ms"
	flags.Int64(key, def.GCInterval.Milliseconds(), cmdUtil.WrapString("Time in milliseconds between two garbage collection sweeps"))

	key = "gc-key-delay-ms"
	flags.Int64(key, def.GCKeyDelay.Milliseconds(), cmdUtil.WrapString("Pause in milliseconds between two keys of a garbage collection sweep"))

	key = "grant-lease-ms"
	flags.Int64(key, def.GrantLease.Milliseconds(), cmdUtil.WrapString("Time in milliseconds a grant blocks other writers of the same key and epoch. 0 disables the lease"))

	// local services
	key = "store"
	flags.String(key, "memory", cmdUtil.WrapString("The local store backend (memory, pebble)"))

	key = "data-dir"
	flags.String(key, "data", cmdUtil.WrapString("The directory of the pebble store"))

	key = "sandbox"
	flags.String(key, "", cmdUtil.WrapString("Command line execute operations are run with (e.g. 'sh -c'). The code is appended as last argument, the current value is passed on stdin and the key as BKV_KEY. Empty disables execute operations"))

	key = "metrics"
	flags.String(key, "", cmdUtil.WrapString("Address serving /metrics in the Prometheus format (e.g. localhost:9090). Empty disables metrics"))

	// control API
	key = "endpoint"
	flags.String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the control API will listen (e.g. localhost:8080, /tmp/bkv.sock)"))

	key = "timeout"
	flags.Int64(key, 30, cmdUtil.WrapString("Timeout in seconds of a control API request"))

	key = "transport-tcp-nodelay"
	flags.Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	flags.Int(key, 0, cmdUtil.WrapString("The keepalive interval in seconds, 0 disables it (only for tcp)"))

	key = "transport-tcp-linger"
	flags.Int(key, -1, cmdUtil.WrapString("The linger time in seconds, -1 keeps the OS default (only for tcp)"))

	key = "transport-write-buffer"
	flags.Int(key, 0, cmdUtil.WrapString("The socket write buffer in KB, 0 keeps the OS default (only for tcp)"))

	key = "transport-read-buffer"
	flags.Int(key, 0, cmdUtil.WrapString("The socket read buffer in KB, 0 keeps the OS default (only for tcp)"))

	key = "log-level"
	flags.String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	peer := common.DefaultPeerConfig()
	peer.PrivateKey = viper.GetString("private-key")
	peer.BindAddress = viper.GetString("bind")
	peer.MaxFaultyPeers = viper.GetInt("max-faulty")

	keys, addresses, err := parsePeers(viper.GetString("peers"))
	if err != nil {
		return err
	}
	peer.PeerPublicKeys, peer.PeerAddresses = keys, addresses

	ms := func(key string) time.Duration { return time.Duration(viper.GetInt64(key)) * time.Millisecond }
	peer.ReadTimeout, peer.ReadRetryCount = ms("read-timeout-ms"), viper.GetInt("read-retries")
	peer.Write1Timeout, peer.Write1RetryCount = ms("write1-timeout-ms"), viper.GetInt("write1-retries")
	peer.Write2Timeout, peer.Write2RetryCount = ms("write2-timeout-ms"), viper.GetInt("write2-retries")
	peer.ExecuteTimeout = ms("execute-timeout-ms")
	peer.GCInterval = ms("gc-interval-ms")
	peer.GCKeyDelay = ms("gc-key-delay-ms")
	peer.GrantLease = ms("grant-lease-ms")

	serveCmdConfig.Peer = peer
	serveCmdConfig.StoreBackend = viper.GetString("store")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.SandboxCommand = viper.GetString("sandbox")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics")
	serveCmdConfig.TransportType = viper.GetString("transport")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:        viper.GetString("endpoint"),
		TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
	}

	return serveCmdConfig.Validate()
}

// parsePeers parses 'KEY@ADDRESS' entries into index aligned key and address lists
func parsePeers(s string) (keys []string, addresses []string, err error) {
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		// base64 never contains '@'
		key, address, ok := strings.Cut(entry, "@")
		if !ok || key == "" || address == "" {
			return nil, nil, fmt.Errorf("invalid peer format: %s (expected PUBLIC_KEY@HOST:PORT)", entry)
		}
		keys = append(keys, key)
		addresses = append(addresses, address)
	}
	return keys, addresses, nil
}

// run starts the peer and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(*serveCmdConfig, t, s)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		serv.Close()
	}()

	return serv.Serve()
}
