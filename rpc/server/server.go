package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/bKV/lib/replica"
	"github.com/ValentinKolb/bKV/lib/sandbox"
	"github.com/ValentinKolb/bKV/lib/store"
	"github.com/ValentinKolb/bKV/lib/store/memstore"
	"github.com/ValentinKolb/bKV/lib/store/pebblestore"
	"github.com/ValentinKolb/bKV/rpc/common"
	"github.com/ValentinKolb/bKV/rpc/serializer"
	"github.com/ValentinKolb/bKV/rpc/transport"
	"github.com/ValentinKolb/bKV/rpc/transport/transfer"
	"github.com/ValentinKolb/bKV/rpc/transport/udp"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, the control transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	ctx, cancel := context.WithCancel(context.Background())
	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		metrics:    metrics.NewSet(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RPCServer runs one peer: the local store, the UDP transport, the transfer engine, the
// replica and the control API
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	metrics    *metrics.Set

	ctx    context.Context
	cancel context.CancelFunc

	store         store.IStore
	udp           *udp.Transport
	engine        *transfer.Engine
	replica       *replica.Replica
	adapter       IRPCServerAdapter
	metricsServer *http.Server

	closeOnce sync.Once
}

// storeFactory returns the factory of the configured store backend
func (s *RPCServer) storeFactory() (store.Factory, error) {
	switch s.config.StoreBackend {
	case "memory":
		return func() (store.IStore, error) { return memstore.NewMemStore(), nil }, nil
	case "pebble":
		return pebblestore.Factory(s.config.DataDir), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", s.config.StoreBackend)
	}
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			ctx, cancel := s.requestContext(msg.MsgType)
			respMsg = s.adapter.Handle(ctx, &msg)
			cancel()
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// requestContext bounds transactions by the server timeout. The integrity check walks
// every key and only ends with the server.
func (s *RPCServer) requestContext(t common.MessageType) (context.Context, context.CancelFunc) {
	if t == common.MsgTExecTx && s.config.TimeoutSecond > 0 {
		return context.WithTimeout(s.ctx, time.Duration(s.config.TimeoutSecond)*time.Second)
	}
	return context.WithCancel(s.ctx)
}

func (s *RPCServer) init() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	factory, err := s.storeFactory()
	if err != nil {
		return err
	}
	if s.store, err = factory(); err != nil {
		return fmt.Errorf("failed to open %s store: %w", s.config.StoreBackend, err)
	}

	// peers are identified by their public key on the wire
	peers := make([]udp.Peer, len(s.config.Peer.PeerPublicKeys))
	for i, key := range s.config.Peer.PeerPublicKeys {
		peers[i] = udp.Peer{ID: key, Address: s.config.Peer.PeerAddresses[i]}
	}
	if s.udp, err = udp.New(peers); err != nil {
		return err
	}

	opts := transfer.DefaultOptions()
	opts.Metrics = s.metrics
	if s.engine, err = transfer.New(s.udp, opts); err != nil {
		return err
	}

	var executor sandbox.IExecutor
	if s.config.SandboxCommand != "" {
		if executor, err = sandbox.NewProcessExecutor(sandbox.ParseCommand(s.config.SandboxCommand)); err != nil {
			return fmt.Errorf("invalid sandbox command: %w", err)
		}
	}

	s.replica, err = replica.New(s.config.Peer, s.store, s.engine, executor, replica.Options{
		Metrics:     s.metrics,
		PeerMetrics: gometrics.NewRegistry(),
	})
	if err != nil {
		return err
	}
	s.adapter = NewReplicaServerAdapter(s.replica)

	// the handler is set before the socket receives the first datagram
	s.replica.Start(s.ctx)
	if err := s.udp.Listen(s.config.Peer.BindAddress); err != nil {
		return err
	}
	s.engine.Start()

	if s.config.MetricsEndpoint != "" {
		s.startMetricsServer()
	}

	Logger.Infof("bKV peer %s started with %d remote peers", s.replica.ID(), len(peers))

	s.registerTransportHandler()
	return nil
}

// startMetricsServer serves the replica and transfer metrics in the Prometheus format
func (s *RPCServer) startMetricsServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		s.metrics.WritePrometheus(w)
		metrics.WritePrometheus(w, true)
	})
	s.metricsServer = &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics server failed: %v", err)
		}
	}()
}

// Serve starts the peer and serves the control API until Close is called
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		s.Close()
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the control API, the replica and the transports and closes the store
func (s *RPCServer) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.cancel()
		errs = append(errs, s.transport.Close())
		if s.metricsServer != nil {
			errs = append(errs, s.metricsServer.Close())
		}
		if s.replica != nil {
			s.replica.Stop()
		}
		if s.engine != nil {
			s.engine.Stop()
		}
		if s.udp != nil {
			errs = append(errs, s.udp.Close())
		}
		if s.store != nil {
			errs = append(errs, s.store.Close())
		}
		Logger.Infof("bKV peer stopped")
	})
	return errors.Join(errs...)
}
