// Command cluster is the OTP cluster process: it loads configuration and
// the DC schema, wires the Message Director, the in-process State Server,
// the shard registry, the cooperative scheduler, the replaylog recorder,
// and the admin introspection plane together, then accepts participant
// connections until terminated (§2 "System overview", §5 "Process
// wiring").
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"astrond/cluster/internal/admin"
	"astrond/cluster/internal/channel"
	"astrond/cluster/internal/config"
	"astrond/cluster/internal/connio"
	"astrond/cluster/internal/dc"
	"astrond/cluster/internal/logging"
	"astrond/cluster/internal/md"
	"astrond/cluster/internal/netutil"
	"astrond/cluster/internal/replaylog"
	"astrond/cluster/internal/scheduler"
	"astrond/cluster/internal/shard"
	"astrond/cluster/internal/ss"
	"astrond/cluster/internal/wire"
)

// fanoutObserver combines multiple RoutingObservers into one, so the
// Director can be constructed with a single md.WithObserver option while
// both the admin live-tail and the replaylog recorder watch every
// decision.
func fanoutObserver(observers ...md.RoutingObserver) md.RoutingObserver {
	return func(outcome string, h md.MessageHandle) {
		for _, o := range observers {
			o(outcome, h)
		}
	}
}

// replayObserver adapts the Director's routing decisions into replaylog
// events, recording every routed or dropped message for post-mortem
// replay (§A.3.6).
func replayObserver(writer *replaylog.Writer, logger *logging.Logger) md.RoutingObserver {
	return func(outcome string, h md.MessageHandle) {
		if err := writer.AppendRoutingEvent(replaylog.RoutingEvent{
			Channel:     uint64(h.Channel),
			Sender:      uint64(h.Sender),
			MessageType: h.MessageType,
			Outcome:     outcome,
			PayloadSize: len(h.Payload),
		}); err != nil {
			logger.Debug("replaylog append failed", logging.Error(err))
		}
	}
}

// flushBudget bounds how many queued handles the Message Director drains
// per scheduler tick (§5 "periodic queue flush"), keeping a single tick
// bounded even under a burst of traffic.
const flushBudget = 4096

func main() {
	startedAt := time.Now()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer func() {
		_ = logger.Sync()
	}()

	schemaFiles, err := filepath.Glob(filepath.Join(cfg.SchemaPath, "*.dc"))
	if err != nil || len(schemaFiles) == 0 {
		logger.Fatal("failed to locate schema files", logging.Error(err), logging.String("schema_path", cfg.SchemaPath))
	}
	registry, err := dc.LoadFiles(schemaFiles)
	if err != nil {
		logger.Fatal("failed to load dc schema", logging.Error(err))
	}
	logger.Info("dc schema loaded", logging.Int("classes", len(registry.Classes())))

	hub := admin.NewHub(logger.With(logging.String("component", "admin-hub")))

	bundleID := fmt.Sprintf("cluster-%d", startedAt.Unix())
	writer, manifest, err := replaylog.NewWriter(cfg.ReplayLogPath, bundleID, registry.Hash(), nil)
	if err != nil {
		logger.Fatal("failed to open replaylog bundle", logging.Error(err))
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Warn("replaylog writer close failed", logging.Error(err))
		}
	}()
	logger.Info("replaylog bundle opened", logging.String("directory", writer.Directory()), logging.Int("schema_hash", int(manifest.SchemaHash)))

	director := md.NewDirector(cfg.MessageTimeout,
		md.WithLogger(logger.With(logging.String("component", "md"))),
		md.WithObserver(fanoutObserver(hub.Observer(), replayObserver(writer, logger))),
	)

	shards := shard.NewManager()
	stateServer := ss.NewServer(director, registry, shards,
		channel.Channel(cfg.StateServerChannel), channel.Channel(cfg.DatabaseChannel),
		ss.WithLogger(logger.With(logging.String("component", "ss"))),
	)

	cleaner := replaylog.NewCleaner(cfg.ReplayLogPath, replaylog.RetentionPolicy{
		MaxBundles: cfg.ReplayRetentionBundles,
		MaxAge:     cfg.ReplayRetentionAge,
	}, logger.With(logging.String("component", "replaylog-cleaner")))

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cleaner.Run(rootCtx, time.Hour)

	var snapshotTick uint64
	loop := scheduler.NewLoop(20, []scheduler.Task{
		{Name: "md-flush", Run: func() { director.Flush(flushBudget) }},
		{Name: "ss-snapshot", Run: func() {
			snapshotTick++
			if snapshotTick%20 != 0 {
				return
			}
			if err := writer.AppendObjectSnapshot(snapshotTick, stateServer.Snapshot()); err != nil {
				logger.Debug("replaylog snapshot append failed", logging.Error(err))
			}
		}},
	})
	loop.Start(rootCtx)
	defer loop.Stop()

	deps := admin.Dependencies{
		Logger:     logger.With(logging.String("component", "admin")),
		Registry:   registry,
		Director:   director,
		Shards:     shards,
		Loop:       loop,
		Replay:     writer,
		Cleaner:    cleaner,
		AdminToken: cfg.AdminToken,
		StartedAt:  startedAt,
	}
	handlers := admin.NewHandlerSet(deps, admin.NewSlidingWindowLimiter(time.Minute, 30, nil), hub)
	adminMux := http.NewServeMux()
	handlers.Register(adminMux)
	adminServer := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.AdminAddress, cfg.AdminPort), Handler: logging.HTTPTraceMiddleware(logger)(adminMux)}

	go func() {
		logger.Info("admin plane listening", logging.String("address", netutil.ListenerURL("http", adminServer.Addr)))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server terminated", logging.Error(err))
		}
	}()

	mdAddr := fmt.Sprintf("%s:%d", cfg.MessageDirectorAddress, cfg.MessageDirectorPort)
	listener, err := connio.Listen(mdAddr, connio.WithLogger(logger.With(logging.String("component", "connio"))))
	if err != nil {
		logger.Fatal("failed to bind message director listener", logging.Error(err), logging.String("address", mdAddr))
	}
	logger.Info("message director listening", logging.String("address", netutil.ListenerURL("tcp", mdAddr)))

	var wg sync.WaitGroup
	srv := &clusterServer{
		director: director,
		ss:       stateServer,
		shards:   shards,
		logger:   logger.With(logging.String("component", "bus")),
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-rootCtx.Done():
					return
				default:
				}
				logger.Warn("connio accept failed", logging.Error(err))
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				srv.serve(conn)
			}()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, draining")
	cancel()
	_ = listener.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = adminServer.Shutdown(shutdownCtx)
	wg.Wait()
}

// clusterServer bridges accepted connio connections into the Message
// Director: it decodes each inbound frame as either a control datagram
// (subscription/post-remove management, §4.1) or a standard routed
// datagram, and adapts outbound Director routing back into the
// connection's raw frame writer.
type clusterServer struct {
	director *md.Director
	ss       *ss.Server
	shards   *shard.Manager
	logger   *logging.Logger
}

// participantConn adapts a connio.Conn's raw-byte Send into the typed
// md.Conn interface the Director routes through.
type participantConn struct {
	conn *connio.Conn
}

func (p participantConn) Send(datagram wire.Datagram) error {
	return p.conn.Send(datagram.Encode())
}

func (s *clusterServer) serve(conn *connio.Conn) {
	participant := md.NewParticipant(participantConn{conn: conn})
	remote := conn.RemoteAddr().String()
	s.logger.Info("participant connected", logging.String("remote", remote))

	conn.Serve(func(payload []byte) {
		s.handleFrame(participant, payload)
	})

	for _, c := range participant.Channels() {
		if _, registered := s.shards.Get(c); registered {
			s.ss.HandleAIDisconnect(c)
		}
	}
	s.director.RemoveParticipant(participant)
	s.logger.Info("participant disconnected", logging.String("remote", remote))
}

// handleFrame decodes a single inbound frame, branching on whether its
// destination channel is the CONTROL_MESSAGE sentinel (§4.1).
func (s *clusterServer) handleFrame(p *md.Participant, payload []byte) {
	cursor := wire.NewCursor(payload)
	count, err := cursor.Uint8()
	if err != nil || count != 1 {
		s.logger.Warn("dropping malformed frame: bad channel_count")
		return
	}
	dest, err := cursor.Uint64()
	if err != nil {
		s.logger.Warn("dropping malformed frame: truncated channel")
		return
	}

	if channel.Channel(dest) == channel.Control {
		if err := s.director.HandleControl(p, cursor.Rest()); err != nil {
			s.logger.Warn("control message rejected", logging.Error(err))
		}
		return
	}

	datagram, err := wire.DecodeDatagram(payload)
	if err != nil {
		s.logger.Warn("dropping malformed datagram", logging.Error(err))
		return
	}
	handle := md.MessageHandle{
		Channel:     channel.Channel(datagram.Channel),
		Sender:      channel.Channel(datagram.Sender),
		MessageType: datagram.MessageType,
		Payload:     datagram.Payload,
	}
	s.director.Enqueue(handle)
}
