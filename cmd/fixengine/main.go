package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aidin1998/fixengine/internal/config"
	"github.com/Aidin1998/fixengine/internal/session"
	"github.com/Aidin1998/fixengine/pkg/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to fixengine.yaml")
		addr        = flag.String("addr", "", "counterparty host:port (overrides nothing, required)")
		metricsAddr = flag.String("metrics-addr", ":9103", "prometheus metrics listen address")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		zapLogger.Fatal("Invalid session configuration", zap.Error(err))
	}
	if *addr == "" {
		zapLogger.Fatal("-addr is required")
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			zapLogger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()

	sessLog := logger.ForSession(zapLogger, sessCfg.SenderCompID, sessCfg.TargetCompID)
	sess, err := session.New(sessCfg, sessLog, session.NewMemoryStore())
	if err != nil {
		zapLogger.Fatal("Failed to create session", zap.Error(err))
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		zapLogger.Fatal("Failed to connect", zap.String("addr", *addr), zap.Error(err))
	}
	defer conn.Close()
	zapLogger.Info("Transport connected", zap.String("addr", *addr))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		zapLogger.Info("Shutdown signal received")
		conn.SetReadDeadline(time.Now())
	}()

	if err := sess.Connect(time.Now()); err != nil {
		zapLogger.Fatal("Failed to start logon", zap.Error(err))
	}
	run(sess, conn, sessLog)
}

// run drives the session: transport bytes in, frames out, timers on the
// session's own deadlines.
func run(sess *session.Session, conn net.Conn, log *zap.Logger) {
	buf := make([]byte, 64*1024)
	for {
		if !flush(sess, conn, log) {
			return
		}

		deadline := sess.NextDeadline()
		if deadline.IsZero() {
			deadline = time.Now().Add(time.Second)
		}
		conn.SetReadDeadline(deadline)
		n, err := conn.Read(buf)
		now := time.Now()
		if n > 0 {
			sess.Receive(now, buf[:n])
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				sess.Tick(now)
			} else {
				sess.TransportClosed(err.Error())
			}
		}

		for _, ev := range sess.Events() {
			switch ev.Kind {
			case session.EventActive:
				log.Info("Session active")
			case session.EventMessage:
				log.Info("Application message", zap.String("msg_type", ev.Msg.MsgType()))
			case session.EventDuplicate:
				log.Info("Duplicate replay", zap.String("msg_type", ev.Msg.MsgType()))
			case session.EventRejected:
				log.Warn("Inbound message rejected", zap.Error(ev.Err))
			case session.EventPeerReject:
				log.Warn("Peer rejected our message")
			case session.EventGarbled:
				log.Warn("Garbled inbound bytes", zap.String("reason", ev.Reason))
			case session.EventDisconnected:
				log.Info("Session disconnected", zap.String("reason", ev.Reason))
			case session.EventFailed:
				log.Error("Session failed", zap.String("reason", ev.Reason))
			}
		}

		switch sess.State() {
		case session.StateDisconnected, session.StateFailed:
			flush(sess, conn, log)
			return
		}
	}
}

func flush(sess *session.Session, conn net.Conn, log *zap.Logger) bool {
	for _, frame := range sess.Outbound() {
		if _, err := conn.Write(frame); err != nil {
			log.Error("Transport write failed", zap.Error(err))
			sess.TransportClosed(err.Error())
			return false
		}
	}
	return true
}
