// Package gateway exposes game sessions over websockets. One
// connection binds one session handle; every durable change reaches
// the client as a full session_state message, never a delta.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/log"
	"github.com/cbodonnell/trustecho/pkg/store"
	"nhooyr.io/websocket"
)

// GatewayServer represents the websocket gateway.
type GatewayServer struct {
	port  int
	tls   *TLSConfig
	store store.Store
	pool  *game.SituationPool
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewGatewayServerOptions struct {
	Port          int
	TLS           *TLSConfig
	Store         store.Store
	SituationPool *game.SituationPool
}

// NewGatewayServer creates a new websocket gateway.
func NewGatewayServer(opts NewGatewayServerOptions) *GatewayServer {
	return &GatewayServer{
		port:  opts.Port,
		tls:   opts.TLS,
		store: opts.Store,
		pool:  opts.SituationPool,
	}
}

// Start starts the gateway server.
func (s *GatewayServer) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			log.Error("Failed to accept websocket connection: %v", err)
			return
		}
		log.Debug("New websocket connection from %s", r.RemoteAddr)
		go s.handleConnection(ctx, conn)
	})

	addr := fmt.Sprintf(":%d", s.port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	var listenAndServe func() error
	if s.tls != nil {
		log.Info("Gateway server listening on %s with TLS", addr)
		listenAndServe = func() error {
			return server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("Gateway server listening on %s", addr)
		listenAndServe = server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("Gateway server closed")
			return
		}
		log.Error("Gateway server error: %v", err)
	}
}

func (s *GatewayServer) handleConnection(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	client := newClientSession(s.store, s.pool, conn)
	defer func() {
		cancel()
		client.close()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	go client.writeLoop(ctx)
	client.readLoop(ctx)
}
