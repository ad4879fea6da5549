package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"tofmap-go/internal/config"
)

//go:embed web/*
var webFS embed.FS

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingEvery  = (pongWait * 9) / 10
	sendBuffer = 8
)

// Server serves the status page and pushes decode results to websocket
// clients. A client that falls sendBuffer messages behind is dropped.
type Server struct {
	cfg        config.AppConfig
	statusFn   func() map[string]any
	snapshotFn func() any
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// enqueue hands payload to the client's writer without blocking.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func New(cfg config.AppConfig, statusFn func() map[string]any, snapshotFn func() any) *Server {
	return &Server{
		cfg:        cfg,
		statusFn:   statusFn,
		snapshotFn: snapshotFn,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (s *Server) Handler() (http.Handler, error) {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux, nil
}

// Run serves until ctx ends, pushing every value from messages to all
// websocket clients.
func (s *Server) Run(ctx context.Context, messages <-chan any) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		s.closeAll()
	}()
	go s.broadcast(ctx, messages)

	log.Info().Int("port", s.cfg.Port).Msg("serving status UI")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if payload, err := json.Marshal(s.configPayload()); err == nil {
		c.send <- payload
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(c)
	go s.readLoop(c)
}

// readLoop answers snapshot requests until the connection fails.
func (s *Server) readLoop(c *client) {
	defer s.removeClient(c)

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var request struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &request); err != nil || request.Type != "snapshot_request" {
			continue
		}
		if s.snapshotFn == nil {
			continue
		}
		snapshot := s.snapshotFn()
		if snapshot == nil {
			continue
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			continue
		}
		c.enqueue(data)
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	defer s.removeClient(c)

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := s.write(c, websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(c, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(c *client, messageType int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

func (s *Server) configPayload() map[string]any {
	inst := s.cfg.Instrument
	return map[string]any{
		"type":        "config",
		"instrument":  inst.Name,
		"grid_x":      inst.GridX,
		"grid_y":      inst.GridY,
		"header_size": inst.HeaderSize,
		"tick_us":     inst.Tick,
		"port":        s.cfg.Port,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	payload["ws_clients"] = s.clientCount()
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				log.Warn().Err(err).Msg("ui message not encodable")
				continue
			}
			var slow []*client
			s.mu.Lock()
			for c := range s.clients {
				if !c.enqueue(payload) {
					slow = append(slow, c)
				}
			}
			s.mu.Unlock()
			for _, c := range slow {
				log.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("dropping slow websocket client")
				s.removeClient(c)
			}
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
