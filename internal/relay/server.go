package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

// Options configures a relay server.
type Options struct {
	// IdleRoomTimeout reaps rooms with no activity for this long. Zero
	// disables reaping.
	IdleRoomTimeout time.Duration

	// MessagesPerSecond and MessageBurst bound each connection's inbound
	// frame rate. A connection that exceeds the limit is closed.
	MessagesPerSecond float64
	MessageBurst      int

	// PublicURL overrides the base URL encoded into share QR codes. Empty
	// means derive it from the request.
	PublicURL string
}

// DefaultOptions are the production defaults.
func DefaultOptions() Options {
	return Options{
		IdleRoomTimeout:   time.Hour,
		MessagesPerSecond: 20,
		MessageBurst:      40,
	}
}

// Server is the relay's HTTP surface: room creation, the per-room
// websocket, a share QR code and health probes.
type Server struct {
	opts    Options
	logger  zerolog.Logger
	manager *Manager
	router  *httprouter.Router
	version string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewServer(opts Options, version string, logger zerolog.Logger) *Server {
	s := &Server{
		opts:    opts,
		logger:  logger,
		manager: NewManager(opts.IdleRoomTimeout, logger),
		router:  httprouter.New(),
		version: version,
	}

	s.router.POST("/rooms", s.createRoom)
	s.router.GET("/rooms/:code/ws", s.serveWS)
	s.router.GET("/rooms/:code/qr", s.serveQR)
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/version", s.serveVersion)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close shuts down every room.
func (s *Server) Close() {
	s.manager.Close()
}

// Manager exposes the room registry, mainly for tests and stats endpoints.
func (s *Server) Manager() *Manager {
	return s.manager
}

type createRoomResponse struct {
	Code string `json:"code"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	code, err := s.manager.CreateRoom()
	if err != nil {
		s.logger.Error().Err(err).Msg("room creation failed")
		http.Error(w, "could not allocate a room code", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createRoomResponse{Code: code})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := strings.ToUpper(ps.ByName("code"))
	rm, err := s.manager.lookup(code)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	limiter := rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)
	c := newClient(conn, uuid.NewString(), limiter)

	rm.register <- c
	go c.writePump()
	c.readPump(rm)
}

// serveQR renders a PNG QR code pointing at the room, for passing a phone
// around the table.
func (s *Server) serveQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := strings.ToUpper(ps.ByName("code"))
	if _, err := s.manager.lookup(code); err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	base := s.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}

	png, err := qrcode.Encode(base+"/rooms/"+code, qrcode.Medium, 320)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) serveVersion(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": s.version})
}
