package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"liargame/internal/domain"
)

var ErrRoomNotFound = errors.New("room not found")

// Manager owns the live rooms, keyed by room code. Rooms are created
// explicitly and joined by code; an unknown code is a 404, never an implicit
// new room, so mistyped codes fail loudly instead of stranding a player in
// an empty lobby.
type Manager struct {
	logger      zerolog.Logger
	idleTimeout time.Duration

	mu    sync.Mutex
	rooms map[string]*room

	stopReaper chan struct{}
}

func NewManager(idleTimeout time.Duration, logger zerolog.Logger) *Manager {
	m := &Manager{
		logger:      logger,
		idleTimeout: idleTimeout,
		rooms:       make(map[string]*room),
		stopReaper:  make(chan struct{}),
	}
	if idleTimeout > 0 {
		go m.reaperLoop()
	}
	return m
}

// CreateRoom reserves a fresh room code and starts its hub.
func (m *Manager) CreateRoom() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, err := domain.GenerateUniqueRoomCode(func(candidate string) bool {
		_, taken := m.rooms[candidate]
		return taken
	})
	if err != nil {
		return "", err
	}

	r := newRoom(code, m.logger)
	m.rooms[code] = r
	go r.run()
	m.logger.Info().Str("room", code).Msg("room created")
	return code, nil
}

func (m *Manager) lookup(code string) (*room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// RoomCount reports the number of live rooms.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *Manager) reaperLoop() {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapIdle(time.Now().Add(-m.idleTimeout))
		case <-m.stopReaper:
			return
		}
	}
}

func (m *Manager) reapIdle(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, r := range m.rooms {
		if r.idleSince().Before(cutoff) {
			delete(m.rooms, code)
			r.close()
			m.logger.Info().Str("room", code).Msg("room reaped")
		}
	}
}

// Close shuts down every room and the reaper.
func (m *Manager) Close() {
	close(m.stopReaper)
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, r := range m.rooms {
		delete(m.rooms, code)
		r.close()
	}
}
