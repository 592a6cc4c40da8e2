package wsclient

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"liargame/internal/app"
	"liargame/internal/domain"
	"liargame/internal/protocol"
	"liargame/internal/realtime"
	"liargame/internal/relay"
	"liargame/internal/session"
)

func startRelay(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	srv := relay.NewServer(relay.DefaultOptions(), "test", zerolog.Nop())
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})

	resp, err := http.Post(ts.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return ts, body.Code
}

func roomChannel(ts *httptest.Server, code string) *Channel {
	return New(ts.URL+"/rooms/"+code+"/ws", zerolog.Nop())
}

type recorder struct {
	mu        sync.Mutex
	payloads  [][]byte
	presences []realtime.PresenceEvent
	statuses  []realtime.Status
}

func (r *recorder) attach(c *Channel, event string) {
	c.OnBroadcast(event, func(payload []byte) {
		r.mu.Lock()
		r.payloads = append(r.payloads, payload)
		r.mu.Unlock()
	})
	c.OnPresence(func(ev realtime.PresenceEvent) {
		r.mu.Lock()
		r.presences = append(r.presences, ev)
		r.mu.Unlock()
	})
	c.OnStatus(func(s realtime.Status) {
		r.mu.Lock()
		r.statuses = append(r.statuses, s)
		r.mu.Unlock()
	})
}

func (r *recorder) payloadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func (r *recorder) lastPresence() (realtime.PresenceEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.presences) == 0 {
		return realtime.PresenceEvent{}, false
	}
	return r.presences[len(r.presences)-1], true
}

func (r *recorder) hasStatus(want realtime.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s == want {
			return true
		}
	}
	return false
}

func TestSubscribeUnknownRoomFails(t *testing.T) {
	ts, _ := startRelay(t)
	c := roomChannel(ts, "ZZZZZZ")
	rec := &recorder{}
	rec.attach(c, "game_action")

	require.Error(t, c.Subscribe(context.Background()))
	require.True(t, rec.hasStatus(realtime.StatusError))
}

func TestBroadcastRoundTrip(t *testing.T) {
	ts, code := startRelay(t)

	c1 := roomChannel(ts, code)
	c2 := roomChannel(ts, code)
	rec1, rec2 := &recorder{}, &recorder{}
	rec1.attach(c1, "game_action")
	rec2.attach(c2, "game_action")

	require.NoError(t, c1.Subscribe(context.Background()))
	t.Cleanup(func() { c1.Unsubscribe() })
	require.NoError(t, c2.Subscribe(context.Background()))
	t.Cleanup(func() { c2.Unsubscribe() })

	require.True(t, rec1.hasStatus(realtime.StatusConnected))

	require.NoError(t, c1.Broadcast("game_action", []byte(`{"n":1}`)))
	require.Eventually(t, func() bool {
		return rec1.payloadCount() == 1 && rec2.payloadCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPresenceAcrossTheWire(t *testing.T) {
	ts, code := startRelay(t)

	c1 := roomChannel(ts, code)
	c2 := roomChannel(ts, code)
	rec2 := &recorder{}
	rec2.attach(c2, "game_action")

	require.NoError(t, c1.Subscribe(context.Background()))
	t.Cleanup(func() { c1.Unsubscribe() })
	require.NoError(t, c2.Subscribe(context.Background()))
	t.Cleanup(func() { c2.Unsubscribe() })

	require.NoError(t, c1.Track(protocol.NewPresencePayload(domain.Player{ID: "p1", Name: "Ana", IsHost: true})))

	require.Eventually(t, func() bool {
		ev, ok := rec2.lastPresence()
		if !ok {
			return false
		}
		roster := realtime.Roster(ev.State)
		return len(roster) == 1 && roster[0].ID == "p1"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c1.Unsubscribe())
	require.Eventually(t, func() bool {
		ev, ok := rec2.lastPresence()
		return ok && len(realtime.Roster(ev.State)) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

// TestFullRoundOverRelay plays one complete round with real sessions on
// real websockets, proving the networked binding honors the same channel
// contract the in-process bus does.
func TestFullRoundOverRelay(t *testing.T) {
	ts, code := startRelay(t)
	svc := app.NewService(rand.New(rand.NewSource(99)))

	sessions := make(map[string]*session.Session)
	ids := []string{"p1", "p2", "p3"}
	for i, id := range ids {
		self := domain.Player{ID: id, Name: "Player " + id, IsHost: i == 0}
		s := session.New(roomChannel(ts, code), self, domain.DefaultSettings(), svc, zerolog.Nop())
		if s.Engine() != nil {
			s.Engine().SetDelays(5*time.Millisecond, 5*time.Millisecond)
		}
		require.NoError(t, s.Join(context.Background()))
		sessions[id] = s
		t.Cleanup(s.Leave)
	}

	waitAll := func(cond func(domain.RoomState) bool) {
		require.Eventually(t, func() bool {
			for _, s := range sessions {
				if !cond(s.State()) {
					return false
				}
			}
			return true
		}, 5*time.Second, 10*time.Millisecond)
	}

	waitAll(func(st domain.RoomState) bool { return len(st.Players) == 3 })

	require.NoError(t, sessions["p1"].StartGame())
	waitAll(func(st domain.RoomState) bool { return st.Game.Phase == domain.PhasePlaying })

	for id, s := range sessions {
		require.NoError(t, s.SubmitAnswer("answer from "+id))
	}
	waitAll(func(st domain.RoomState) bool { return st.Game.Phase == domain.PhaseVoting })

	liar := sessions["p1"].State().Game.LiarID
	for id, s := range sessions {
		target := liar
		if id == liar {
			target = "p1"
			if liar == "p1" {
				target = "p2"
			}
		}
		require.NoError(t, s.SubmitVote(target))
	}
	waitAll(func(st domain.RoomState) bool { return st.Game.Phase == domain.PhaseResults })

	for _, s := range sessions {
		st := s.State()
		require.Len(t, st.Game.Winners, 2)
		require.NotContains(t, st.Game.Winners, liar)
	}
}
