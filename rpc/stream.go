package rpc

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tolelom/tolarcade/events"
)

const (
	streamBuffer       = 256
	streamWriteTimeout = 10 * time.Second
)

// filterKeys are the query parameters a subscriber may filter on. Each one
// must equal the same key in the event data.
var filterKeys = []string{"session", "game", "player"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Stream pushes engine events to websocket subscribers. Delivery happens on
// the subscriber's own goroutine; a subscriber that falls behind by more
// than its buffer loses events rather than stalling block production.
type Stream struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	typ     events.EventType
	filter  map[string]string
	ch      chan events.Event
	dropped int
}

// NewStream creates a Stream fed by every event emitter publishes.
func NewStream(emitter *events.Emitter) *Stream {
	s := &Stream{subs: make(map[*subscriber]struct{})}
	emitter.SubscribeAll(s.publish)
	return s
}

func (s *Stream) publish(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if !sub.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}

func (sub *subscriber) matches(ev events.Event) bool {
	if sub.typ != "" && ev.Type != sub.typ {
		return false
	}
	for k, want := range sub.filter {
		if got, _ := ev.Data[k].(string); got != want {
			return false
		}
	}
	return true
}

func (s *Stream) add(sub *subscriber) {
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
}

func (s *Stream) remove(sub *subscriber) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
	return sub.dropped
}

// Subscribers reports how many websocket clients are connected.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// ServeHTTP upgrades the request and streams matching events as JSON
// messages. Query parameters: type, session, game, player.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sub := &subscriber{
		typ:    events.EventType(q.Get("type")),
		filter: make(map[string]string),
		ch:     make(chan events.Event, streamBuffer),
	}
	for _, k := range filterKeys {
		if v := q.Get(k); v != "" {
			sub.filter[k] = v
		}
	}

	// Registered before the handshake completes so nothing emitted after
	// the client sees the upgrade is missed.
	s.add(sub)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.remove(sub)
		log.Warn().Str("component", "rpc").Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		if dropped := s.remove(sub); dropped > 0 {
			log.Warn().Str("component", "rpc").Int("dropped", dropped).Msg("slow websocket subscriber")
		}
	}()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-sub.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Str("component", "rpc").Err(err).Msg("websocket write")
				return
			}
		}
	}
}
