// Package hub delivers results that arrive after the triggering message
// was handled: generated lecture notes and connection departures.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"lecturehall/internal/protocol"
	"lecturehall/internal/websocket"
	"lecturehall/pkg/types"
)

// Hub serializes asynchronous room broadcasts on one goroutine
// ARCHITECTURAL DISCOVERY: Notes and departures are posted here instead of
// broadcast from the goroutine that produced them, so a note can never be
// delivered in the middle of a membership change it raced with
type Hub struct {
	noteChannel      chan *types.LectureNote
	departureChannel chan websocket.Departure
	shutdownChannel  chan struct{}

	registry    *websocket.Registry
	roomEmptied []func(types.LectureID)
	logger      *zap.Logger

	running bool
	mu      sync.RWMutex
}

// NewHub creates a stopped hub
func NewHub(registry *websocket.Registry, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		noteChannel:      make(chan *types.LectureNote, 100),
		departureChannel: make(chan websocket.Departure, 100),
		shutdownChannel:  make(chan struct{}),
		registry:         registry,
		logger:           logger.With(zap.String("module", "hub")),
	}
}

// OnRoomEmpty registers a callback run after the last connection leaves a room.
// Must be called before Start.
func (h *Hub) OnRoomEmpty(fn func(types.LectureID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roomEmptied = append(h.roomEmptied, fn)
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.logger.Info("starting hub")
	go h.run(ctx)
	return nil
}

// Stop ends the processing loop; queued events are still delivered
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	h.logger.Info("stopping hub")
	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	return nil
}

// IsRunning reports whether the loop is accepting events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// PublishNote delivers a stored note to whoever is in the room when it is processed
// FUNCTIONAL DISCOVERY: If the hub is stopped or saturated the broadcast runs
// inline, so every published event is delivered exactly once
func (h *Hub) PublishNote(note *types.LectureNote) {
	if note == nil {
		return
	}

	h.mu.RLock()
	if h.running {
		select {
		case h.noteChannel <- note:
			h.mu.RUnlock()
			return
		default:
			h.logger.Warn("note channel full, delivering inline", zap.String("lecture_id", string(note.LectureID)))
		}
	}
	h.mu.RUnlock()

	h.handleNote(note)
}

// PublishDeparture announces that a connection left its room
func (h *Hub) PublishDeparture(dep websocket.Departure) {
	h.mu.RLock()
	if h.running {
		select {
		case h.departureChannel <- dep:
			h.mu.RUnlock()
			return
		default:
			h.logger.Warn("departure channel full, delivering inline", zap.String("lecture_id", string(dep.LectureID)))
		}
	}
	h.mu.RUnlock()

	h.handleDeparture(dep)
}

func (h *Hub) run(ctx context.Context) {
	defer h.logger.Info("hub processing stopped")

	for {
		select {
		case note := <-h.noteChannel:
			h.handleNote(note)

		case dep := <-h.departureChannel:
			h.handleDeparture(dep)

		case <-h.shutdownChannel:
			h.drain()
			return

		case <-ctx.Done():
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			h.drain()
			return
		}
	}
}

// drain delivers everything queued before the loop stopped accepting events
func (h *Hub) drain() {
	for {
		select {
		case note := <-h.noteChannel:
			h.handleNote(note)
		case dep := <-h.departureChannel:
			h.handleDeparture(dep)
		default:
			return
		}
	}
}

func (h *Hub) handleNote(note *types.LectureNote) {
	frame, err := protocol.Encode(protocol.KindLectureNote, protocol.LectureNoteEvent{LectureNote: *note})
	if err != nil {
		h.logger.Error("failed to encode lecture note", zap.Error(err))
		return
	}

	delivered := h.registry.Broadcast(note.LectureID, frame, 0)
	h.logger.Debug("lecture note delivered",
		zap.String("lecture_id", string(note.LectureID)),
		zap.Int("recipients", delivered),
	)
}

func (h *Hub) handleDeparture(dep websocket.Departure) {
	// Remaining is a snapshot from leave time. The user may have rejoined since,
	// and a late peer_left would then contradict their newer peer_joined.
	announced := false
	if !dep.Remaining {
		frame, err := protocol.Encode(protocol.KindPeerLeft, protocol.PeerLeft{PeerID: dep.UserID})
		if err != nil {
			h.logger.Error("failed to encode peer_left", zap.Error(err))
			return
		}
		_, announced = h.registry.BroadcastIfAbsent(dep.LectureID, dep.UserID, frame, dep.ConnID)
	}

	h.logger.Debug("peer departed",
		zap.Uint64("conn_id", uint64(dep.ConnID)),
		zap.String("user_id", string(dep.UserID)),
		zap.String("lecture_id", string(dep.LectureID)),
		zap.Bool("remaining", dep.Remaining),
		zap.Bool("announced", announced),
	)

	if h.registry.RoomSize(dep.LectureID) == 0 {
		h.mu.RLock()
		callbacks := h.roomEmptied
		h.mu.RUnlock()
		for _, fn := range callbacks {
			fn(dep.LectureID)
		}
	}
}
