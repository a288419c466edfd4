package hub

import (
	"encoding/json"

	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/pkg/log"
)

// Broadcaster fans an envelope out to every participant of a room,
// including the sender's own channel. Delivery is fire and forget per
// channel: one participant failing to accept the write never blocks the
// others and never reaches the sending session.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast delivers the envelope to every channel registered for the room
// at the instant of the call.
func (b *Broadcaster) Broadcast(roomID uint, env *domain.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Uint(log.FieldRoomID, roomID).Msg("failed to marshal envelope")
		return
	}

	for _, s := range b.registry.Participants(roomID) {
		if err := s.Send(data); err != nil {
			l := log.L()
			l.Warn().Err(err).Uint(log.FieldRoomID, roomID).Msg("dropping message for unreachable participant")
		}
	}
}
