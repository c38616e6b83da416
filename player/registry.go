package player

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Registry owns a set of players for a host that runs several at once.
// IDs are generated on Add and appear in every log line for correlation.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	players map[string]*Player
	closed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		log:     logger.With("component", "registry"),
		players: make(map[string]*Player),
	}
}

// Add registers p and returns its generated ID.
func (r *Registry) Add(p *Player) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", errors.New("player: registry closed")
	}
	id := uuid.NewString()
	r.players[id] = p
	r.log.Info("player registered", "player_id", id, "count", len(r.players))
	return id, nil
}

// Get returns the player with the given ID.
func (r *Registry) Get(id string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	return p, ok
}

// Remove closes and unregisters the player with the given ID.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	p, ok := r.players[id]
	delete(r.players, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("player: unknown id %s", id)
	}
	r.log.Info("player removed", "player_id", id)
	return p.Close()
}

// Len returns the number of registered players.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// IDs returns the registered player IDs in no particular order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	return ids
}

// Close closes every registered player and rejects further Adds. The
// first close error is returned; teardown continues regardless.
func (r *Registry) Close() error {
	r.mu.Lock()
	players := r.players
	r.players = make(map[string]*Player)
	r.closed = true
	r.mu.Unlock()

	var first error
	for id, p := range players {
		if err := p.Close(); err != nil && first == nil {
			first = fmt.Errorf("close player %s: %w", id, err)
		}
	}
	r.log.Info("registry closed", "players", len(players))
	return first
}
