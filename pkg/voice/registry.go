package voice

import (
	"sort"
	"sync"
)

// GuildSession is the bot's voice presence in one guild. Its connection and
// player are created together and torn down together.
type GuildSession struct {
	guildID string
	conn    Connection
	player  *Player

	mu      sync.Mutex
	playing bool

	stop     chan struct{}
	stopOnce sync.Once
}

func newGuildSession(guildID string, conn Connection, player *Player) *GuildSession {
	return &GuildSession{
		guildID: guildID,
		conn:    conn,
		player:  player,
		stop:    make(chan struct{}),
	}
}

func (s *GuildSession) GuildID() string        { return s.guildID }
func (s *GuildSession) Connection() Connection { return s.conn }
func (s *GuildSession) Player() *Player        { return s.player }

// IsPlaying reports whether a play request is in flight
func (s *GuildSession) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *GuildSession) setPlaying(playing bool) {
	s.mu.Lock()
	s.playing = playing
	s.mu.Unlock()
}

// close stops the session's watchers; it is safe to call more than once
func (s *GuildSession) close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Registry maps guild ids to their active session
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*GuildSession
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*GuildSession)}
}

// Get returns the session for the guild, if any
func (r *Registry) Get(guildID string) (*GuildSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Put stores the session, replacing any existing one
func (r *Registry) Put(guildID string, s *GuildSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[guildID] = s
}

// Remove deletes the session for the guild and returns it
func (r *Registry) Remove(guildID string) (*GuildSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[guildID]
	if ok {
		delete(r.sessions, guildID)
	}
	return s, ok
}

// CompareAndRemove deletes the guild's session only if it is s
func (r *Registry) CompareAndRemove(guildID string, s *GuildSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[guildID]; ok && cur == s {
		delete(r.sessions, guildID)
		return true
	}
	return false
}

// Contains reports whether the guild has a session
func (r *Registry) Contains(guildID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[guildID]
	return ok
}

// Len returns the number of active sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// GuildIDs returns the ids of all guilds with a session, sorted
func (r *Registry) GuildIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
