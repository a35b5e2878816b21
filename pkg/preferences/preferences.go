package preferences

import (
	"strings"
	"sync"

	"github.com/latoulicious/Hibiki/pkg/logging"
)

// UserPreference holds per-user settings
type UserPreference struct {
	DefaultVoiceID string
}

// Store keeps user preferences in memory. They are lost on restart.
type Store struct {
	mu     sync.RWMutex
	prefs  map[string]UserPreference
	logger logging.Logger
}

// NewStore creates an empty store
func NewStore(logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Store{
		prefs:  make(map[string]UserPreference),
		logger: logger.With(logging.String("component", "preferences")),
	}
}

// SetDefaultVoice records the voice used by /speak for the user
func (s *Store) SetDefaultVoice(userID, voiceID string) {
	voiceID = strings.TrimSpace(voiceID)

	s.mu.Lock()
	pref := s.prefs[userID]
	pref.DefaultVoiceID = voiceID
	s.prefs[userID] = pref
	s.mu.Unlock()

	s.logger.Info("Set default voice for user",
		logging.String("user_id", userID),
		logging.String("voice_id", voiceID),
	)
}

// DefaultVoice returns the user's default voice and whether one is set
func (s *Store) DefaultVoice(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pref, ok := s.prefs[userID]
	if !ok || pref.DefaultVoiceID == "" {
		return "", false
	}
	return pref.DefaultVoiceID, true
}

// HasDefaultVoice reports whether the user has a default voice
func (s *Store) HasDefaultVoice(userID string) bool {
	_, ok := s.DefaultVoice(userID)
	return ok
}
