package api

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/samcharles93/pocketlm/internal/generation"
)

const (
	DefaultSessionTTL = 10 * time.Minute
	sessionCapacity   = 1024
)

type sessionRecord struct {
	session   *generation.Session
	createdAt time.Time
	// finishedAt is written once by the store's watcher before the record
	// is re-inserted with a TTL.
	finishedAt time.Time
}

// SessionStore keeps running sessions addressable for cancel and lookup.
// Running sessions never expire; finished ones are retained for the TTL.
type SessionStore struct {
	cache *ttlcache.Cache[string, *sessionRecord]
	clock func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	c := ttlcache.New[string, *sessionRecord](
		ttlcache.WithTTL[string, *sessionRecord](ttl),
		ttlcache.WithCapacity[string, *sessionRecord](sessionCapacity),
		ttlcache.WithDisableTouchOnHit[string, *sessionRecord](),
	)
	go c.Start()
	return &SessionStore{cache: c, clock: time.Now}
}

// Track records a session and moves it to TTL retention once it finishes.
func (s *SessionStore) Track(sess *generation.Session) {
	rec := &sessionRecord{session: sess, createdAt: s.clock()}
	s.cache.Set(sess.ID(), rec, ttlcache.NoTTL)
	go func() {
		<-sess.Done()
		done := &sessionRecord{session: sess, createdAt: rec.createdAt, finishedAt: s.clock()}
		if s.cache.Has(sess.ID()) {
			s.cache.Set(sess.ID(), done, ttlcache.DefaultTTL)
		}
	}()
}

func (s *SessionStore) Get(id string) (*sessionRecord, bool) {
	item := s.cache.Get(id)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *SessionStore) Len() int { return s.cache.Len() }

// Close stops the expiration loop.
func (s *SessionStore) Close() {
	s.cache.Stop()
}

// snapshot renders the record's current state.
func (r *sessionRecord) snapshot() SessionResponse {
	resp := SessionResponse{
		ID:        r.session.ID(),
		Object:    "session",
		Status:    StatusInProgress,
		CreatedAt: r.createdAt.Unix(),
	}
	res, done := r.session.Result()
	if !done {
		resp.Text = r.session.Text()
		return resp
	}
	fillResult(&resp, res)
	if !r.finishedAt.IsZero() {
		ts := r.finishedAt.Unix()
		resp.CompletedAt = &ts
	}
	return resp
}

func fillResult(resp *SessionResponse, res generation.Result) {
	resp.Status = outcomeStatus(res.Outcome)
	resp.Text = res.Text
	resp.Usage = &Usage{
		OutputTokens:    res.Stats.TokensGenerated,
		DurationMS:      res.Stats.Duration.Milliseconds(),
		TTFTMS:          res.Stats.TTFT.Milliseconds(),
		TokensPerSecond: res.Stats.TPS,
	}
	if res.Err != nil {
		resp.Error = &ErrorBody{
			Message: res.Err.Error(),
			Type:    "server_error",
			Code:    errorCode(res.Err),
		}
	}
}
