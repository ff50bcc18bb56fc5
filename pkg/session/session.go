// Package session carries the short-lived checksum-candidate hint
// between the PUT layer and PUT checksum requests, plus the
// repository name used by the upload state machine's repository gate.
// It is backed by signed cookies via gorilla/sessions, the same
// approach the corpus's service manifests reach for (see DESIGN.md).
package session

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	cookieName    = "layersvc-session"
	checksumKey   = "checksum"
	repositoryKey = "repository"
)

// Store wraps a gorilla/sessions.Store with the two typed fields the
// upload state machine reads and writes.
type Store struct {
	backing sessions.Store
}

func New(hashKey, blockKey []byte) *Store {
	if len(blockKey) == 0 {
		return &Store{backing: sessions.NewCookieStore(hashKey)}
	}
	return &Store{backing: sessions.NewCookieStore(hashKey, blockKey)}
}

// Session is the per-request handle, mirroring flask.session's
// get/set-and-save usage.
type Session struct {
	store *Store
	sess  *sessions.Session
	w     http.ResponseWriter
}

func (s *Store) Load(r *http.Request, w http.ResponseWriter) (*Session, error) {
	sess, err := s.backing.Get(r, cookieName)
	if err != nil {
		// A corrupt or expired cookie is treated as an empty session
		// rather than a hard failure, matching gorilla/sessions'
		// documented recommendation to continue with sess's newly
		// allocated zero value.
		return &Session{store: s, sess: sess, w: w}, nil
	}
	return &Session{store: s, sess: sess, w: w}, nil
}

// ChecksumCandidates returns the digests computed during PUT layer, if
// any were stashed in this session.
func (s *Session) ChecksumCandidates() ([]string, bool) {
	v, ok := s.sess.Values[checksumKey]
	if !ok {
		return nil, false
	}
	candidates, ok := v.([]string)
	return candidates, ok
}

// SetChecksumCandidates stashes the computed digests for the
// subsequent PUT checksum request to compare against.
func (s *Session) SetChecksumCandidates(candidates []string) {
	s.sess.Values[checksumKey] = candidates
}

// Repository returns the namespace/name pair carried in session by the
// auth layer, or ok=false when auth is disabled (standalone/privileged
// mode) for the upload state machine's repository gate.
func (s *Session) Repository() (namespace, name string, ok bool) {
	v, present := s.sess.Values[repositoryKey]
	if !present {
		return "", "", false
	}
	full, ok := v.(string)
	if !ok || full == "" {
		return "", "", false
	}
	for i := 0; i < len(full); i++ {
		if full[i] == '/' {
			return full[:i], full[i+1:], true
		}
	}
	return "", full, true
}

// Save persists any changes made to the session back onto the response.
// Cacheable GET handlers (set_cache_headers in the original) simply
// skip calling Save so no Set-Cookie header rides along with a
// cacheable response.
func (s *Session) Save(r *http.Request) error {
	return s.sess.Save(r, s.w)
}
