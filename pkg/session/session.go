package session

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// Store wraps a gorilla cookie store bound to one session name.
type Store struct {
	name  string
	store sessions.Store
}

func NewCookieStore(name string, keypairs ...[]byte) *Store {
	store := sessions.NewCookieStore(keypairs...)
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return &Store{name: name, store: store}
}

func (s *Store) Get(r *http.Request) (*sessions.Session, error) {
	return s.store.Get(r, s.name)
}

func (s *Store) Save(r *http.Request, w http.ResponseWriter, a *sessions.Session) error {
	return s.store.Save(r, w, a)
}

// SetValue stores one value in the session and writes the cookie.
func (s *Store) SetValue(r *http.Request, w http.ResponseWriter, key string, value any) error {
	sess, err := s.Get(r)
	if err != nil {
		return err
	}

	sess.Values[key] = value
	return s.Save(r, w, sess)
}

// PopString reads a string value and removes it from the session so it can
// be consumed only once.
func (s *Store) PopString(r *http.Request, w http.ResponseWriter, key string) (string, error) {
	sess, err := s.Get(r)
	if err != nil {
		return "", err
	}

	value, _ := sess.Values[key].(string)
	delete(sess.Values, key)
	if err := s.Save(r, w, sess); err != nil {
		return "", err
	}

	return value, nil
}
