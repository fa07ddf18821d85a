package session

import (
	"crypto/sha1"
	"crypto/subtle"
	"sync"
	"sync/atomic"
)

// Authenticator is the authentication capability hook the session
// delegates to during AUTH_WAIT. It is deliberately simplified: unknown
// usernames fail, a configured empty password accepts unconditionally, and
// a non-empty password requires a real mysql_native_password-shaped
// challenge-response match — callers MUST NOT accept mismatched
// credentials just because a password happens to be configured.
type Authenticator interface {
	Authenticate(username string, authSeed, authData []byte) (ok bool, err error)
}

// usersSnapshot is an immutable point-in-time view of the configured users
// registry, swapped atomically on reload.
type usersSnapshot struct {
	passwords map[string]string
}

// UsersRegistry is the default Authenticator, backed by a plain username
// to cleartext-password map that can be hot-reloaded without locking the
// authentication hot path: an atomic.Value snapshot swap gives lock-free
// reads under rare writes.
type UsersRegistry struct {
	snap atomic.Value // holds *usersSnapshot
	wmu  sync.Mutex
}

// NewUsersRegistry creates a registry seeded with the given username to
// password map (an empty password means "accept unconditionally").
func NewUsersRegistry(passwords map[string]string) *UsersRegistry {
	snap := &usersSnapshot{passwords: make(map[string]string, len(passwords))}
	for u, p := range passwords {
		snap.passwords[u] = p
	}
	r := &UsersRegistry{}
	r.snap.Store(snap)
	return r
}

func (r *UsersRegistry) load() *usersSnapshot {
	return r.snap.Load().(*usersSnapshot)
}

// Reload atomically replaces the entire users table, e.g. on config
// hot-reload.
func (r *UsersRegistry) Reload(passwords map[string]string) {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	snap := &usersSnapshot{passwords: make(map[string]string, len(passwords))}
	for u, p := range passwords {
		snap.passwords[u] = p
	}
	r.snap.Store(snap)
}

// Authenticate implements Authenticator.
func (r *UsersRegistry) Authenticate(username string, authSeed, authData []byte) (bool, error) {
	password, ok := r.load().passwords[username]
	if !ok {
		return false, nil
	}
	if password == "" {
		return true, nil
	}
	return subtle.ConstantTimeCompare(scrambleNativePassword(password, authSeed), authData) == 1, nil
}

// scrambleNativePassword computes the mysql_native_password challenge
// response: SHA1(password) XOR SHA1(seed || SHA1(SHA1(password))).
func scrambleNativePassword(password string, seed []byte) []byte {
	stage1 := sha1.Sum([]byte(password))
	stage2 := sha1.Sum(stage1[:])

	h := sha1.New()
	h.Write(seed)
	h.Write(stage2[:])
	stage3 := h.Sum(nil)

	scramble := make([]byte, len(stage1))
	for i := range scramble {
		scramble[i] = stage1[i] ^ stage3[i]
	}
	return scramble
}
