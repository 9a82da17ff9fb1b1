// Package rfcreds resolves effective SSH credentials for a router: a
// per-router override wins outright, otherwise the operator-configured
// global credentials apply. Shared by the scan engine and the rollout
// engine so the precedence rule lives in exactly one place.
package rfcreds

import "github.com/iotstackcloud/teltonikaupdater/internal/store/model"

// GlobalCredentialsSource is satisfied by *store.Store.
type GlobalCredentialsSource interface {
	GetGlobalCredentials() (username, password string, err error)
}

// Resolve returns the effective username/password for r, or ok=false if
// neither a per-router override nor usable global credentials exist.
func Resolve(src GlobalCredentialsSource, r model.Router) (user, password string, ok bool) {
	if r.Username != nil && r.Password != nil && *r.Username != "" && *r.Password != "" {
		return *r.Username, *r.Password, true
	}
	globalUser, globalPass, err := src.GetGlobalCredentials()
	if err != nil || globalUser == "" || globalPass == "" {
		return "", "", false
	}
	return globalUser, globalPass, true
}
