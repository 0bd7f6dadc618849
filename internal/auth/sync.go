// ABOUTME: Fire-and-forget reconciliation of signed-token identities into the
// ABOUTME: local users table so keys and agents have a user row to reference

package auth

import (
	"context"
	"time"

	"github.com/carpdev/carp-registry/internal/store"
)

// syncIdentity upserts the verified signed-token identity into the local
// users table. Detached from the request: authentication already succeeded,
// and a sync failure must not turn a valid token into a 500. Offline mode
// has no store to sync into.
func (a *Authenticator) syncIdentity(id *Identity) {
	if a.cfg.Offline() || a.store == nil {
		return
	}

	u := &store.User{
		ID:     id.UserID.String(),
		Email:  id.Email,
		Handle: id.Handle,
	}
	a.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.store.UpsertUser(ctx, u); err != nil {
			a.logger.Warn("identity sync failed", "user_id", u.ID, "error", err)
		}
	})
}
