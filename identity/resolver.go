/*
Package identity resolves which account a scan should be booked against.

Workers sometimes carry accounts on more than one site (subcontractors
rotating between projects get re-registered per site). A QR scan carries
the site of the code, while the session carries the user who scanned it.
When the two disagree, the resolver looks for an account with the same
name and phone number on the claimed site and silently switches to it, so
the attendance lands on the site where the person actually stood.

RESOLUTION ORDER:
  1. Session user's assigned site matches the claimed site: use as-is.
  2. An active account with the same name (and phone, when both sides
     have one) exists on the claimed site: switch to that account.
  3. Otherwise the scan is rejected with a site mismatch.
*/
package identity

import (
	"context"

	"github.com/sitewise/attendance-engine/core"
)

// EffectiveIdentity is the outcome of a resolution. When Switched is true,
// User is the alternate account, not the session's.
type EffectiveIdentity struct {
	User     *core.User
	Site     *core.Site
	Switched bool
}

// Resolver maps a (session user, claimed site) pair to the account that
// should receive the attendance write.
type Resolver struct {
	store core.Store
}

func NewResolver(store core.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the effective identity for a scan at claimedSiteID.
// Returns ErrUserNotFound or ErrSiteNotFound for missing entities and
// *SiteMismatchError when no account fits the claimed site.
func (r *Resolver) Resolve(ctx context.Context, sessionUserID core.UserID, claimedSiteID core.SiteID) (*EffectiveIdentity, error) {
	user, err := r.store.GetUser(ctx, sessionUserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, core.ErrUserNotFound
	}

	site, err := r.store.GetSite(ctx, claimedSiteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, core.ErrSiteNotFound
	}

	if user.SiteID != nil && *user.SiteID == claimedSiteID {
		return &EffectiveIdentity{User: user, Site: site}, nil
	}

	alternate, err := r.store.FindUserByNameAndSite(ctx, user.Name, user.Phone, claimedSiteID)
	if err != nil {
		return nil, err
	}
	if alternate != nil {
		return &EffectiveIdentity{User: alternate, Site: site, Switched: true}, nil
	}

	return nil, &core.SiteMismatchError{
		UserID:        user.ID,
		UserSiteID:    user.SiteID,
		ClaimedSiteID: claimedSiteID,
	}
}
