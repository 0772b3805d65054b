/*
Package directory manages users and sites: registration, site assignment,
and the company-drift audit.

A user's Company field is denormalized from their assigned site at
assignment time. Sites can later change hands (the owning company on the
site record gets updated), which leaves stale company values on users. The
drift audit surfaces those users so an admin can re-confirm or reassign
them.
*/
package directory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sitewise/attendance-engine/core"
)

// Service is the user/site administration surface.
type Service struct {
	store core.TxStore

	Now func() time.Time
}

func NewService(store core.TxStore) *Service {
	return &Service{store: store, Now: time.Now}
}

// =============================================================================
// USERS
// =============================================================================

// CreateUser registers a user. A generated ID is assigned when the caller
// leaves it empty. When a site is given, the user's company is copied from
// it.
func (s *Service) CreateUser(ctx context.Context, u core.User) (*core.User, error) {
	if u.ID == "" {
		u.ID = core.UserID(uuid.NewString())
	}
	if u.Role == "" {
		u.Role = core.RoleWorker
	}
	u.Active = true
	u.CreatedAt = s.Now()

	if u.SiteID != nil {
		site, err := s.store.GetSite(ctx, *u.SiteID)
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, core.ErrSiteNotFound
		}
		u.Company = site.Company
	}

	if err := s.store.SaveUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id core.UserID) (*core.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, core.ErrUserNotFound
	}
	return u, nil
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.store.ListUsers(ctx)
}

// AssignSite moves a user to a site, refreshing the denormalized company
// from the site record. Both reads and the write share one transaction.
func (s *Service) AssignSite(ctx context.Context, userID core.UserID, siteID core.SiteID) (*core.User, error) {
	var out *core.User
	err := s.store.WithTx(ctx, func(tx core.Store) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return core.ErrUserNotFound
		}
		site, err := tx.GetSite(ctx, siteID)
		if err != nil {
			return err
		}
		if site == nil {
			return core.ErrSiteNotFound
		}

		u.SiteID = &site.ID
		u.Company = site.Company
		if err := tx.SaveUser(ctx, *u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser removes a user together with their attendance records and
// leave requests.
func (s *Service) DeleteUser(ctx context.Context, id core.UserID) error {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return core.ErrUserNotFound
	}
	return s.store.WithTx(ctx, func(tx core.Store) error {
		return tx.DeleteUser(ctx, id)
	})
}

// =============================================================================
// SITES
// =============================================================================

// CreateSite registers a site, generating an ID when absent.
func (s *Service) CreateSite(ctx context.Context, site core.Site) (*core.Site, error) {
	if site.ID == "" {
		site.ID = core.SiteID(uuid.NewString())
	}
	site.Active = true
	site.CreatedAt = s.Now()

	if err := s.store.SaveSite(ctx, site); err != nil {
		return nil, err
	}
	return &site, nil
}

// GetSite fetches one site.
func (s *Service) GetSite(ctx context.Context, id core.SiteID) (*core.Site, error) {
	site, err := s.store.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, core.ErrSiteNotFound
	}
	return site, nil
}

// =============================================================================
// AUDIT
// =============================================================================

// CompanyDrift lists users whose stored company no longer matches the
// company of their assigned site.
func (s *Service) CompanyDrift(ctx context.Context) ([]core.User, error) {
	return s.store.ListCompanyDrift(ctx)
}
