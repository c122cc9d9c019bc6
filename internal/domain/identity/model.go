// Package identity models the two actor realms behind one interface: a
// GlobalUser acts across tenants (registry administration), a TenantUser
// belongs to a single clinic schema. Both expose the same Projection so
// formatting and log tagging never branch on the variant.
package identity

import (
	"context"
	"strings"

	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
)

type Realm string

const (
	RealmGlobal Realm = "global"
	RealmTenant Realm = "tenant"
)

// User is the common shape over both realms.
type User interface {
	Projection() Projection
}

// Projection is the shared read model. Email is masked here; raw contact
// fields never leave the variant structs.
type Projection struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Realm  Realm  `json:"realm"`
	Tenant string `json:"tenant,omitempty"`
	Role   string `json:"role,omitempty"`
}

// GlobalUser is a cross-tenant operator.
type GlobalUser struct {
	ID    string
	Name  string
	Email string
	Roles []string
}

func (u GlobalUser) Projection() Projection {
	return Projection{
		ID:    u.ID,
		Name:  u.Name,
		Email: MaskEmail(u.Email),
		Realm: RealmGlobal,
		Role:  primaryRole(u.Roles),
	}
}

// TenantUser is clinic staff scoped to one schema.
type TenantUser struct {
	ID     string
	Name   string
	Email  string
	Tenant string
	Role   string
}

func (u TenantUser) Projection() Projection {
	return Projection{
		ID:     u.ID,
		Name:   u.Name,
		Email:  MaskEmail(u.Email),
		Realm:  RealmTenant,
		Tenant: u.Tenant,
		Role:   u.Role,
	}
}

func primaryRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	return roles[0]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}

// FromContext assembles the acting user from the request context: a
// tenant-resolved request yields a TenantUser, anything else (CLI,
// registry administration before tenant resolution) a GlobalUser.
func FromContext(ctx context.Context) User {
	id := auth.UserIDFromContext(ctx)
	if t, ok := db.TenantFromContext(ctx); ok {
		uid := t.UserID
		if uid == "" {
			uid = id
		}
		return TenantUser{ID: uid, Tenant: t.Schema, Role: t.Role}
	}
	return GlobalUser{ID: id, Roles: auth.RolesFromContext(ctx)}
}
