// Package tenantadmin manages the shared tenant registry in the public
// schema: registering a clinic provisions its schema, revoking one cuts
// it off from the allow-list.
package tenantadmin

import "time"

// TenantStatus gates the allow-list: only active tenants may be served.
type TenantStatus string

const (
	StatusActive  TenantStatus = "active"
	StatusRevoked TenantStatus = "revoked"
)

// Tenant is one registry row. Slug doubles as the Postgres schema name
// and must already be in normalized form when persisted.
type Tenant struct {
	Slug      string       `json:"slug"`
	Name      string       `json:"name"`
	Status    TenantStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
