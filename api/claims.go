// Package api defines the claim data model shared between the engine,
// the remote client, and the stub backend.
package api

import "time"

// Status is the processing lifecycle of a claim.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewing Status = "reviewing"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPaid      Status = "paid"
)

// StatusAll is the filter sentinel meaning "no status restriction".
const StatusAll Status = "all"

// Statuses lists every real status, in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusReviewing, StatusApproved, StatusRejected, StatusPaid}
}

// ClaimType categorizes what went wrong with the shipment.
type ClaimType string

const (
	TypeLost     ClaimType = "lost"
	TypeDamaged  ClaimType = "damaged"
	TypeShortage ClaimType = "shortage"
	TypeDelay    ClaimType = "delay"
	TypeOther    ClaimType = "other"
)

// ClaimRecord is one claim entity as stored by the backend.
//
// OrderNo is the unique business key among non-deleted records; the backend
// enforces uniqueness, the engine only pre-checks its local snapshot as a
// fast-fail courtesy before submitting.
//
// UpdatedAt is the optimistic-concurrency stamp: the conflict-aware writer
// compares it (and the conflict-sensitive fields) against an edit-open
// snapshot before applying an update.
type ClaimRecord struct {
	ID string `json:"id"`

	// Customer
	CustomerName    string `json:"customer_name"`
	CustomerContact string `json:"customer_contact"`

	// Logistics
	OrderNo    string    `json:"order_no"`
	TrackingNo string    `json:"tracking_no"`
	SKU        string    `json:"sku"`
	Warehouse  string    `json:"warehouse"`
	ShipDate   string    `json:"ship_date"` // date only, YYYY-MM-DD

	// Claim
	Type          ClaimType `json:"claim_type"`
	Description   string    `json:"description"`
	DeclaredValue float64   `json:"declared_value"`
	Quantity      int       `json:"quantity"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Liability     string    `json:"liability"`
	Ratio         float64   `json:"ratio"` // claim ratio, 0..1

	// Lifecycle
	SubmittedAt time.Time `json:"submitted_at"`
	Status      Status    `json:"status"`
	Remarks     string    `json:"remarks"`

	Attachments []string `json:"attachments,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// EventType tags a realtime change notification.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is one realtime change pushed by the backend for the claims
// table. Old is nil for inserts, New is nil for deletes.
type ChangeEvent struct {
	Type EventType    `json:"type"`
	Old  *ClaimRecord `json:"old,omitempty"`
	New  *ClaimRecord `json:"new,omitempty"`
}

// Role is a back-office user role.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Permissions describes what a session may do. Checks are local: a denied
// action never reaches the network.
type Permissions struct {
	Role Role
}

// CanEdit reports whether the role may modify claims.
func (p Permissions) CanEdit() bool {
	return p.Role == RoleOperator || p.Role == RoleAdmin
}

// CanDelete reports whether the role may delete claims.
func (p Permissions) CanDelete() bool {
	return p.Role == RoleAdmin
}

// CanExport reports whether the role may export the filtered row set.
func (p Permissions) CanExport() bool {
	return p.Role != ""
}
