package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusPending    = "pending"
	OrderStatusPreparing  = "preparing"
	OrderStatusReady      = "ready"
	OrderStatusDelivering = "delivering"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// OrderStatuses lists every recognized status, terminal states last.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusDelivering,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// IsValidOrderStatus reports whether s is one of the recognized statuses.
func IsValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady,
		OrderStatusDelivering, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminalOrderStatus reports whether s is completed or cancelled.
// Transitions out of terminal states are not blocked anywhere; the
// machine is permissive and gated by role only.
func IsTerminalOrderStatus(s string) bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// ── Order audit events ──

const (
	EventOrderCreated    = "order_created"
	EventStatusChanged   = "status_changed"
	EventCourierAssigned = "courier_assigned"
)

// ── User roles (CHECK constrained in DB) ──

const (
	UserRoleCustomer = "customer"
	UserRoleOwner    = "owner"
	UserRoleCourier  = "courier"
	UserRoleAdmin    = "admin"
)

func IsValidUserRole(s string) bool {
	switch s {
	case UserRoleCustomer, UserRoleOwner, UserRoleCourier, UserRoleAdmin:
		return true
	}
	return false
}
