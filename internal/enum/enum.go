package enum

// ── Group A: State machines (persisted inside order documents) ──

const (
	ItemStatusPending   = "pending"
	ItemStatusQueue     = "queue"
	ItemStatusCooking   = "cooking"
	ItemStatusPreparing = "preparing" // legacy alias of cooking
	ItemStatusReady     = "ready"
	ItemStatusServed    = "served"
	ItemStatusCompleted = "completed"
	ItemStatusCancelled = "cancelled"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusQueue     = "queue"
	OrderStatusCooking   = "cooking"
	OrderStatusReady     = "ready"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentStatusUnpaid              = "unpaid"
	PaymentStatusPendingVerification = "pending_verification"
	PaymentStatusPaid                = "paid"
)

const (
	TableStatusFree     = "free"
	TableStatusOccupied = "occupied"
)

// ── Group B: Surfaces and stations ──

const (
	StationKitchen = "kitchen"
	StationBar     = "bar"
)

const (
	RoleCustomer = "CUSTOMER"
	RoleKitchen  = "KITCHEN"
	RoleBar      = "BAR"
	RoleAdmin    = "ADMIN"
)

const (
	ScopeTable = "table"
	ScopeGroup = "group"
)

// ── Group C: Changefeed event types ──

const (
	EventOrderPlaced     = "order.placed"
	EventOrderUpdated    = "order.updated"
	EventOrdersArchived  = "orders.archived"
	EventTableUpdated    = "table.updated"
	EventVatUpdated      = "vat.updated"
	EventSnapshotChanged = "snapshot.changed"
)

// ── Group D: Store drivers ──

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)
