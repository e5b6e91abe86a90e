package store

// TurtleRecord is the GORM model backing the `turtles` table. It is the
// durable half of an AgentRecord — everything the orchestrator knows about a
// turtle that must survive a process restart.
//
// Coordinates are stored as three independent nullable columns but are
// always written together: a write to coordinates is all-or-nothing, never
// a partial x/y/z update (see Store.Update).
type TurtleRecord struct {
	TurtleID         int64  `gorm:"column:turtle_id;primaryKey"`
	Label            *string
	FuelLevel        *int64 `gorm:"column:fuel_level"`
	Inventory        *string `gorm:"column:inventory"` // JSON-encoded 16 slot map
	X                *int64
	Y                *int64
	Z                *int64
	Heading          *int64
	ConnectionStatus string `gorm:"column:connection_status;not null;default:disconnected"`
	FirstSeenMs      int64  `gorm:"column:first_seen_ms;not null"`
	LastSeenMs       int64  `gorm:"column:last_seen_ms;not null"`
}

// TableName pins the GORM table name explicitly rather than relying on the
// pluralization convention, since "turtles" already reads naturally plural.
func (TurtleRecord) TableName() string { return "turtles" }

// CallAudit is a single append-only row in the write-only command audit
// trail. Nothing in the core ever reads this table back; it exists purely
// as an operational record of what was sent to an agent and what came back.
type CallAudit struct {
	ID         string `gorm:"primaryKey"`
	TurtleID   int64  `gorm:"column:turtle_id;not null;index:idx_call_audits_turtle_ts"`
	TsMs       int64  `gorm:"column:ts_ms;not null;index:idx_call_audits_turtle_ts"`
	CallName   string `gorm:"column:call_name;not null"`
	ArgsJSON   *string
	Ok         *bool
	ResultJSON *string
	ErrorText  *string
	RequestID  *string
	DurationMs *int64
}

func (CallAudit) TableName() string { return "call_audits" }
