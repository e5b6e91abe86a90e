package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// changeDeadline bounds how long the store will wait for a single change
// subscriber before giving up on that delivery. Matches the ~200ms
// subscriber deadline used by the event bus.
const changeDeadline = 200 * time.Millisecond

// Coords is a turtle's last-known position. Writes to coordinates are
// all-or-nothing — the triple is always replaced together, never patched
// field by field.
type Coords struct {
	X, Y, Z int64
}

// InventorySlot is the normalized shape of one of a turtle's 16 inventory
// slots, as produced by the Command Vocabulary's inventory normalization.
type InventorySlot struct {
	Slot        int    `json:"slot"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Count       int    `json:"count"`
	COres       bool   `json:"c:ores"`
	CGems       bool   `json:"c:gems"`
	CStones     bool   `json:"c:stones"`
	CChests     bool   `json:"c:chests"`
	BuildingBlk bool   `json:"minecraft:building_blocks"`
}

// AgentRecord is the in-memory projection of a turtle's durable state,
// mirroring spec's AgentRecord data model: identity, liveness, and the
// firmware-observed facts (fuel, inventory, position, heading).
type AgentRecord struct {
	ID               int64
	Label            string
	FuelLevel        *int64
	Inventory        map[int]InventorySlot
	Coords           *Coords
	Heading          *int64
	ConnectionStatus string
	FirstSeenMs      int64
	LastSeenMs       int64
}

// Patch describes a field-wise update to an AgentRecord. Nil fields are left
// untouched (COALESCE semantics) — only non-nil fields overwrite the
// persisted value. Coords is the one exception to field-wise: when non-nil
// it replaces x, y, and z together.
type Patch struct {
	FuelLevel        *int64
	Inventory        map[int]InventorySlot
	Coords           *Coords
	Heading          *int64
	Label            *string
	ConnectionStatus *string
}

// CallAuditEntry is a single row appended to the write-only audit trail.
type CallAuditEntry struct {
	TurtleID   int64
	CallName   string
	Args       any
	Ok         *bool
	Result     any
	ErrorText  string
	RequestID  string
	DurationMs int64
}

// Store is the State Store component (spec §4.A): the single authority on
// durable agent facts, backed by SQLite through GORM. It also fans out a
// best-effort change notification after every successful mutation.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[int]func(turtleID int64)
	next int
}

// New wraps an already-opened *gorm.DB (see Open) as a Store.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.Named("store"),
		subs:   make(map[int]func(int64)),
	}
}

// OnChange registers a callback invoked after every successful mutation,
// named with the affected turtle ID. The returned func unsubscribes.
// Delivery is fire-and-forget and bounded by changeDeadline — a slow or
// blocking subscriber never holds up the writer.
func (s *Store) OnChange(fn func(turtleID int64)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(turtleID int64) {
	s.mu.RLock()
	fns := make([]func(int64), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn := fn
		go func() {
			done := make(chan struct{})
			go func() {
				defer close(done)
				fn(turtleID)
			}()
			select {
			case <-done:
			case <-time.After(changeDeadline):
				s.logger.Warn("change subscriber did not complete within deadline",
					zap.Int64("turtle_id", turtleID))
			}
		}()
	}
}

// UpsertSeen marks a turtle as seen right now, creating its row on first
// contact and bumping last_seen_ms on every subsequent call.
func (s *Store) UpsertSeen(ctx context.Context, turtleID int64) error {
	now := nowMs()

	var rec TurtleRecord
	err := s.db.WithContext(ctx).First(&rec, "turtle_id = ?", turtleID).Error
	switch {
	case err == nil:
		if e := s.db.WithContext(ctx).Model(&TurtleRecord{}).
			Where("turtle_id = ?", turtleID).
			Update("last_seen_ms", now).Error; e != nil {
			return fmt.Errorf("store: upsert_seen update: %w", e)
		}
	case err == gorm.ErrRecordNotFound:
		rec = TurtleRecord{
			TurtleID:         turtleID,
			ConnectionStatus: "disconnected",
			FirstSeenMs:      now,
			LastSeenMs:       now,
		}
		if e := s.db.WithContext(ctx).Create(&rec).Error; e != nil {
			return fmt.Errorf("store: upsert_seen create: %w", e)
		}
	default:
		return fmt.Errorf("store: upsert_seen lookup: %w", err)
	}

	s.notify(turtleID)
	return nil
}

// Get returns the current snapshot of a turtle's state. Unlike most
// repository Get methods this never returns ErrNotFound for a missing row —
// it returns a default "never seen" snapshot instead, matching the
// permissive read semantics the state store has always had.
func (s *Store) Get(ctx context.Context, turtleID int64) (*AgentRecord, error) {
	var rec TurtleRecord
	err := s.db.WithContext(ctx).First(&rec, "turtle_id = ?", turtleID).Error
	if err == gorm.ErrRecordNotFound {
		return &AgentRecord{ID: turtleID, ConnectionStatus: "disconnected"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return recordToAgent(&rec)
}

// ListIDs returns every turtle ID ever seen, ascending.
func (s *Store) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&TurtleRecord{}).
		Order("turtle_id asc").Pluck("turtle_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("store: list_ids: %w", err)
	}
	return ids, nil
}

// Update applies a field-wise patch to a turtle's row, creating the row if
// it doesn't exist yet. Nil fields in the patch are left untouched.
func (s *Store) Update(ctx context.Context, turtleID int64, patch Patch) error {
	var invJSON *string
	if patch.Inventory != nil {
		b, err := json.Marshal(patch.Inventory)
		if err != nil {
			return fmt.Errorf("store: marshal inventory: %w", err)
		}
		s := string(b)
		invJSON = &s
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec TurtleRecord
		err := tx.First(&rec, "turtle_id = ?", turtleID).Error
		now := nowMs()

		if err == gorm.ErrRecordNotFound {
			rec = TurtleRecord{
				TurtleID:         turtleID,
				ConnectionStatus: "disconnected",
				FirstSeenMs:      now,
				LastSeenMs:       now,
			}
			applyPatch(&rec, patch, invJSON)
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}

		applyPatch(&rec, patch, invJSON)
		rec.LastSeenMs = now
		return tx.Save(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}

	s.notify(turtleID)
	return nil
}

func applyPatch(rec *TurtleRecord, patch Patch, invJSON *string) {
	if patch.FuelLevel != nil {
		rec.FuelLevel = patch.FuelLevel
	}
	if invJSON != nil {
		rec.Inventory = invJSON
	}
	if patch.Coords != nil {
		x, y, z := patch.Coords.X, patch.Coords.Y, patch.Coords.Z
		rec.X, rec.Y, rec.Z = &x, &y, &z
	}
	if patch.Heading != nil {
		rec.Heading = patch.Heading
	}
	if patch.Label != nil {
		rec.Label = patch.Label
	}
	if patch.ConnectionStatus != nil {
		rec.ConnectionStatus = *patch.ConnectionStatus
	}
}

// SetLabel updates only a turtle's human-assigned label.
func (s *Store) SetLabel(ctx context.Context, turtleID int64, label string) error {
	return s.Update(ctx, turtleID, Patch{Label: &label})
}

// SetConnectionStatus updates only a turtle's connection status
// ("connected"/"disconnected").
func (s *Store) SetConnectionStatus(ctx context.Context, turtleID int64, status string) error {
	return s.Update(ctx, turtleID, Patch{ConnectionStatus: &status})
}

// LogCall appends one row to the audit trail. Audit failures are logged but
// never surfaced to the caller — the audit trail is diagnostic, not
// authoritative, and must never break command execution.
func (s *Store) LogCall(ctx context.Context, entry CallAuditEntry) {
	row := CallAudit{
		ID:         uuid.NewString(),
		TurtleID:   entry.TurtleID,
		TsMs:       nowMs(),
		CallName:   entry.CallName,
		Ok:         entry.Ok,
		ErrorText:  strPtrOrNil(entry.ErrorText),
		RequestID:  strPtrOrNil(entry.RequestID),
		DurationMs: &entry.DurationMs,
	}
	if entry.Args != nil {
		if b, err := json.Marshal(entry.Args); err == nil {
			s := string(b)
			row.ArgsJSON = &s
		}
	}
	if entry.Result != nil {
		if b, err := json.Marshal(entry.Result); err == nil {
			s := string(b)
			row.ResultJSON = &s
		}
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logger.Warn("failed to persist call audit entry",
			zap.Int64("turtle_id", entry.TurtleID),
			zap.String("call_name", entry.CallName),
			zap.Error(err))
	}
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func recordToAgent(rec *TurtleRecord) (*AgentRecord, error) {
	a := &AgentRecord{
		ID:               rec.TurtleID,
		FuelLevel:        rec.FuelLevel,
		Heading:          rec.Heading,
		ConnectionStatus: rec.ConnectionStatus,
		FirstSeenMs:      rec.FirstSeenMs,
		LastSeenMs:       rec.LastSeenMs,
	}
	if rec.Label != nil {
		a.Label = *rec.Label
	}
	if rec.X != nil && rec.Y != nil && rec.Z != nil {
		a.Coords = &Coords{X: *rec.X, Y: *rec.Y, Z: *rec.Z}
	}
	if rec.Inventory != nil {
		var inv map[int]InventorySlot
		if err := json.Unmarshal([]byte(*rec.Inventory), &inv); err != nil {
			return nil, fmt.Errorf("store: decode inventory: %w", err)
		}
		a.Inventory = inv
	}
	return a, nil
}
