// Package command implements the Command Vocabulary (spec §4.E): the set of
// remote-evaluated primitives a connected turtle understands, each coupled
// with the local state delta it causes in the State Store. It is grounded
// directly on original_source/backend/turtle.py's Turtle and
// Turtle._Session classes, translated to Go's explicit-error idiom.
package command

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/denecity/taas/internal/eventbus"
	"github.com/denecity/taas/internal/gateway"
	"github.com/denecity/taas/internal/store"
)

// Agent is the command-vocabulary facade over one connected turtle's
// Session: every exported method here sends one remote call (Refuel follows
// a successful refuel with a fuel-level read) and applies the matching local
// state delta, atomically from the caller's point of view.
type Agent struct {
	ID      int64
	Session *gateway.Session
	Store   *store.Store
	Bus     *eventbus.Bus
	logger  *zap.Logger
}

// New wraps a connected Session as a command-vocabulary Agent.
func New(id int64, session *gateway.Session, st *store.Store, bus *eventbus.Bus, logger *zap.Logger) *Agent {
	return &Agent{
		ID:      id,
		Session: session,
		Store:   st,
		Bus:     bus,
		logger:  logger.Named("command").With(zap.Int64("turtle_id", id)),
	}
}

// send issues one remote call, records it in the audit trail, and returns
// the raw reply. Session acquisition is the caller's responsibility —
// callers that need exclusivity across multiple sends (e.g. a routine) must
// already hold the lease via Session.Acquire.
func (a *Agent) send(ctx context.Context, callName, line string, args any) (gateway.Reply, error) {
	start := time.Now()
	rep, err := a.Session.Send(ctx, line)
	duration := time.Since(start).Milliseconds()

	ok := rep.OK
	entry := store.CallAuditEntry{
		TurtleID:   a.ID,
		CallName:   callName,
		Args:       args,
		Ok:         &ok,
		Result:     rep.Result,
		ErrorText:  rep.Error,
		DurationMs: duration,
	}
	if err != nil {
		entry.ErrorText = err.Error()
	}
	a.Store.LogCall(context.Background(), entry)

	if err != nil {
		return gateway.Reply{}, fmt.Errorf("command: %s: %w", callName, err)
	}
	return rep, nil
}

// sendOK is a convenience for primitives whose only observable outcome is
// success/failure, mirroring Turtle.send_command.
func (a *Agent) sendOK(ctx context.Context, callName, line string) (bool, error) {
	rep, err := a.send(ctx, callName, line, nil)
	if err != nil {
		return false, err
	}
	return rep.OK, nil
}

// eval sends an arbitrary Lua expression and returns its value. Per
// spec.md §4.E this never surfaces an ok=false reply as a Go error — it
// returns the sentinel (false, nil) instead, diverging deliberately from
// original_source's Turtle._Session.eval, which raises on ok=false (see
// DESIGN.md: "eval never throws").
func (a *Agent) eval(ctx context.Context, callName, line string) (any, error) {
	rep, err := a.send(ctx, callName, line, nil)
	if err != nil {
		return nil, err
	}
	if !rep.OK {
		return false, nil
	}
	return rep.Result, nil
}
