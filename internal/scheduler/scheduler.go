// Package scheduler implements the Routine Scheduler (spec §4.G): starting,
// cancelling, and continuing per-agent RoutineTasks, publishing their
// lifecycle events, and reacting to agent connect/disconnect.
//
// It wraps go-co-op/gocron the same way the teacher's scheduler wraps it —
// here not for the cron-scheduled domain work this orchestrator doesn't
// have (routines are started on demand, not on a timetable), but to drive
// a periodic housekeeping sweep: reconciling each turtle's recorded
// connection_status against the gateway's live registry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/denecity/taas/internal/command"
	"github.com/denecity/taas/internal/eventbus"
	"github.com/denecity/taas/internal/gateway"
	"github.com/denecity/taas/internal/routine"
	"github.com/denecity/taas/internal/store"
)

// ErrUnknownRoutine is returned by Execute when no routine is registered
// under the requested name.
var ErrUnknownRoutine = errors.New("scheduler: unknown routine")

// ErrAgentNotConnected is returned by Execute/Continue when the target
// agent has no live Session.
var ErrAgentNotConnected = errors.New("scheduler: agent not connected")

// Assignment is the scheduler's record of the most recent routine run
// requested for an agent (spec's Assignment data model).
type Assignment struct {
	RoutineName string
	Config      map[string]any
	Status      string // running | finished | aborted | failed | disconnected
	Error       string
}

type runningTask struct {
	cancel context.CancelFunc
}

// Scheduler owns the in-memory Assignment/RoutineTask tables and the
// housekeeping gocron job.
type Scheduler struct {
	registry *routine.Registry
	gateway  *gateway.Gateway
	store    *store.Store
	bus      *eventbus.Bus
	logger   *zap.Logger
	cron     gocron.Scheduler

	mu          sync.Mutex
	assignments map[int64]*Assignment
	running     map[int64]*runningTask
}

// New wires the scheduler to its collaborators and registers the
// connect/disconnect hooks that keep connection_status and running tasks
// consistent with the gateway's live state.
func New(registry *routine.Registry, gw *gateway.Gateway, st *store.Store, bus *eventbus.Bus, logger *zap.Logger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create gocron scheduler: %w", err)
	}

	s := &Scheduler{
		registry:    registry,
		gateway:     gw,
		store:       st,
		bus:         bus,
		logger:      logger.Named("scheduler"),
		cron:        cron,
		assignments: make(map[int64]*Assignment),
		running:     make(map[int64]*runningTask),
	}

	gw.OnConnect(s.handleConnect)
	gw.OnDisconnect(s.handleDisconnect)

	return s, nil
}

// Start registers the housekeeping sweep and starts the gocron scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(s.reconcileConnectionStatus, ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register housekeeping job: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop shuts the gocron scheduler down.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

// reconcileConcurrency bounds how many turtle rows the housekeeping sweep
// reconciles at once. The store's calls still share its single SQLite
// connection.
const reconcileConcurrency = 8

func (s *Scheduler) reconcileConnectionStatus(ctx context.Context) {
	connected := make(map[int64]bool)
	for _, id := range s.gateway.ConnectedIDs() {
		connected[id] = true
	}

	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		s.logger.Warn("housekeeping: failed to list turtle ids", zap.Error(err))
		return
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(reconcileConcurrency)

	for _, id := range ids {
		id := id
		group.Go(func() error {
			want := "disconnected"
			if connected[id] {
				want = "connected"
			}
			rec, err := s.store.Get(gctx, id)
			if err != nil || rec.ConnectionStatus == want {
				return nil
			}
			if err := s.store.SetConnectionStatus(gctx, id, want); err != nil {
				s.logger.Warn("housekeeping: failed to reconcile connection status",
					zap.Int64("turtle_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()
}

func (s *Scheduler) handleConnect(session *gateway.Session) {
	ctx := context.Background()
	id := session.ComputerID

	if err := s.store.UpsertSeen(ctx, id); err != nil {
		s.logger.Warn("failed to record upsert_seen", zap.Int64("turtle_id", id), zap.Error(err))
	}
	if err := s.store.SetConnectionStatus(ctx, id, "connected"); err != nil {
		s.logger.Warn("failed to set connection_status", zap.Int64("turtle_id", id), zap.Error(err))
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.KindConnected, TurtleID: &id})

	agent := command.New(id, session, s.store, s.bus, s.logger)
	go func() {
		release, err := session.Acquire(ctx)
		if err != nil {
			return
		}
		defer release()
		command.DetectState(ctx, agent)
	}()
}

func (s *Scheduler) handleDisconnect(turtleID int64) {
	ctx := context.Background()
	if err := s.store.SetConnectionStatus(ctx, turtleID, "disconnected"); err != nil {
		s.logger.Warn("failed to set connection_status", zap.Int64("turtle_id", turtleID), zap.Error(err))
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.KindDisconnected, TurtleID: &turtleID})

	s.mu.Lock()
	if task, ok := s.running[turtleID]; ok {
		task.cancel()
	}
	if a, ok := s.assignments[turtleID]; ok && a.Status == "running" {
		a.Status = "disconnected"
	}
	s.mu.Unlock()
}

// Execute starts routineName on turtleID with the given already-parsed
// config, cancelling any routine currently running for that agent first.
func (s *Scheduler) Execute(turtleID int64, routineName string, config map[string]any) error {
	rt, ok := s.registry.Get(routineName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoutine, routineName)
	}
	session, ok := s.gateway.Get(turtleID)
	if !ok || !session.IsAlive() {
		return ErrAgentNotConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.abortLocked(turtleID)
	s.running[turtleID] = &runningTask{cancel: cancel}
	s.assignments[turtleID] = &Assignment{RoutineName: routineName, Config: config, Status: "running"}
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Type: eventbus.KindRoutineStarted, TurtleID: &turtleID,
		Payload: map[string]any{"routine": routineName}})

	agent := command.New(turtleID, session, s.store, s.bus, s.logger)

	go func() {
		defer cancel()
		release, err := session.Acquire(ctx)
		if err != nil {
			s.finish(turtleID, err)
			return
		}
		defer release()

		err = rt.Run(ctx, agent, config)
		s.finish(turtleID, err)
	}()

	return nil
}

func (s *Scheduler) finish(turtleID int64, runErr error) {
	s.mu.Lock()
	a, ok := s.assignments[turtleID]
	delete(s.running, turtleID)
	s.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case runErr == nil:
		a.Status = "finished"
		s.bus.Publish(eventbus.Event{Type: eventbus.KindRoutineFinished, TurtleID: &turtleID})
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, gateway.ErrDisconnected):
		a.Status = "aborted"
		s.bus.Publish(eventbus.Event{Type: eventbus.KindRoutineAborted, TurtleID: &turtleID})
	default:
		a.Status = "failed"
		a.Error = runErr.Error()
		s.bus.Publish(eventbus.Event{Type: eventbus.KindRoutineFailed, TurtleID: &turtleID,
			Payload: map[string]any{"error": runErr.Error()}})
	}
}

// Abort cancels turtleID's running routine, if any, and reports whether one
// was actually running.
func (s *Scheduler) Abort(turtleID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortLocked(turtleID)
}

func (s *Scheduler) abortLocked(turtleID int64) bool {
	task, ok := s.running[turtleID]
	if !ok {
		return false
	}
	task.cancel()
	delete(s.running, turtleID)
	return true
}

// Continue re-issues the last assignment recorded for turtleID.
func (s *Scheduler) Continue(turtleID int64) error {
	s.mu.Lock()
	a, ok := s.assignments[turtleID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: no prior assignment for turtle %d", turtleID)
	}
	return s.Execute(turtleID, a.RoutineName, a.Config)
}

// AssignmentFor returns a snapshot of the current assignment for turtleID.
func (s *Scheduler) AssignmentFor(turtleID int64) (Assignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[turtleID]
	if !ok {
		return Assignment{}, false
	}
	return *a, true
}

// Registry exposes the underlying routine registry for the REST boundary's
// GET /routines listing.
func (s *Scheduler) Registry() *routine.Registry { return s.registry }

// IsConnected reports whether turtleID currently has a live gateway Session.
func (s *Scheduler) IsConnected(turtleID int64) bool {
	session, ok := s.gateway.Get(turtleID)
	return ok && session.IsAlive()
}
