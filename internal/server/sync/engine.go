package sync

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/pkg/api"
)

// Fanout delivers a poke out-of-band to a client that is not reachable on
// a live connection. Delivery is best-effort; failures are non-fatal.
type Fanout interface {
	Publish(ctx context.Context, clientID string, poke *api.Poke) error
}

// Config tunes the engine
type Config struct {
	// LoopInterval throttles back-to-back steps
	LoopInterval time.Duration
	// StepTimeout bounds one global step, transactions included
	StepTimeout time.Duration
	// Fanout, if set, receives pokes for clients without a live socket
	Fanout Fanout
}

const (
	defaultLoopInterval = 50 * time.Millisecond
	defaultStepTimeout  = 30 * time.Second
)

// Engine drives the whole synchronization cycle: it owns the debounced
// loop, drains pending mutations room by room inside store transactions,
// and dispatches the resulting pokes.
type Engine struct {
	store       storage.Store
	registry    *Registry
	mutators    Mutators
	fanout      Fanout
	logger      *slog.Logger
	loop        *Loop
	stepTimeout time.Duration
}

// NewEngine creates an engine over the given store and client registry
func NewEngine(store storage.Store, registry *Registry, mutators Mutators, logger *slog.Logger, cfg Config) *Engine {
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = defaultLoopInterval
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}

	e := &Engine{
		store:       store,
		registry:    registry,
		mutators:    mutators,
		fanout:      cfg.Fanout,
		logger:      logger,
		stepTimeout: cfg.StepTimeout,
	}
	e.loop = NewLoop(e.step, time.Now, time.Sleep, cfg.LoopInterval)
	return e
}

// Registry returns the live client registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Signal asks the loop for a synchronization step. It never blocks;
// requests arriving while a step is in flight coalesce into at most one
// more step.
func (e *Engine) Signal() {
	e.loop.Run()
}

func (e *Engine) step() {
	ctx, cancel := context.WithTimeout(context.Background(), e.stepTimeout)
	defer cancel()
	e.Step(ctx)
}

// Step performs one global synchronization step: it gathers all rooms
// with pending mutations and steps each room in its own transaction. A
// failed room is logged and abandoned for this step (its mutations stay
// queued); other rooms are unaffected.
func (e *Engine) Step(ctx context.Context) {
	byRoom := e.registry.PendingByRoom()
	if len(byRoom) == 0 {
		return
	}

	stepsTotal.Inc()
	start := time.Now()

	roomIDs := make([]string, 0, len(byRoom))
	for roomID := range byRoom {
		roomIDs = append(roomIDs, roomID)
	}
	sort.Strings(roomIDs)

	for _, roomID := range roomIDs {
		mutations := byRoom[roomID]
		connected := e.registry.RoomClientIDs(roomID)

		var pokes []ClientPoke
		err := e.store.WithTx(ctx, func(tx storage.RoomStorage) error {
			var err error
			pokes, err = stepRoom(ctx, tx, roomID, mutations, e.mutators, connected, e.logger)
			return err
		})
		if err != nil {
			stepFailures.Inc()
			e.logger.Error("room step failed, mutations stay queued",
				"room_id", roomID,
				"mutations", len(mutations),
				"error", err)
			continue
		}

		// The transaction committed; now trim the processed prefix of
		// every poked client's pending queue and deliver.
		for _, p := range pokes {
			if client, ok := e.registry.Get(p.ClientID); ok {
				client.ClearPending(p.Poke.LastMutationID)
			}
		}
		e.sendPokes(ctx, pokes)
	}

	e.logger.Debug("step completed",
		"rooms", len(roomIDs),
		"elapsed", time.Since(start))
}

// sendPokes delivers pokes to live connections, falling back to the
// out-of-band fanout for clients that went away. Socket writes are
// bounded by the transport's write deadline, so dispatch cannot stall the
// loop indefinitely.
func (e *Engine) sendPokes(ctx context.Context, pokes []ClientPoke) {
	for _, p := range pokes {
		client, ok := e.registry.Get(p.ClientID)
		if ok {
			if err := client.Send(&api.Message{Type: api.TypePoke, Poke: p.Poke}); err != nil {
				e.logger.Warn("failed to send poke",
					"client_id", p.ClientID,
					"error", err)
				pokesDropped.Inc()
				continue
			}
			pokesSent.Inc()
			continue
		}

		if e.fanout == nil {
			pokesDropped.Inc()
			continue
		}
		if err := e.fanout.Publish(ctx, p.ClientID, p.Poke); err != nil {
			e.logger.Warn("fanout publish failed",
				"client_id", p.ClientID,
				"error", err)
			pokesDropped.Inc()
			continue
		}
		pokesSent.Inc()
	}
}
