package game

import (
	"encoding/json"
	"log"
	"slices"
	"sync"
	"time"
)

// Sender is the outbound half of the message channel.
type Sender interface {
	Send(destination, messageType string, payload any) error
}

// Subscriber is the inbound half. Subscribe returns an unsubscribe func.
type Subscriber interface {
	Subscribe(topic string, fn func(payload json.RawMessage)) func()
}

// Mutation is a single atomic change to the game state. Side effects (network
// sends, timers) are declared on Effects and executed after the lock drops.
type Mutation func(*State, *Effects)

// Effects collects the outbound work a mutation wants done. Nothing here
// touches the network or the clock while the state lock is held.
type Effects struct {
	sends  []outboundSend
	timers []timerRequest
}

type outboundSend struct {
	destination string
	messageType string
	payload     any
}

type timerRequest struct {
	delay time.Duration
	guard Guard
	fn    Mutation
}

// Send queues an outbound message for delivery after the mutation commits.
func (e *Effects) Send(destination, messageType string, payload any) {
	e.sends = append(e.sends, outboundSend{destination, messageType, payload})
}

// After queues a deferred mutation. The guard re-validates at fire time; a
// false guard drops the callback silently.
func (e *Effects) After(delay time.Duration, guard Guard, fn Mutation) {
	e.timers = append(e.timers, timerRequest{delay, guard, fn})
}

// Config wires a Store to its collaborators.
type Config struct {
	GameID    string
	Viewer    string // local player's nickname
	Channel   Sender
	Scheduler Scheduler
	Now       func() time.Time
}

// Store owns the whole game state. All mutation goes through update; reads go
// through Snapshot. One lock, one writer discipline.
type Store struct {
	mu     sync.Mutex
	state  State
	gameID string
	viewer string
	ch     Sender
	sched  Scheduler
	now    func() time.Time
	recent *recencyRing
}

func NewStore(cfg Config) *Store {
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewWallScheduler()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		state: State{
			GameID:       cfg.GameID,
			Phase:        PhaseWaitingForRoll,
			Dice:         [2]int{1, 1},
			Modal:        noModal(),
			TotalTurns:   defaultTotalTurns,
			CurrentTurn:  1,
			ExpoLocation: -1,
		},
		gameID: cfg.GameID,
		viewer: cfg.Viewer,
		ch:     cfg.Channel,
		sched:  cfg.Scheduler,
		now:    cfg.Now,
		recent: newRecencyRing(recencyRingSize),
	}
}

// Bind subscribes the store to every topic it handles. The returned func
// detaches all of them.
func (s *Store) Bind(sub Subscriber) func() {
	unsubs := make([]func(), 0, len(Topics()))
	for _, topic := range Topics() {
		topic := topic
		unsubs = append(unsubs, sub.Subscribe(topic, func(payload json.RawMessage) {
			s.HandleMessage(topic, payload)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Snapshot returns a copy of the current state safe to read concurrently.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.state
	out.Players = slices.Clone(s.state.Players)
	for i := range out.Players {
		out.Players[i].Properties = slices.Clone(out.Players[i].Properties)
	}
	out.Board = slices.Clone(s.state.Board)
	out.Toasts = slices.Clone(s.state.Toasts)
	if s.state.ServerPosition != nil {
		pos := *s.state.ServerPosition
		out.ServerPosition = &pos
	}
	if s.state.PendingTileCost != nil {
		cost := *s.state.PendingTileCost
		out.PendingTileCost = &cost
	}
	if s.state.Economy != nil {
		eco := *s.state.Economy
		out.Economy = &eco
	}
	return out
}

// update is the single entry point for state mutation. Queued effects run
// after the lock is released so handlers never block the state.
func (s *Store) update(fn Mutation) {
	var eff Effects
	s.mu.Lock()
	fn(&s.state, &eff)
	s.mu.Unlock()
	s.runEffects(eff)
}

func (s *Store) runEffects(eff Effects) {
	for _, out := range eff.sends {
		if s.ch == nil {
			log.Printf("No channel attached, dropping %s to %s", out.messageType, out.destination)
			continue
		}
		if err := s.ch.Send(out.destination, out.messageType, out.payload); err != nil {
			log.Printf("Failed to send %s to %s: %v", out.messageType, out.destination, err)
		}
	}
	for _, t := range eff.timers {
		t := t
		s.sched.After(t.delay, func() {
			s.update(func(st *State, eff *Effects) {
				if t.guard != nil && !t.guard(st) {
					return
				}
				t.fn(st, eff)
			})
		})
	}
}

// ConfirmModal acknowledges the open modal, running its confirm hook inside
// the store before closing it.
func (s *Store) ConfirmModal() {
	s.update(func(st *State, eff *Effects) {
		if st.Modal.Kind == ModalNone {
			return
		}
		confirm := st.Modal.OnConfirm
		st.Modal = noModal()
		if confirm != nil {
			confirm(st, eff)
		}
	})
}

// DismissModal closes the open modal without running its confirm hook.
func (s *Store) DismissModal() {
	s.update(func(st *State, eff *Effects) {
		st.Modal = noModal()
	})
}
