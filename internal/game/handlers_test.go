package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func boolp(v bool) *bool { return &v }

func floatp(v float64) *float64 { return &v }

func dicePayload(user string, d1, d2, turn, pos, money int) UseDicePayload {
	return UseDicePayload{
		UserName:        user,
		DiceNum1:        d1,
		DiceNum2:        d2,
		DiceNumSum:      d1 + d2,
		CurTurn:         turn,
		CurrentPosition: pos,
		UpdatedAsset:    &WireAsset{Money: intp(money)},
	}
}

// Why: the dice result is the backbone of a turn. Server position and money
// must land exactly, then the animation timers walk the phase machine.
func TestUseDiceAppliesServerResult(t *testing.T) {
	s, sched, _ := newTestStore("alice")
	seed(s)

	s.handleUseDice(dicePayload("alice", 3, 5, 2, 8, 1_450_000))

	snap := s.Snapshot()
	assert.Equal(t, PhaseDiceRolling, snap.Phase)
	assert.Equal(t, [2]int{3, 5}, snap.Dice)
	assert.Equal(t, 8, snap.Players[0].Position.Value())
	assert.True(t, snap.Players[0].Position.HasConfirmed)
	assert.Equal(t, 1_450_000, snap.Players[0].Money)
	assert.Equal(t, 2, snap.CurrentTurn)

	// Dice animation, then the move animation, then tile resolution.
	sched.Advance(2 * time.Second)
	assert.Equal(t, PhasePlayerMoving, s.Snapshot().Phase)

	sched.Advance(1 * time.Second)
	snap = s.Snapshot()
	assert.Equal(t, PhaseTileAction, snap.Phase)
	// Tile 8 is unowned ordinary land and alice can afford it.
	assert.Equal(t, ModalBuyProperty, snap.Modal.Kind)
	assert.Equal(t, 8, snap.Modal.TileIndex)
}

// Why: replayed announcements double-move tokens without this.
func TestUseDiceDeduplicatesReplays(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	p := dicePayload("alice", 3, 5, 2, 8, 1_450_000)
	s.handleUseDice(p)

	s.update(func(st *State, eff *Effects) { st.Dice = [2]int{6, 6} })
	s.handleUseDice(p)

	assert.Equal(t, [2]int{6, 6}, s.Snapshot().Dice)
}

// Why: another player's dice must not drive this client's phase machine.
func TestUseDiceForObserverDoesNotAnimate(t *testing.T) {
	s, sched, _ := newTestStore("bob")
	seed(s)

	s.handleUseDice(dicePayload("alice", 2, 4, 1, 6, 1_480_000))

	snap := s.Snapshot()
	assert.Equal(t, 6, snap.Players[0].Position.Value())
	assert.Equal(t, 1_480_000, snap.Players[0].Money)

	sched.Advance(5 * time.Second)
	// Observer never enters PLAYER_MOVING for someone else's roll.
	assert.NotEqual(t, PhasePlayerMoving, s.Snapshot().Phase)
	assert.Equal(t, ModalNone, s.Snapshot().Modal.Kind)
}

func rosterJSON(t *testing.T, players []WirePlayer) WireRoster {
	t.Helper()
	data, err := json.Marshal(players)
	assert.NoError(t, err)
	var roster WireRoster
	assert.NoError(t, json.Unmarshal(data, &roster))
	return roster
}

// Why: a roster snapshot arriving mid-animation must not teleport tokens, but
// the money columns still have to land.
func TestRosterSnapshotWithholdsPositionsDuringMove(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	s.update(func(st *State, eff *Effects) { st.UpdatingPosition = true })

	s.handleGameStateChange(GameStateChangePayload{
		Players: rosterJSON(t, []WirePlayer{
			{UserID: "u1", Nickname: "alice", Money: intp(900_000), Position: intp(20)},
			{UserID: "u2", Nickname: "bob", Money: intp(2_000_000), Position: intp(11)},
		}),
	})

	snap := s.Snapshot()
	assert.Equal(t, 900_000, snap.Players[0].Money)
	assert.Equal(t, 2_000_000, snap.Players[1].Money)
	assert.Equal(t, 0, snap.Players[0].Position.Value())
	assert.Equal(t, 0, snap.Players[1].Position.Value())

	// With no move in flight the same snapshot moves the tokens.
	s.update(func(st *State, eff *Effects) { st.UpdatingPosition = false })
	s.handleGameStateChange(GameStateChangePayload{
		Players: rosterJSON(t, []WirePlayer{
			{UserID: "u1", Nickname: "alice", Position: intp(20)},
			{UserID: "u2", Nickname: "bob", Position: intp(11)},
		}),
	})
	snap = s.Snapshot()
	assert.Equal(t, 20, snap.Players[0].Position.Value())
	assert.Equal(t, 11, snap.Players[1].Position.Value())
}

// Why: a stale snapshot can still claim a freshly released player is jailed.
func TestRosterSnapshotKeepsLocalJailRelease(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	s.handleGameStateChange(GameStateChangePayload{
		Players: rosterJSON(t, []WirePlayer{
			{UserID: "u1", Nickname: "alice", InJail: boolp(true), JailTurns: intp(2)},
		}),
	})

	snap := s.Snapshot()
	assert.False(t, snap.Players[0].InJail)
	assert.Equal(t, 0, snap.Players[0].JailTurns)
}

func TestTurnBoundaryIgnoresDuplicate(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	s.handleGameStateChange(GameStateChangePayload{CurPlayer: "bob", GameTurn: intp(3)})
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.CurrentPlayerIndex)
	assert.Equal(t, 3, snap.CurrentTurn)
	assert.Equal(t, PhaseWaitingForRoll, snap.Phase)

	// Mark local state, then replay the same boundary.
	s.update(func(st *State, eff *Effects) { st.Phase = PhaseTileAction })
	s.handleGameStateChange(GameStateChangePayload{CurPlayer: "bob", GameTurn: intp(3)})
	assert.Equal(t, PhaseTileAction, s.Snapshot().Phase)
}

func TestTurnBoundaryPreservesChanceModal(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	s.update(func(st *State, eff *Effects) {
		st.Modal = Modal{Kind: ModalChanceCard, TileIndex: -1, Text: "Tax refund"}
	})
	s.handleGameStateChange(GameStateChangePayload{CurPlayer: "bob", GameTurn: intp(2)})

	assert.Equal(t, ModalChanceCard, s.Snapshot().Modal.Kind)
}

// Why: a traveling player's own client picks a destination; others just wait.
func TestTurnBoundaryForTravelingPlayer(t *testing.T) {
	s, _, _ := newTestStore("bob")
	seed(s)
	s.update(func(st *State, eff *Effects) { st.Players[1].Traveling = true })

	s.handleGameStateChange(GameStateChangePayload{CurPlayer: "bob", GameTurn: intp(2)})
	assert.Equal(t, PhaseWorldTravelMove, s.Snapshot().Phase)

	// Same boundary seen by an observer parks in WAITING_FOR_ROLL.
	s2, _, _ := newTestStore("alice")
	seed(s2)
	s2.update(func(st *State, eff *Effects) { st.Players[1].Traveling = true })
	s2.handleGameStateChange(GameStateChangePayload{CurPlayer: "bob", GameTurn: intp(2)})
	assert.Equal(t, PhaseWaitingForRoll, s2.Snapshot().Phase)
}

// Why: the drawer confirms a modal, everyone else just reads a toast.
func TestDrawCardArbitratesModalVsToast(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	s.handleDrawCard(DrawCardPayload{
		UserName: "alice",
		Result: &DrawCardResult{
			UserName:          "alice",
			CardName:          "Tax refund",
			EffectDescription: "Collect 100000",
			MoneyChange:       intp(100_000),
		},
	})
	snap := s.Snapshot()
	assert.Equal(t, ModalChanceCard, snap.Modal.Kind)
	assert.Equal(t, 1_600_000, snap.Players[0].Money)

	obs, _, _ := newTestStore("bob")
	seed(obs)
	obs.handleDrawCard(DrawCardPayload{
		UserName: "alice",
		Result: &DrawCardResult{
			UserName:          "alice",
			CardName:          "Tax refund",
			EffectDescription: "Collect 100000",
			MoneyChange:       intp(100_000),
		},
	})
	snap = obs.Snapshot()
	assert.Equal(t, ModalNone, snap.Modal.Kind)
	assert.NotEmpty(t, snap.Toasts)
}

func TestDrawCardMoveConfirmEndsTurn(t *testing.T) {
	s, _, ch := newTestStore("alice")
	seed(s)

	s.handleDrawCard(DrawCardPayload{
		UserName: "alice",
		Result: &DrawCardResult{
			UserName:          "alice",
			CardName:          "Express ride",
			EffectDescription: "Move to tile 12",
			NewPosition:       intp(12),
		},
	})
	snap := s.Snapshot()
	assert.Equal(t, 12, snap.Players[0].Position.Value())
	assert.Equal(t, ModalChanceCard, snap.Modal.Kind)

	s.ConfirmModal()
	snap = s.Snapshot()
	// The server already resolved the landing; the pending animation is told
	// to skip its own resolution and the turn ends.
	assert.True(t, snap.ProcessingChanceCard)
	assert.Equal(t, PhaseWaitingForTurnEnd, snap.Phase)
	assert.Len(t, ch.ofType(TypeTurnSkip), 1)
}

func TestEconomicHistoryToastOncePerTurn(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	p := EconomicHistoryPayload{
		PeriodName:     "Boom",
		EffectName:     "Gold rush",
		Description:    "Everything pays more",
		IsBoom:         boolp(true),
		RemainingTurns: 3,
		TollMultiplier: floatp(1.5),
	}
	s.handleEconomicHistory(p)
	s.handleEconomicHistory(p)

	snap := s.Snapshot()
	assert.NotNil(t, snap.Economy)
	assert.True(t, snap.Economy.Boom)
	assert.Equal(t, 1.5, snap.Economy.TollMultiplier)
	assert.Len(t, snap.Toasts, 1)
}

func TestConstructResultUpdatesBoard(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)
	s.update(func(st *State, eff *Effects) { st.Players[0].Properties = []int{8} })

	s.handleConstructBuilding(ConstructPayload{
		Result:       true,
		Nickname:     "alice",
		LandNum:      8,
		BuildingType: "VILLA",
		UpdatedAsset: &WireAsset{Money: intp(1_400_000), Lands: []int{8}},
	})

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Board[8].Building.Level)
	assert.Equal(t, 1_400_000, snap.Players[0].Money)
	assert.Equal(t, PhaseTileAction, snap.Phase)
}

func TestConstructFailureOnlyPromptsBuilder(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)
	s.handleConstructBuilding(ConstructPayload{Result: false, Nickname: "alice", Message: "Not your land"})
	assert.Equal(t, ModalInfo, s.Snapshot().Modal.Kind)

	obs, _, _ := newTestStore("bob")
	seed(obs)
	obs.handleConstructBuilding(ConstructPayload{Result: false, Nickname: "alice", Message: "Not your land"})
	assert.Equal(t, ModalNone, obs.Snapshot().Modal.Kind)
}

// Why: a successful escape must free the player to roll in the same turn.
func TestJailEventEscapeForActingViewer(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)
	s.update(func(st *State, eff *Effects) {
		st.Players[0].InJail = true
		st.Players[0].JailTurns = 3
		st.Phase = PhaseTileAction
	})

	s.handleJailEvent(JailEventPayload{
		Result:       boolp(true),
		Nickname:     "alice",
		Turns:        0,
		UpdatedAsset: &WireAsset{Money: intp(1_000_000)},
	})

	snap := s.Snapshot()
	assert.False(t, snap.Players[0].InJail)
	assert.Equal(t, 1_000_000, snap.Players[0].Money)
	assert.Equal(t, PhaseWaitingForRoll, snap.Phase)
	assert.Equal(t, ModalInfo, snap.Modal.Kind)
}

func TestJailEventObserverGetsToast(t *testing.T) {
	s, _, _ := newTestStore("bob")
	seed(s)
	s.update(func(st *State, eff *Effects) {
		st.Players[0].InJail = true
		st.Players[0].JailTurns = 3
	})

	s.handleJailEvent(JailEventPayload{Result: boolp(true), Nickname: "alice", Turns: 0})

	snap := s.Snapshot()
	assert.Equal(t, ModalNone, snap.Modal.Kind)
	assert.NotEmpty(t, snap.Toasts)
}

func TestWorldTravelLandsAndResolvesTile(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)
	s.update(func(st *State, eff *Effects) {
		st.Players[0].Traveling = true
		st.Phase = PhaseTileAction
		// Bob owns the destination, so landing pays a toll.
		st.Players[1].Properties = []int{11}
	})

	s.handleWorldTravel(WorldTravelPayload{
		Result:        boolp(true),
		Nickname:      "alice",
		StartLand:     16,
		EndLand:       11,
		TravelerAsset: &WireAsset{Money: intp(1_200_000)},
	})

	snap := s.Snapshot()
	assert.Equal(t, 11, snap.Players[0].Position.Value())
	assert.False(t, snap.Players[0].Traveling)
	// Landing on bob's land paid a toll and opened the acquisition prompt.
	assert.Equal(t, ModalAcquireProperty, snap.Modal.Kind)
	assert.True(t, snap.Modal.TollPaid)
}

func TestTaxEventArbitration(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)
	s.handleTaxEvent(TaxEventPayload{
		Nickname:     "alice",
		TaxAmount:    75_000,
		UpdatedAsset: &WireAsset{Money: intp(1_425_000)},
	})
	snap := s.Snapshot()
	assert.Equal(t, ModalTax, snap.Modal.Kind)
	assert.Equal(t, 75_000, snap.Modal.TaxAmount)
	assert.Equal(t, 1_425_000, snap.Players[0].Money)

	obs, _, _ := newTestStore("bob")
	seed(obs)
	obs.handleTaxEvent(TaxEventPayload{Nickname: "alice", TaxAmount: 75_000})
	assert.Equal(t, ModalNone, obs.Snapshot().Modal.Kind)
	assert.NotEmpty(t, obs.Snapshot().Toasts)
}

// Why: the server's verdict overrides any local winner computation.
func TestGameEndFromServer(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	s.handleGameEnd(GameEndPayload{WinnerNickname: "bob", VictoryReason: "TURN_LIMIT"})

	snap := s.Snapshot()
	assert.Equal(t, PhaseGameOver, snap.Phase)
	assert.Equal(t, "u2", snap.WinnerID)
	assert.Equal(t, ModalNone, snap.Modal.Kind)
}

func TestInvalidBehaviorUnwindsSpeculativePhase(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)
	s.update(func(st *State, eff *Effects) { st.Phase = PhaseDiceRolling })

	s.handleInvalidBehavior(ServerErrorPayload{Message: "Not your turn"})

	snap := s.Snapshot()
	assert.Equal(t, PhaseWaitingForRoll, snap.Phase)
	assert.NotEmpty(t, snap.Toasts)
}

func TestServerErrorDuringTravelClearsFlags(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)
	s.update(func(st *State, eff *Effects) {
		st.Phase = PhaseWorldTravelMove
		st.Players[0].Traveling = true
	})

	s.handleInternalServerError(ServerErrorPayload{})

	snap := s.Snapshot()
	assert.Equal(t, PhaseWaitingForRoll, snap.Phase)
	assert.False(t, snap.Players[0].Traveling)
	assert.Equal(t, ModalInfo, snap.Modal.Kind)
}

func TestHandleMessageRoutesEnvelope(t *testing.T) {
	s, _, _ := newTestStore("alice")
	seed(s)

	payload, _ := json.Marshal(TurnChangePayload{CurrentPlayerIndex: 1})
	s.HandleMessage(TopicTurnChange, payload)
	assert.Equal(t, 1, s.Snapshot().CurrentPlayerIndex)

	// Malformed payloads are dropped, not fatal.
	s.HandleMessage(TopicUseDice, json.RawMessage(`{"diceNum1":"nope"}`))
	s.HandleMessage("SOMETHING_ELSE", json.RawMessage(`{}`))
	assert.Equal(t, 1, s.Snapshot().CurrentPlayerIndex)
}

func TestGameInitBuildsRoster(t *testing.T) {
	s, sched, _ := newTestStore("alice")

	cells := make([]WireCell, 32)
	for i := range cells {
		cells[i] = WireCell{Name: "City", Type: "NORMAL", LandPrice: 100_000}
	}
	cells[0] = WireCell{Name: "Start", Type: "START"}

	s.handleStartGameObserve(GameInitPayload{
		RoomID:      "room-7",
		PlayerOrder: []string{"alice", "bob"},
		Players: WireRoster{
			{UserID: "u1", Nickname: "alice", Money: intp(1_500_000), Position: intp(0)},
			{UserID: "u2", Nickname: "bob", Money: intp(1_500_000), Position: intp(0)},
		},
		CurrentMap: &WireMap{Cells: cells},
	})

	snap := s.Snapshot()
	assert.Equal(t, "room-7", snap.GameID)
	assert.Len(t, snap.Players, 2)
	assert.Len(t, snap.Board, 32)
	assert.Equal(t, PhaseSelectingOrder, snap.Phase)

	// The order reveal window expires into normal play.
	sched.Advance(5 * time.Second)
	assert.Equal(t, PhaseWaitingForRoll, s.Snapshot().Phase)
}

func TestGameInitRejectsBadPayload(t *testing.T) {
	s, _, _ := newTestStore("alice")

	s.handleStartGameObserve(GameInitPayload{RoomID: "", PlayerOrder: []string{"alice"}})

	snap := s.Snapshot()
	assert.Empty(t, snap.Players)
	assert.Equal(t, ModalInfo, snap.Modal.Kind)
}
