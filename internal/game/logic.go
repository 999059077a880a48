package game

import (
	"log"
	"strings"
	"time"
)

const (
	moveAnimationDelay = 1 * time.Second
	turnSettleDelay    = 500 * time.Millisecond
)

// movePlayer walks the acting player's token after a confirmed dice result.
// The server landing position wins when it is known; the locally computed one
// only covers the gap until it arrives.
func (s *Store) movePlayer(st *State, eff *Effects, dice [2]int) {
	if st.UpdatingPosition && st.ServerPosition == nil {
		log.Printf("Move already in flight, dropping duplicate")
		return
	}
	actor := st.CurrentPlayer()
	if actor == nil || len(st.Board) == 0 {
		return
	}
	st.UpdatingPosition = true

	steps := dice[0] + dice[1]
	if st.ServerDiceSum > 0 {
		steps = st.ServerDiceSum
	}
	prev := actor.Position.Value()

	if st.ServerPosition != nil {
		final := normalizePosition(*st.ServerPosition, len(st.Board))
		actor.Position.Confirm(final)
	} else {
		actor.Position.Predict(normalizePosition(prev+steps, len(st.Board)))
	}
	if actor.Position.Value() < prev {
		actor.LapCount++
	}

	st.Phase = PhasePlayerMoving
	st.ServerPosition = nil

	// Resolve the landing tile once the hop animation window has passed. If
	// the turn already moved on, only the in-flight flag is cleared.
	movedIdx := st.CurrentPlayerIndex
	eff.After(moveAnimationDelay, guardAlways, func(st *State, eff *Effects) {
		if st.CurrentPlayerIndex != movedIdx {
			st.UpdatingPosition = false
			return
		}
		if st.ProcessingChanceCard {
			// The chance card already resolved this landing server-side.
			st.ProcessingChanceCard = false
			st.UpdatingPosition = false
			return
		}
		st.UpdatingPosition = false
		s.handleTileAction(st, eff)
	})
}

// handleTileAction resolves the tile under the acting player's token.
func (s *Store) handleTileAction(st *State, eff *Effects) {
	st.Phase = PhaseTileAction

	actor := st.CurrentPlayer()
	if actor == nil {
		s.endTurn(st, eff)
		return
	}
	tile := st.TileAt(actor.Position.Value())
	if tile == nil {
		log.Printf("Player %s landed off the board (%d), ending turn",
			actor.Name, actor.Position.Value())
		s.endTurn(st, eff)
		return
	}
	if actor.Money < 0 {
		s.checkGameOver(st, eff)
		return
	}

	switch tile.Type {
	case TileNormal:
		s.handleCityTile(st, eff, actor, tile)
	case TileChance:
		// The card result arrives as its own message; stay in TILE_ACTION.
		log.Printf("Player %s on a chance tile, waiting for the card", actor.Name)
	case TileSpecial, TileJail, TileStart, TileTravel, TileTax:
		s.handleSpecialTile(st, eff, actor, tile)
	default:
		s.endTurn(st, eff)
	}

	// A pending server-quoted cost is consumed by exactly one resolution.
	st.PendingTileCost = nil
}

// endTurn hands the turn back to the server and parks the phase machine until
// the next turn boundary arrives.
func (s *Store) endTurn(st *State, eff *Effects) {
	if st.Phase == PhaseWaitingForTurnEnd {
		return
	}
	actor := st.CurrentPlayer()
	if actor == nil {
		return
	}

	eff.Send(destEndTurn(st.GameID), TypeTurnSkip, TurnSkipRequest{UserName: actor.Name})

	if !modalSurvivesTurnEnd(st.Modal) {
		st.Modal = noModal()
	}
	st.Phase = PhaseWaitingForTurnEnd
	st.ServerPosition = nil

	eff.After(turnSettleDelay, guardAlways, func(st *State, eff *Effects) {
		s.checkGameOver(st, eff)
	})
}

// modalSurvivesTurnEnd picks the few prompts a player may still be reading
// when their turn ends: the jail notice and the travel/salary info modals.
func modalSurvivesTurnEnd(m Modal) bool {
	if m.Kind == ModalJail {
		return true
	}
	if m.Kind == ModalInfo {
		lower := strings.ToLower(m.Text)
		return strings.Contains(lower, "world travel") || strings.Contains(lower, "start tile")
	}
	return false
}

// checkGameOver ends the game locally on bankruptcy elimination or when the
// turn limit is reached. The server's own GAME_END always overrides whatever
// this computes.
func (s *Store) checkGameOver(st *State, eff *Effects) {
	if st.Phase == PhaseGameOver || len(st.Players) == 0 {
		return
	}

	alive := make([]*Player, 0, len(st.Players))
	for i := range st.Players {
		if st.Players[i].Money >= 0 {
			alive = append(alive, &st.Players[i])
		}
	}

	switch {
	case len(alive) <= 1:
		st.Phase = PhaseGameOver
		st.Modal = noModal()
		if len(alive) == 1 {
			st.WinnerID = alive[0].ID
			log.Printf("Game over by elimination, winner %s", alive[0].Name)
		} else {
			st.WinnerID = ""
			log.Printf("Game over, everyone bankrupt")
		}

	case st.CurrentTurn >= st.TotalTurns:
		winner := s.richestPlayer(st)
		st.Phase = PhaseGameOver
		st.Modal = noModal()
		if winner != nil {
			st.WinnerID = winner.ID
			log.Printf("Game over at turn limit, winner %s (net worth %d)",
				winner.Name, st.netWorth(winner))
		}
	}
}

func (s *Store) richestPlayer(st *State) *Player {
	var best *Player
	bestWorth := 0
	for i := range st.Players {
		worth := st.netWorth(&st.Players[i])
		if best == nil || worth > bestWorth {
			best = &st.Players[i]
			bestWorth = worth
		}
	}
	return best
}
