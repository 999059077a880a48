package game

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

const (
	gameInitSettleDelay = 5 * time.Second
	diceAnimationDelay  = 2 * time.Second
	postDiceAuditDelay  = 3 * time.Second
	rosterAuditDelay    = 1 * time.Second
)

// HandleMessage routes one inbound envelope to its handler. Unknown topics
// and malformed payloads are logged and dropped; a bad message must never
// wedge the state machine.
func (s *Store) HandleMessage(topic string, payload json.RawMessage) {
	log.Printf("Message type '%s' received", topic)

	switch topic {
	case TopicGameStateChange:
		var p GameStateChangePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleGameStateChange(p)

	case TopicStartGameObserve:
		var p GameInitPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleStartGameObserve(p)

	case TopicTurnChange:
		var p TurnChangePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleTurnChange(p)

	case TopicUseDice:
		var p UseDicePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleUseDice(p)

	case TopicTradeLand:
		var p TradeLandPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleTradeLand(p)

	case TopicDrawCard, TopicChanceCard:
		var p DrawCardPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleDrawCard(p)

	case TopicEconomicHistory:
		var p EconomicHistoryPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleEconomicHistory(p)

	case TopicConstructBuilding:
		var p ConstructPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleConstructBuilding(p)

	case TopicJailEvent:
		var p JailEventPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleJailEvent(p)

	case TopicInvalidJailState:
		var p InvalidJailStatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleInvalidJailState(p)

	case TopicWorldTravelEvent:
		var p WorldTravelPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleWorldTravel(p)

	case TopicTaxEvent:
		var p TaxEventPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleTaxEvent(p)

	case TopicGameEnd:
		var p GameEndPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("Invalid %s payload: %v", topic, err)
			return
		}
		s.handleGameEnd(p)

	case TopicInternalServerError:
		var p ServerErrorPayload
		_ = json.Unmarshal(payload, &p)
		s.handleInternalServerError(p)

	case TopicInvalidBehavior:
		var p ServerErrorPayload
		_ = json.Unmarshal(payload, &p)
		s.handleInvalidBehavior(p)

	case TopicEnterRoomOK, TopicEnterNewUser:
		// Room traffic can arrive mid-game; nothing to do.

	default:
		log.Printf("Unknown message type '%s', ignoring", topic)
	}
}

// isViewer reports whether the player is the local user.
func (s *Store) isViewer(p *Player) bool {
	if p == nil {
		return false
	}
	return p.ID == s.viewer || p.Name == s.viewer
}

// ----------------------------------------------------------------------------
// Turn boundaries
// ----------------------------------------------------------------------------

func (s *Store) handleGameStateChange(p GameStateChangePayload) {
	if p.CurPlayer != "" {
		s.update(func(st *State, eff *Effects) {
			s.applyTurnBoundary(st, eff, p.CurPlayer, p.GameTurn)
		})
		return
	}
	if len(p.Players) > 0 {
		s.update(func(st *State, eff *Effects) {
			s.applyRosterSnapshot(st, p.Players)
			eff.After(rosterAuditDelay, guardAlways, func(st *State, eff *Effects) {
				s.checkDrift(st, eff)
			})
		})
	}
}

// applyTurnBoundary hands the turn to the named player. Duplicate
// announcements (same turn number, same player) are ignored.
func (s *Store) applyTurnBoundary(st *State, eff *Effects, curPlayer string, gameTurn *int) {
	next := -1
	for i := range st.Players {
		if st.Players[i].Name == curPlayer {
			next = i
			break
		}
	}
	if next == -1 {
		log.Printf("Turn boundary for unknown player '%s', ignoring", curPlayer)
		return
	}
	if gameTurn != nil && st.CurrentTurn == *gameTurn && st.CurrentPlayerIndex == next {
		return
	}

	st.CurrentPlayerIndex = next
	if gameTurn != nil {
		st.CurrentTurn = *gameTurn
	}

	nextPlayer := &st.Players[next]
	if nextPlayer.Traveling {
		// A traveling player spends this turn picking a destination. Only
		// their own client enters selection mode; everyone else just waits.
		if s.isViewer(nextPlayer) {
			st.Phase = PhaseWorldTravelMove
		} else {
			st.Phase = PhaseWaitingForRoll
		}
		st.Modal = noModal()
		return
	}

	st.Phase = PhaseWaitingForRoll
	// A chance-card modal the viewer has not acknowledged yet survives the
	// turn boundary.
	if st.Modal.Kind != ModalChanceCard {
		st.Modal = noModal()
	}
}

func (s *Store) handleTurnChange(p TurnChangePayload) {
	s.update(func(st *State, eff *Effects) {
		if p.CurrentPlayerIndex < 0 || p.CurrentPlayerIndex >= len(st.Players) {
			log.Printf("TURN_CHANGE index %d out of range, ignoring", p.CurrentPlayerIndex)
			return
		}
		st.CurrentPlayerIndex = p.CurrentPlayerIndex
		next := &st.Players[p.CurrentPlayerIndex]
		if next.Traveling && s.isViewer(next) {
			st.Phase = PhaseWorldTravelMove
			st.Modal = noModal()
			return
		}
		st.Phase = PhaseWaitingForRoll
		if st.Modal.Kind != ModalChanceCard {
			st.Modal = noModal()
		}
	})
}

// ----------------------------------------------------------------------------
// Roster snapshots
// ----------------------------------------------------------------------------

// applyRosterSnapshot merges a server roster into the local one. Money,
// holdings and jail state apply immediately; positions are withheld while a
// local move animation is in flight so the server snapshot cannot teleport
// the token mid-hop.
func (s *Store) applyRosterSnapshot(st *State, roster WireRoster) {
	withholdPositions := st.UpdatingPosition
	if withholdPositions {
		log.Printf("Move in flight, withholding roster positions")
	}

	for i := range st.Players {
		local := &st.Players[i]
		remote := findWirePlayer(roster, local)
		if remote == nil {
			log.Printf("No roster entry for player %s", local.Name)
			continue
		}

		if remote.Money != nil {
			local.Money = *remote.Money
		}
		if remote.OwnedProperties != nil {
			local.Properties = remote.OwnedProperties
		}
		if asset := remote.Asset(); asset != nil {
			local.TotalAsset = asset
		}

		// Jail release race: once this client has released a player, a stale
		// snapshot may still claim they are jailed. The release wins.
		alreadyReleased := !local.InJail && local.JailTurns == 0
		if remote.InJail != nil && !(alreadyReleased && *remote.InJail) {
			local.InJail = *remote.InJail
			if remote.JailTurns != nil {
				local.JailTurns = *remote.JailTurns
			}
		}

		if !withholdPositions && remote.Position != nil {
			local.Position.Confirm(normalizePosition(*remote.Position, len(st.Board)))
		}
	}
}

func findWirePlayer(roster WireRoster, local *Player) *WirePlayer {
	for i := range roster {
		if roster[i].Key() == local.ID {
			return &roster[i]
		}
	}
	for i := range roster {
		if roster[i].Nickname == local.Name {
			return &roster[i]
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Game init
// ----------------------------------------------------------------------------

func (s *Store) handleStartGameObserve(p GameInitPayload) {
	s.update(func(st *State, eff *Effects) {
		inProgress := st.Phase != PhaseSelectingOrder && len(st.Players) > 0 && st.GameID != ""
		if inProgress {
			// Game already running: refresh the board but leave the roster
			// alone, a late init snapshot must not reset positions.
			if p.CurrentMap != nil && len(p.CurrentMap.Cells) > 0 {
				st.Board = buildBoard(p.CurrentMap.Cells)
				applyBuildingLevels(st.Board, p.CurrentMap.Cells)
			}
			return
		}
		s.initializeGame(st, eff, p)
	})
}

var characterPrefabs = []string{"racer", "sailor", "aviator", "engineer"}

func (s *Store) initializeGame(st *State, eff *Effects, p GameInitPayload) {
	if p.RoomID == "" || p.CurrentMap == nil || len(p.CurrentMap.Cells) == 0 || len(p.PlayerOrder) == 0 {
		log.Printf("GAME_INIT_INVALID: roomId=%q cells=%d order=%d",
			p.RoomID, cellCount(p.CurrentMap), len(p.PlayerOrder))
		st.Modal = Modal{
			Kind:      ModalInfo,
			TileIndex: -1,
			Text:      "Game initialization failed. Leave the room and start again.",
		}
		return
	}

	players := make([]Player, 0, len(p.PlayerOrder))
	for i, nickname := range p.PlayerOrder {
		remote := wirePlayerByNickname(p.Players, nickname)
		if remote == nil {
			log.Printf("GAME_INIT: player '%s' missing from roster", nickname)
			continue
		}

		var existing *Player
		for j := range st.Players {
			if st.Players[j].ID == remote.Key() {
				existing = &st.Players[j]
				break
			}
		}

		pl := Player{
			ID:        remote.Key(),
			Name:      remote.Nickname,
			Character: characterPrefabs[i%len(characterPrefabs)],
		}
		if remote.Money != nil {
			pl.Money = *remote.Money
		}
		if remote.OwnedProperties != nil {
			pl.Properties = remote.OwnedProperties
		}
		if remote.InJail != nil {
			pl.InJail = *remote.InJail
		}
		if remote.JailTurns != nil {
			pl.JailTurns = *remote.JailTurns
		}
		pl.TotalAsset = remote.Asset()

		switch {
		case remote.Position != nil:
			pl.Position.Confirm(normalizePosition(*remote.Position, len(p.CurrentMap.Cells)))
		case existing != nil:
			pl.Position = existing.Position
		default:
			pl.Position.Confirm(0)
		}
		if existing != nil {
			pl.Traveling = existing.Traveling
			pl.LapCount = existing.LapCount
		}

		players = append(players, pl)
	}

	if len(players) == 0 {
		log.Printf("GAME_INIT_INVALID: no resolvable players")
		st.Modal = Modal{
			Kind:      ModalInfo,
			TileIndex: -1,
			Text:      "Game initialization failed. Leave the room and start again.",
		}
		return
	}

	st.GameID = p.RoomID
	s.gameID = p.RoomID
	st.Players = players
	st.Board = buildBoard(p.CurrentMap.Cells)
	applyBuildingLevels(st.Board, p.CurrentMap.Cells)
	st.CurrentPlayerIndex = p.CurrentPlayerIndex
	st.Phase = PhaseSelectingOrder

	log.Printf("Game %s initialized: %d players, %d tiles", st.GameID, len(players), len(st.Board))

	// The order reveal runs for a fixed window, then play begins. If a turn
	// boundary already moved the phase on, leave it alone.
	eff.After(gameInitSettleDelay, guardPhase(PhaseSelectingOrder), func(st *State, eff *Effects) {
		st.Phase = PhaseWaitingForRoll
	})
}

func cellCount(m *WireMap) int {
	if m == nil {
		return 0
	}
	return len(m.Cells)
}

func wirePlayerByNickname(roster WireRoster, nickname string) *WirePlayer {
	for i := range roster {
		if roster[i].Nickname == nickname {
			return &roster[i]
		}
	}
	return nil
}

func applyBuildingLevels(board []Tile, cells []WireCell) {
	for i := range board {
		if i < len(cells) && cells[i].BuildingType != "" {
			board[i].Building.Level = buildingLevelOf(cells[i].BuildingType)
		}
	}
}

// ----------------------------------------------------------------------------
// Dice results
// ----------------------------------------------------------------------------

func (s *Store) handleUseDice(p UseDicePayload) {
	s.update(func(st *State, eff *Effects) {
		if s.recent.Seen(p.Fingerprint()) {
			log.Printf("Duplicate dice announcement ignored: %s", p.Fingerprint())
			return
		}

		actor := st.CurrentPlayer()
		actorRolled := actor != nil && actor.Name == p.UserName

		// Only the acting player's dice drive the local phase machine.
		if actorRolled && st.Phase != PhaseDiceRolling {
			st.Phase = PhaseDiceRolling
		}

		if rolled := st.PlayerByName(p.UserName); rolled != nil {
			rolled.Position.Confirm(normalizePosition(p.CurrentPosition, len(st.Board)))
			if p.UpdatedAsset != nil {
				if p.UpdatedAsset.Money != nil {
					rolled.Money = *p.UpdatedAsset.Money
				}
				if p.UpdatedAsset.Lands != nil {
					rolled.Properties = p.UpdatedAsset.Lands
				}
				if p.UpdatedAsset.TotalAsset != nil {
					rolled.TotalAsset = p.UpdatedAsset.TotalAsset
				}
			}
		}

		st.Dice = [2]int{p.DiceNum1, p.DiceNum2}
		st.ServerDiceSum = p.DiceNumSum
		pos := normalizePosition(p.CurrentPosition, len(st.Board))
		st.ServerPosition = &pos
		if p.CurTurn > 0 {
			st.CurrentTurn = p.CurTurn
		}
		st.LastSalaryBonus = p.SalaryBonus
		if p.TollAmount != nil || p.AcquisitionCost != nil {
			st.PendingTileCost = &PendingTileCost{
				TollAmount:      p.TollAmount,
				AcquisitionCost: p.AcquisitionCost,
			}
		} else {
			st.PendingTileCost = nil
		}

		if actorRolled && s.isViewer(actor) {
			// Only the actor's own client animates the walk; observers take
			// positions straight from the wire. The turn guard drops the move
			// if the server has already moved on.
			rolledIdx := st.CurrentPlayerIndex
			eff.After(diceAnimationDelay, guardStillTurnOf(rolledIdx), func(st *State, eff *Effects) {
				st.Phase = PhasePlayerMoving
				st.UpdatingPosition = false
				s.movePlayer(st, eff, [2]int{p.DiceNum1, p.DiceNum2})
			})
		}

		eff.After(postDiceAuditDelay, guardAlways, func(st *State, eff *Effects) {
			s.checkDrift(st, eff)
			s.cleanupMemory(st, eff)
		})
	})
}

// ----------------------------------------------------------------------------
// Trades
// ----------------------------------------------------------------------------

func (s *Store) handleTradeLand(p TradeLandPayload) {
	if len(p.Players) == 0 {
		return
	}
	s.update(func(st *State, eff *Effects) {
		for i := range st.Players {
			local := &st.Players[i]
			remote := findWirePlayer(p.Players, local)
			if remote == nil {
				continue
			}

			// Trade settlements never move tokens; position stays local.
			if remote.Money != nil && *remote.Money != local.Money {
				delta := *remote.Money - local.Money
				severity := ToastInfo
				title := "Payment"
				if delta > 0 {
					severity = ToastSuccess
					title = "Income"
				}
				s.pushToast(st, eff, severity, title,
					fmt.Sprintf("%s: %+d (balance %d)", local.Name, delta, *remote.Money))
				local.Money = *remote.Money
			}
			if remote.OwnedProperties != nil {
				local.Properties = remote.OwnedProperties
			}
			if remote.InJail != nil {
				local.InJail = *remote.InJail
			}
			if remote.JailTurns != nil {
				local.JailTurns = *remote.JailTurns
			}
			if asset := remote.Asset(); asset != nil {
				local.TotalAsset = asset
			}
		}
	})
}

// ----------------------------------------------------------------------------
// Chance cards
// ----------------------------------------------------------------------------

func (s *Store) handleDrawCard(p DrawCardPayload) {
	if p.Result == nil {
		log.Printf("DRAW_CARD without result, ignoring")
		return
	}
	r := p.Result
	s.update(func(st *State, eff *Effects) {
		drawer := st.PlayerByName(r.UserName)
		if drawer != nil {
			if r.MoneyChange != nil {
				drawer.Money += *r.MoneyChange
			}
			if r.NewPosition != nil {
				pos := normalizePosition(*r.NewPosition, len(st.Board))
				drawer.Position.Confirm(pos)
				st.ServerPosition = &pos
			}
			if r.JailStatus != nil {
				drawer.InJail = *r.JailStatus
				if *r.JailStatus {
					drawer.JailTurns = jailSentenceTurns
				} else {
					drawer.JailTurns = 0
				}
			}
		}

		// Economy swing cards hit every wallet, not just the drawer's.
		if r.AffectsEveryone && r.MoneyChange != nil {
			for i := range st.Players {
				if st.Players[i].Name != r.UserName {
					st.Players[i].Money += *r.MoneyChange
				}
			}
		}

		if drawer != nil && s.isViewer(drawer) {
			s.showChanceCardModal(st, r)
			return
		}

		// Observers get a toast; their phase machine is not involved.
		text := fmt.Sprintf("%s: %s - %s", r.UserName, r.CardName, r.EffectDescription)
		if r.NewPosition != nil {
			dest := normalizePosition(*r.NewPosition, len(st.Board))
			name := fmt.Sprintf("tile %d", dest)
			if t := st.TileAt(dest); t != nil && t.Name != "" {
				name = t.Name
			}
			text = fmt.Sprintf("%s moved to %s by a chance card", r.UserName, name)
		}
		s.pushToast(st, eff, ToastInfo, "Chance card", text)
		st.Modal = noModal()
	})
}

// showChanceCardModal presents the drawn card to the drawer. Confirming it
// either opens a follow-up purchase prompt (move card onto unowned land) or
// ends the turn; the server already applied every effect.
func (s *Store) showChanceCardModal(st *State, r *DrawCardResult) {
	moved := r.NewPosition != nil
	canBuy := r.CanBuyLand
	toll := 0
	if r.TollAmount != nil {
		toll = *r.TollAmount
	}
	landOwner := r.LandOwner
	var dest int
	if moved {
		dest = normalizePosition(*r.NewPosition, len(st.Board))
	}

	st.Modal = Modal{
		Kind:      ModalChanceCard,
		TileIndex: -1,
		Text:      fmt.Sprintf("%s: %s", r.CardName, r.EffectDescription),
		OnConfirm: func(st *State, eff *Effects) {
			if moved {
				// The landing tile was already resolved server-side; flag it
				// so the pending move animation does not resolve it again.
				st.ProcessingChanceCard = true

				if canBuy {
					if tile := st.TileAt(dest); tile != nil {
						st.Modal = Modal{Kind: ModalBuyProperty, TileIndex: dest}
						return
					}
				} else if toll > 0 {
					s.pushToast(st, eff, ToastInfo, "Toll paid",
						fmt.Sprintf("Paid %d to %s", toll, landOwner))
				}
			}
			s.endTurn(st, eff)
		},
	}
}

// ----------------------------------------------------------------------------
// Economy
// ----------------------------------------------------------------------------

func (s *Store) handleEconomicHistory(p EconomicHistoryPayload) {
	s.update(func(st *State, eff *Effects) {
		era := &EconomicEra{
			PeriodName:     p.PeriodName,
			EffectName:     p.EffectName,
			Description:    p.Description,
			FullName:       p.FullName,
			RemainingTurns: p.RemainingTurns,
		}
		if p.IsBoom != nil {
			era.Boom = *p.IsBoom
		} else if p.Boom != nil {
			era.Boom = *p.Boom
		}
		if p.SalaryMultiplier != nil {
			era.SalaryMultiplier = *p.SalaryMultiplier
		}
		if p.TollMultiplier != nil {
			era.TollMultiplier = *p.TollMultiplier
		}
		if p.PropertyMultiplier != nil {
			era.PropertyMultiplier = *p.PropertyMultiplier
		}
		if p.BuildingMultiplier != nil {
			era.BuildingMultiplier = *p.BuildingMultiplier
		}
		st.Economy = era

		// Toll and price columns ride along with the era change.
		if p.CurrentMap != nil && len(p.CurrentMap.Cells) > 0 {
			st.Board = buildBoard(p.CurrentMap.Cells)
			applyBuildingLevels(st.Board, p.CurrentMap.Cells)
		}

		// Announce each era at most once per turn.
		if p.PeriodName != "" && p.EffectName != "" && p.RemainingTurns > 0 &&
			st.LastEconomyToastTurn != st.CurrentTurn {
			title := era.FullName
			if title == "" {
				title = fmt.Sprintf("%s: %s", era.PeriodName, era.EffectName)
			}
			s.pushToast(st, eff, ToastInfo, title, p.Description)
			st.LastEconomyToastTurn = st.CurrentTurn
		}
	})
}

// ----------------------------------------------------------------------------
// Construction
// ----------------------------------------------------------------------------

func (s *Store) handleConstructBuilding(p ConstructPayload) {
	s.update(func(st *State, eff *Effects) {
		if !p.Result || p.UpdatedAsset == nil {
			// Only the requester unwinds through the failure prompt;
			// everyone else has nothing in flight.
			builder := st.PlayerByName(p.Nickname)
			if builder == nil || !s.isViewer(builder) {
				return
			}
			text := p.Message
			if text == "" {
				text = "Construction failed. Please try again."
			}
			st.Modal = Modal{
				Kind:      ModalInfo,
				TileIndex: -1,
				Text:      text,
				OnConfirm: func(st *State, eff *Effects) {
					s.endTurn(st, eff)
				},
			}
			return
		}

		builder := st.PlayerByName(p.Nickname)
		if builder != nil {
			if p.UpdatedAsset.Money != nil {
				builder.Money = *p.UpdatedAsset.Money
			}
			if p.UpdatedAsset.Lands != nil {
				builder.Properties = p.UpdatedAsset.Lands
			}
			// Position is deliberately untouched; construction never moves
			// a token.
		}
		if tile := st.TileAt(p.LandNum); tile != nil {
			tile.Building.Level = buildingLevelOf(p.BuildingType)
		}

		// Back to TILE_ACTION so the builder ends the turn by hand.
		st.Phase = PhaseTileAction
		st.ProcessingChanceCard = false

		if builder != nil {
			s.checkSpecialLandMonopoly(st, eff, builder)
		}
	})
}

// ----------------------------------------------------------------------------
// Jail
// ----------------------------------------------------------------------------

func (s *Store) handleJailEvent(p JailEventPayload) {
	s.update(func(st *State, eff *Effects) {
		if p.Result == nil {
			log.Printf("JAIL_EVENT without result: %+v", p)
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: "Received a malformed response from the server. Please try again."}
			return
		}
		name := p.Who()
		if name == "" {
			log.Printf("JAIL_EVENT without player name")
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: "Received a malformed response from the server."}
			return
		}

		target := st.PlayerByName(name)
		if target != nil {
			if p.UpdatedAsset != nil {
				if p.UpdatedAsset.Money != nil {
					target.Money = *p.UpdatedAsset.Money
				}
				if p.UpdatedAsset.Lands != nil {
					target.Properties = p.UpdatedAsset.Lands
				}
			}
			// Same release race as roster snapshots: a player this client
			// already freed stays free.
			alreadyReleased := !target.InJail && target.JailTurns == 0
			if !(alreadyReleased && p.Turns > 0) {
				target.InJail = p.Turns > 0
				target.JailTurns = p.Turns
			}
		}

		escaped := *p.Result
		mine := target != nil && s.isViewer(target) &&
			st.CurrentPlayer() != nil && st.CurrentPlayer().Name == name

		if mine {
			if escaped {
				st.Phase = PhaseWaitingForRoll
				st.Modal = Modal{
					Kind:      ModalInfo,
					TileIndex: -1,
					Text:      "Bail paid, you are out of jail! You may roll the dice this turn.",
				}
			} else {
				text := fmt.Sprintf("Bail payment failed. Jail turns remaining: %d", p.Turns)
				if p.ErrorMessage != "" {
					text = "Jail escape failed: " + p.ErrorMessage
				}
				st.Modal = Modal{Kind: ModalInfo, TileIndex: -1, Text: text}
			}
			return
		}

		if escaped {
			s.pushToast(st, eff, ToastSuccess, "Bail paid",
				fmt.Sprintf("%s paid bail and left jail", name))
		} else {
			s.pushToast(st, eff, ToastWarning, "Jail escape failed",
				fmt.Sprintf("%s failed to leave jail (%d turns left)", name, p.Turns))
		}
		st.Modal = noModal()
	})
}

func (s *Store) handleInvalidJailState(p InvalidJailStatePayload) {
	s.update(func(st *State, eff *Effects) {
		text := p.Message
		if text == "" {
			switch p.Code {
			case "JAIL_FIRST_TURN":
				text = "Bail cannot be paid on the turn you were jailed. Try again next turn."
			case "NOT_IN_JAIL":
				text = "You are not in jail, no bail to pay."
			case "INSUFFICIENT_FUNDS":
				text = "Not enough money for bail."
			default:
				text = "Jail state is inconsistent."
			}
		}
		st.Modal = Modal{Kind: ModalInfo, TileIndex: -1, Text: text}
	})
}

// ----------------------------------------------------------------------------
// World travel
// ----------------------------------------------------------------------------

func (s *Store) handleWorldTravel(p WorldTravelPayload) {
	s.update(func(st *State, eff *Effects) {
		if p.Result == nil || !*p.Result {
			log.Printf("World travel failed for %s", p.Nickname)
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: "World travel failed. Please try again."}
			return
		}

		traveler := st.PlayerByName(p.Nickname)
		if traveler != nil {
			traveler.Position.Confirm(normalizePosition(p.EndLand, len(st.Board)))
			traveler.Traveling = false
			if p.TravelerAsset != nil {
				if p.TravelerAsset.Money != nil {
					traveler.Money = *p.TravelerAsset.Money
				}
				if p.TravelerAsset.Lands != nil {
					traveler.Properties = p.TravelerAsset.Lands
				}
			}
		}
		if p.LandOwner != "" && p.OwnerAsset != nil {
			if owner := st.PlayerByName(p.LandOwner); owner != nil {
				if p.OwnerAsset.Money != nil {
					owner.Money = *p.OwnerAsset.Money
				}
				if p.OwnerAsset.Lands != nil {
					owner.Properties = p.OwnerAsset.Lands
				}
			}
		}

		st.Phase = PhaseTileAction
		st.Modal = noModal()

		// The landing tile resolves immediately, but only on the traveler's
		// own turn.
		if traveler != nil && st.CurrentPlayer() != nil && st.CurrentPlayer().ID == traveler.ID {
			s.handleTileAction(st, eff)
		}
	})
}

// ----------------------------------------------------------------------------
// Tax office
// ----------------------------------------------------------------------------

func (s *Store) handleTaxEvent(p TaxEventPayload) {
	if p.Nickname == "" {
		log.Printf("NTS_EVENT without nickname, ignoring")
		return
	}
	s.update(func(st *State, eff *Effects) {
		payer := st.PlayerByName(p.Nickname)
		if payer != nil && p.UpdatedAsset != nil {
			if p.UpdatedAsset.Money != nil {
				payer.Money = *p.UpdatedAsset.Money
			}
			if p.UpdatedAsset.Lands != nil {
				payer.Properties = p.UpdatedAsset.Lands
			}
		}

		actor := st.CurrentPlayer()
		mine := payer != nil && s.isViewer(payer) && actor != nil && actor.Name == p.Nickname
		if mine {
			amount := p.TaxAmount
			st.Modal = Modal{
				Kind:      ModalTax,
				TileIndex: -1,
				Text:      fmt.Sprintf("Tax office! You paid %d in taxes.", amount),
				TaxAmount: amount,
				OnConfirm: func(st *State, eff *Effects) {
					balance := 0
					if payer := st.PlayerByName(p.Nickname); payer != nil {
						balance = payer.Money
					}
					s.pushToast(st, eff, ToastSuccess, "Tax paid",
						fmt.Sprintf("Paid %d (balance %d)", amount, balance))
					s.endTurn(st, eff)
				},
			}
			return
		}
		s.pushToast(st, eff, ToastInfo, "Tax paid",
			fmt.Sprintf("%s paid %d in taxes", p.Nickname, p.TaxAmount))
	})
}

// ----------------------------------------------------------------------------
// Server errors and game end
// ----------------------------------------------------------------------------

func (s *Store) handleInternalServerError(p ServerErrorPayload) {
	s.update(func(st *State, eff *Effects) {
		switch {
		case st.Phase == PhaseWorldTravelMove:
			// Travel collapsed server-side; put everyone back on the ground.
			log.Printf("Server error during world travel, restoring state")
			for i := range st.Players {
				st.Players[i].Traveling = false
			}
			text := p.Message
			if text == "" {
				text = "Internal server error. Please try again."
			}
			st.Phase = PhaseWaitingForRoll
			st.Modal = Modal{
				Kind:      ModalInfo,
				TileIndex: -1,
				Text:      text,
				OnConfirm: func(st *State, eff *Effects) {
					s.endTurn(st, eff)
				},
			}

		case st.Phase == PhaseDiceRolling:
			log.Printf("Server error during dice roll, reverting to WAITING_FOR_ROLL")
			st.Phase = PhaseWaitingForRoll
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: "The server game state hit an error. Re-synchronizing; please try again shortly."}

		default:
			text := p.Message
			if text == "" {
				text = "Internal server error."
			}
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1, Text: text}
		}
	})
}

func (s *Store) handleInvalidBehavior(p ServerErrorPayload) {
	s.update(func(st *State, eff *Effects) {
		text := p.Message
		if text == "" {
			text = "The server rejected the last action."
		}
		s.pushToast(st, eff, ToastError, "Rejected action", text)

		// Speculative phases unwind to a safe waiting state.
		if st.Phase == PhaseDiceRolling || st.Phase == PhasePlayerMoving {
			st.Phase = PhaseWaitingForRoll
			st.Modal = noModal()
		}
	})
}

func (s *Store) handleGameEnd(p GameEndPayload) {
	s.update(func(st *State, eff *Effects) {
		winner := p.Winner()
		st.Phase = PhaseGameOver
		st.Modal = noModal()
		st.WinnerID = ""
		if winner != "" {
			if pl := st.PlayerByName(winner); pl != nil {
				st.WinnerID = pl.ID
			}
		}
		log.Printf("Game over: winner=%q reason=%q", winner, p.VictoryReason)
	})
}
