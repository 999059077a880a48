package game

import (
	"fmt"
	"log"
	"time"
)

const (
	// bailAmount is the fixed jail escape fee.
	bailAmount = 500_000

	rollResponseTimeout   = 3 * time.Second
	bailResponseTimeout   = 10 * time.Second
	travelResponseTimeout = 10 * time.Second
)

// RollDice starts the viewer's turn: jail bookkeeping first, then the dice
// request. The USE_DICE response drives everything after that.
func (s *Store) RollDice() {
	s.update(func(st *State, eff *Effects) {
		if st.Phase != PhaseWaitingForRoll {
			log.Printf("RollDice ignored in phase %s", st.Phase)
			return
		}

		actor := st.CurrentPlayer()
		if st.GameID == "" || len(st.Players) == 0 || len(st.Board) == 0 ||
			actor == nil || actor.Name == "" || actor.Position.Value() < 0 {
			log.Printf("RollDice with unusable game context")
			st.Phase = PhaseWaitingForRoll
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: "The game state is not ready. Please wait a moment and try again."}
			return
		}
		if !s.isViewer(actor) {
			log.Printf("RollDice ignored, not %s's turn", s.viewer)
			return
		}

		if actor.InJail {
			if actor.JailTurns <= 0 {
				// Stale flag; release and roll normally.
				actor.InJail = false
			} else if actor.JailTurns > 1 {
				st.Phase = PhaseTileAction
				st.Modal = Modal{
					Kind:      ModalJail,
					TileIndex: actor.Position.Value(),
					Text: fmt.Sprintf("In jail for %d more turns. Pay %d bail or wait it out.",
						actor.JailTurns, bailAmount),
				}
				return
			} else {
				s.handleJailTurn(st, eff, actor)
				return
			}
		}

		st.Phase = PhaseDiceRolling
		eff.Send(destRollDice(st.GameID), TypeUseDice, RollDiceRequest{UserName: actor.Name})

		// If no dice result lands, unwind so the player can retry.
		eff.After(rollResponseTimeout, guardPhase(PhaseDiceRolling), func(st *State, eff *Effects) {
			log.Printf("Dice result timed out, reverting to WAITING_FOR_ROLL")
			st.Phase = PhaseWaitingForRoll
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: "No dice result from the server. Please roll again."}
		})
	})
}

// handleJailTurn serves one turn of the sentence and releases the player when
// it reaches zero.
func (s *Store) handleJailTurn(st *State, eff *Effects, actor *Player) {
	actor.JailTurns--
	if actor.JailTurns <= 0 {
		actor.InJail = false
		actor.JailTurns = 0
		if s.isViewer(actor) {
			st.Phase = PhaseWaitingForRoll
			st.Modal = Modal{
				Kind:      ModalInfo,
				TileIndex: -1,
				Text:      "Sentence served! You are free and may roll the dice.",
			}
			return
		}
		s.pushToast(st, eff, ToastSuccess, "Released",
			fmt.Sprintf("%s served their sentence", actor.Name))
		idx := st.CurrentPlayerIndex
		eff.After(observerTurnEndDelay, guardStillTurnOf(idx), func(st *State, eff *Effects) {
			s.endTurn(st, eff)
		})
		return
	}

	if s.isViewer(actor) {
		st.Modal = Modal{
			Kind:      ModalInfo,
			TileIndex: -1,
			Text:      fmt.Sprintf("Still in jail. %d turns remaining.", actor.JailTurns),
			OnConfirm: func(st *State, eff *Effects) {
				s.endTurn(st, eff)
			},
		}
		return
	}
	s.pushToast(st, eff, ToastInfo, "In jail",
		fmt.Sprintf("%s waits out their sentence (%d turns left)", actor.Name, actor.JailTurns))
	idx := st.CurrentPlayerIndex
	eff.After(observerTurnEndDelay, guardStillTurnOf(idx), func(st *State, eff *Effects) {
		s.endTurn(st, eff)
	})
}

// PayBail asks the server to release the viewer for the fixed fee. The
// JAIL_EVENT response settles the outcome.
func (s *Store) PayBail() {
	s.update(func(st *State, eff *Effects) {
		actor := st.CurrentPlayer()
		if actor == nil || !s.isViewer(actor) {
			return
		}
		if !actor.InJail || actor.JailTurns <= 0 {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: "You are not in jail, no bail to pay."}
			return
		}
		if actor.Money < bailAmount {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: fmt.Sprintf("Bail costs %d and you only have %d.", bailAmount, actor.Money)}
			return
		}

		eff.Send(destJailEvent(st.GameID), TypeJailEvent, JailRequest{
			Nickname: actor.Name,
			Escape:   true,
		})

		waitingText := "Paying bail..."
		st.Modal = Modal{Kind: ModalInfo, TileIndex: -1, Text: waitingText}

		eff.After(bailResponseTimeout, func(st *State) bool {
			return st.Modal.Kind == ModalInfo && st.Modal.Text == waitingText
		}, func(st *State, eff *Effects) {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: "No response to the bail payment. Please try again."}
		})
	})
}

// BuyProperty confirms the open purchase prompt. Buying bare land is a
// FIELD-tier construction request; the server settles money and ownership.
func (s *Store) BuyProperty() {
	s.buyTile(ModalBuyProperty)
}

// BuySpecialLand confirms a landmark purchase.
func (s *Store) BuySpecialLand() {
	s.buyTile(ModalBuySpecialLand)
}

func (s *Store) buyTile(kind ModalKind) {
	s.update(func(st *State, eff *Effects) {
		if st.Modal.Kind != kind {
			return
		}
		actor := st.CurrentPlayer()
		tile := st.TileAt(st.Modal.TileIndex)
		if actor == nil || tile == nil || !s.isViewer(actor) {
			return
		}

		price := st.adjustedLandPrice(tile)
		if kind == ModalBuySpecialLand && st.Modal.AcquireCost > 0 {
			price = st.Modal.AcquireCost
		}
		if actor.Money < price {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: fmt.Sprintf("%s costs %d and you only have %d.", tile.Name, price, actor.Money)}
			return
		}

		eff.Send(destConstruct(st.GameID), TypeConstructBuilding, ConstructRequest{
			Nickname:           actor.Name,
			LandNum:            st.Modal.TileIndex,
			TargetBuildingType: buildingTypeName(0),
		})
		st.Modal = noModal()
	})
}

// AcquireProperty buys an owned tile out from under its owner at the quoted
// premium.
func (s *Store) AcquireProperty() {
	s.update(func(st *State, eff *Effects) {
		if st.Modal.Kind != ModalAcquireProperty {
			return
		}
		actor := st.CurrentPlayer()
		tile := st.TileAt(st.Modal.TileIndex)
		owner := st.OwnerOf(st.Modal.TileIndex)
		if actor == nil || tile == nil || owner == nil || !s.isViewer(actor) {
			return
		}

		cost := st.Modal.AcquireCost
		if actor.Money < cost {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: fmt.Sprintf("Acquiring %s costs %d and you only have %d.",
					tile.Name, cost, actor.Money)}
			return
		}

		eff.Send(destTradeLand(st.GameID), TypeTradeLand, TradeRequest{
			BuyerName:        actor.Name,
			SellerName:       owner.Name,
			LandNum:          st.Modal.TileIndex,
			IsAcquisition:    true,
			AcquisitionPrice: cost,
		})
		st.Modal = noModal()
	})
}

// BuildBuilding upgrades the tile under the open manage prompt by one tier.
// The money and level changes are optimistic; a failed CONSTRUCT_BUILDING
// unwinds them through the server response.
func (s *Store) BuildBuilding() {
	s.update(func(st *State, eff *Effects) {
		if st.Phase != PhaseManageProperty || st.Modal.Kind != ModalManageProperty {
			return
		}
		actor := st.CurrentPlayer()
		tile := st.TileAt(st.Modal.TileIndex)
		if actor == nil || tile == nil || !s.isViewer(actor) {
			return
		}

		if tile.BuildingPrice <= 0 {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: fmt.Sprintf("Nothing can be built on %s.", tile.Name)}
			return
		}
		if tile.Building.Level >= 3 {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: fmt.Sprintf("%s already has a hotel.", tile.Name)}
			return
		}
		cost := st.adjustedBuildingCost(tile)
		if actor.Money < cost {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: fmt.Sprintf("Building costs %d and you only have %d.", cost, actor.Money)}
			return
		}
		// One lap of seniority per tier: a hotel needs three completed laps.
		if actor.LapCount <= tile.Building.Level {
			st.Modal = Modal{Kind: ModalInfo, TileIndex: -1,
				Text: fmt.Sprintf("You need %d completed laps to build here (you have %d).",
					tile.Building.Level+1, actor.LapCount)}
			return
		}

		actor.Money -= cost
		tile.Building.Level++
		newTier := buildingTypeName(tile.Building.Level)

		eff.Send(destConstruct(st.GameID), TypeConstructBuilding, ConstructRequest{
			Nickname:           actor.Name,
			LandNum:            st.Modal.TileIndex,
			TargetBuildingType: newTier,
		})

		st.Modal = Modal{
			Kind:      ModalInfo,
			TileIndex: st.Modal.TileIndex,
			Text:      fmt.Sprintf("Built a %s on %s for %d.", newTier, tile.Name, cost),
			OnConfirm: func(st *State, eff *Effects) {
				s.endTurn(st, eff)
			},
		}
	})
}

// SelectExpoProperty places the expo on one of the viewer's tiles, doubling
// its toll.
func (s *Store) SelectExpoProperty(index int) {
	s.update(func(st *State, eff *Effects) {
		actor := st.CurrentPlayer()
		if actor == nil || !s.isViewer(actor) || !actor.OwnsProperty(index) {
			return
		}
		tile := st.TileAt(index)
		if tile == nil {
			return
		}
		st.ExpoLocation = index
		st.Modal = Modal{
			Kind:      ModalInfo,
			TileIndex: index,
			Text:      fmt.Sprintf("The expo opens on %s! Its toll is doubled while it runs.", tile.Name),
			OnConfirm: func(st *State, eff *Effects) {
				s.endTurn(st, eff)
			},
		}
	})
}

// StartWorldTravelSelection re-enters destination picking, for a UI that left
// it (for example by closing the board overlay).
func (s *Store) StartWorldTravelSelection() {
	s.update(func(st *State, eff *Effects) {
		actor := st.CurrentPlayer()
		if actor == nil || !s.isViewer(actor) || !actor.Traveling {
			return
		}
		st.Phase = PhaseWorldTravelMove
		st.Modal = noModal()
	})
}

// CancelWorldTravel backs out of destination picking without flying.
func (s *Store) CancelWorldTravel() {
	s.update(func(st *State, eff *Effects) {
		if st.Phase != PhaseWorldTravelMove {
			return
		}
		st.Phase = PhaseWaitingForRoll
	})
}

// SelectTravelDestination flies the viewer to the chosen tile. The
// WORLD_TRAVEL_EVENT response lands the token and resolves the tile.
func (s *Store) SelectTravelDestination(destination int) {
	s.update(func(st *State, eff *Effects) {
		if st.Phase != PhaseWorldTravelMove {
			log.Printf("Travel destination ignored in phase %s", st.Phase)
			return
		}
		actor := st.CurrentPlayer()
		if actor == nil || !s.isViewer(actor) {
			return
		}
		if destination < 0 || destination >= len(st.Board) {
			log.Printf("Travel destination %d out of range", destination)
			return
		}

		eff.Send(destWorldTravel(st.GameID), TypeWorldTravelEvent, TravelRequest{
			Nickname:    actor.Name,
			Destination: destination,
		})

		waitingText := "Traveling the world..."
		st.Phase = PhaseTileAction
		st.Modal = Modal{Kind: ModalInfo, TileIndex: destination, Text: waitingText}

		eff.After(travelResponseTimeout, func(st *State) bool {
			return st.Modal.Kind == ModalInfo && st.Modal.Text == waitingText
		}, func(st *State, eff *Effects) {
			log.Printf("World travel response timed out")
			st.Phase = PhaseWaitingForRoll
			st.Modal = Modal{
				Kind:      ModalInfo,
				TileIndex: -1,
				Text:      "No response to the travel request. Your turn will end.",
				OnConfirm: func(st *State, eff *Effects) {
					s.endTurn(st, eff)
				},
			}
		})
	})
}

// EndTurn lets the viewer end their turn by hand, declining whatever prompt
// is open.
func (s *Store) EndTurn() {
	s.update(func(st *State, eff *Effects) {
		actor := st.CurrentPlayer()
		if actor == nil || !s.isViewer(actor) {
			return
		}
		st.Modal = noModal()
		s.endTurn(st, eff)
	})
}
