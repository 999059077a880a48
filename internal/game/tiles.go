package game

import (
	"fmt"
	"log"
	"sort"
	"time"
)

const observerTurnEndDelay = 100 * time.Millisecond

// handleCityTile resolves a landing on ordinary buildable land: buy it, pay
// its owner, or manage what is already yours.
func (s *Store) handleCityTile(st *State, eff *Effects, actor *Player, tile *Tile) {
	index := actor.Position.Value()
	pendingToll, pendingAcq := consumePendingCost(st)
	owner := st.OwnerOf(index)

	switch {
	case owner == nil:
		if !s.isViewer(actor) {
			st.Modal = noModal()
			return
		}
		price := st.adjustedLandPrice(tile)
		if actor.Money >= price {
			st.Modal = Modal{Kind: ModalBuyProperty, TileIndex: index}
		} else {
			st.Modal = noModal()
		}

	case owner.ID != actor.ID:
		toll := st.adjustedToll(index, tile)
		if pendingToll != nil {
			// The server quoted the exact toll with the dice result.
			toll = *pendingToll
		}
		forcedSale := s.payToll(st, eff, actor, owner, tile, toll)

		// The forced-sale notice takes the prompt slot over the buyout offer.
		if s.isViewer(actor) && !forcedSale {
			cost := acquisitionMultiplier * st.adjustedLandPrice(tile)
			if pendingAcq != nil {
				cost = *pendingAcq
			}
			st.Modal = Modal{
				Kind:        ModalAcquireProperty,
				TileIndex:   index,
				AcquireCost: cost,
				Toll:        toll,
				TollPaid:    true,
			}
		}

	default:
		if tile.Type == TileNormal && tile.Building.Level < 3 && s.isViewer(actor) {
			st.Phase = PhaseManageProperty
			st.Modal = Modal{Kind: ModalManageProperty, TileIndex: index}
			return
		}
		s.pushToast(st, eff, ToastInfo, "Your land",
			fmt.Sprintf("%s rests on their own land", actor.Name))
		s.endTurn(st, eff)
	}
}

// handleSpecialTile resolves the non-buyable board features.
func (s *Store) handleSpecialTile(st *State, eff *Effects, actor *Player, tile *Tile) {
	switch tile.Type {
	case TileSpecial:
		s.handleSpecialLandInteraction(st, eff, actor, tile)

	case TileJail:
		actor.InJail = true
		actor.JailTurns = jailSentenceTurns
		if s.isViewer(actor) {
			st.Modal = Modal{
				Kind:      ModalInfo,
				TileIndex: actor.Position.Value(),
				Text: fmt.Sprintf("Arrested! You are stuck in jail for %d turns unless you pay bail.",
					jailSentenceTurns),
				OnConfirm: func(st *State, eff *Effects) {
					s.endTurn(st, eff)
				},
			}
			return
		}
		s.pushToast(st, eff, ToastWarning, "Jailed",
			fmt.Sprintf("%s was sent to jail", actor.Name))

	case TileStart:
		if st.LastSalaryBonus > 0 {
			s.pushToast(st, eff, ToastSuccess, "Salary",
				fmt.Sprintf("%s landed on the start tile and collected %d", actor.Name, st.LastSalaryBonus))
		}
		if s.isViewer(actor) {
			s.endTurn(st, eff)
			return
		}
		idx := st.CurrentPlayerIndex
		eff.After(observerTurnEndDelay, guardStillTurnOf(idx), func(st *State, eff *Effects) {
			s.endTurn(st, eff)
		})

	case TileTravel:
		if actor.InJail {
			s.pushToast(st, eff, ToastWarning, "No travel",
				fmt.Sprintf("%s cannot board a flight from jail", actor.Name))
			if s.isViewer(actor) {
				s.endTurn(st, eff)
			}
			return
		}
		actor.Traveling = true
		if s.isViewer(actor) {
			st.Modal = Modal{
				Kind:      ModalInfo,
				TileIndex: actor.Position.Value(),
				Text:      "World travel! On your next turn you will fly to any tile you choose.",
				OnConfirm: func(st *State, eff *Effects) {
					st.Phase = PhaseWaitingForRoll
					s.endTurn(st, eff)
				},
			}
		}

	case TileTax:
		if s.isViewer(actor) {
			eff.Send(destTax(st.GameID), TypeTaxEvent, TaxRequest{
				Nickname: actor.Name,
				PayTax:   true,
			})
		}
		// The NTS_EVENT response drives the rest; stay in TILE_ACTION.

	default:
		s.endTurn(st, eff)
	}
}

// handleSpecialLandInteraction resolves a landmark tile. Landmarks can be
// bought but never acquired from their owner and never built on.
func (s *Store) handleSpecialLandInteraction(st *State, eff *Effects, actor *Player, tile *Tile) {
	index := actor.Position.Value()
	pendingToll, pendingAcq := consumePendingCost(st)
	owner := st.OwnerOf(index)

	switch {
	case owner == nil:
		if !s.isViewer(actor) {
			st.Modal = noModal()
			return
		}
		price := st.adjustedLandPrice(tile)
		if pendingAcq != nil {
			price = *pendingAcq
		}
		st.Modal = Modal{
			Kind:        ModalBuySpecialLand,
			TileIndex:   index,
			AcquireCost: price,
		}

	case owner.ID != actor.ID:
		toll := st.adjustedToll(index, tile)
		if pendingToll != nil {
			toll = *pendingToll
		}
		s.payToll(st, eff, actor, owner, tile, toll)
		if s.isViewer(actor) {
			s.pushToast(st, eff, ToastWarning, "Landmark toll",
				fmt.Sprintf("Paid %d for visiting %s", toll, tile.Name))
			idx := st.CurrentPlayerIndex
			eff.After(turnSettleDelay, guardStillTurnOf(idx), func(st *State, eff *Effects) {
				s.endTurn(st, eff)
			})
		}

	default:
		s.pushToast(st, eff, ToastInfo, "Your landmark",
			fmt.Sprintf("%s visits their own landmark %s", actor.Name, tile.Name))
		if s.isViewer(actor) {
			s.endTurn(st, eff)
		}
	}
}

// consumePendingCost takes the server-quoted toll/acquisition figures, if any.
// They apply to exactly one tile resolution.
func consumePendingCost(st *State) (toll, acquisition *int) {
	if st.PendingTileCost == nil {
		return nil, nil
	}
	toll = st.PendingTileCost.TollAmount
	acquisition = st.PendingTileCost.AcquisitionCost
	st.PendingTileCost = nil
	return toll, acquisition
}

// payToll moves toll money from the visitor to the owner, force-selling the
// visitor's land at the distressed rate when cash runs short. The server
// settles the real books; this keeps the local view coherent until a roster
// snapshot arrives. Reports whether a forced sale notice was shown.
func (s *Store) payToll(st *State, eff *Effects, visitor, owner *Player, tile *Tile, toll int) bool {
	if toll <= 0 {
		return false
	}

	forcedSale := false
	if visitor.Money < toll {
		sold := s.forceSellProperties(st, visitor, toll)
		if len(sold) > 0 && s.isViewer(visitor) {
			forcedSale = true
			names := make([]string, 0, len(sold))
			for _, idx := range sold {
				if t := st.TileAt(idx); t != nil {
					names = append(names, t.Name)
				}
			}
			st.Modal = Modal{
				Kind:      ModalInfo,
				TileIndex: -1,
				Text: fmt.Sprintf("Short on cash! Sold %v at a loss to cover the %d toll.",
					names, toll),
			}
		}
	}

	visitor.Money -= toll
	owner.Money += toll

	if s.isViewer(visitor) {
		severity := ToastWarning
		if visitor.Money < 0 {
			severity = ToastError
		}
		s.pushToast(st, eff, severity, "Toll",
			fmt.Sprintf("Paid %d to %s for %s", toll, owner.Name, tile.Name))
	} else if s.isViewer(owner) {
		s.pushToast(st, eff, ToastSuccess, "Toll collected",
			fmt.Sprintf("%s paid you %d for %s", visitor.Name, toll, tile.Name))
	}
	return forcedSale
}

// forceSellProperties liquidates holdings highest price first until the
// shortfall is covered. Returns the tile indexes sold.
func (s *Store) forceSellProperties(st *State, p *Player, needed int) []int {
	held := append([]int(nil), p.Properties...)
	sort.Slice(held, func(i, j int) bool {
		ti, tj := st.TileAt(held[i]), st.TileAt(held[j])
		pi, pj := 0, 0
		if ti != nil {
			pi = ti.LandPrice
		}
		if tj != nil {
			pj = tj.LandPrice
		}
		return pi > pj
	})

	var sold []int
	for _, idx := range held {
		if p.Money >= needed {
			break
		}
		tile := st.TileAt(idx)
		if tile == nil {
			continue
		}
		proceeds := int(float64(tile.LandPrice) * distressedSaleRate)
		p.Money += proceeds
		sold = append(sold, idx)
		tile.Building.Level = 0
		log.Printf("Force-sold tile %d (%s) for %d", idx, tile.Name, proceeds)
	}

	if len(sold) > 0 {
		kept := p.Properties[:0]
		for _, idx := range p.Properties {
			isSold := false
			for _, sidx := range sold {
				if sidx == idx {
					isSold = true
					break
				}
			}
			if !isSold {
				kept = append(kept, idx)
			}
		}
		p.Properties = kept
	}
	return sold
}

// checkSpecialLandMonopoly ends the game at once when one player holds every
// landmark tile.
func (s *Store) checkSpecialLandMonopoly(st *State, eff *Effects, p *Player) {
	for _, pos := range specialLandPositions {
		if !p.OwnsProperty(pos) {
			return
		}
	}

	log.Printf("Player %s owns every landmark, game over", p.Name)
	st.Phase = PhaseGameOver
	st.WinnerID = p.ID
	st.Modal = Modal{
		Kind:      ModalInfo,
		TileIndex: -1,
		Text:      fmt.Sprintf("%s owns every landmark and wins the game!", p.Name),
	}

	if s.isViewer(p) {
		eff.Send(destGameOver(st.GameID), TypeGameOver, GameOverRequest{
			WinnerID:     p.ID,
			WinnerName:   p.Name,
			WinCondition: "SPECIAL_LAND_MONOPOLY",
		})
	}
}
