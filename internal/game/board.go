package game

import "strings"

const (
	defaultTotalTurns = 20
	recencyRingSize   = 16

	// Buyout of an owned property costs double its adjusted land price when
	// the server does not quote a figure.
	acquisitionMultiplier = 2

	// Forced sales return 80% of the land price.
	distressedSaleRate = 0.8

	jailSentenceTurns = 3
)

// specialLandPositions are the landmark tiles. They can be bought but never
// acquired from another player and never built on; owning all of them ends
// the game.
var specialLandPositions = []int{5, 13, 21, 28, 31}

func isSpecialLandPosition(index int) bool {
	for _, pos := range specialLandPositions {
		if pos == index {
			return true
		}
	}
	return false
}

// buildBoard converts server cells into engine tiles. Unknown tile types fall
// back to NORMAL so one bad cell cannot wedge the whole board.
func buildBoard(cells []WireCell) []Tile {
	board := make([]Tile, 0, len(cells))
	for _, cell := range cells {
		price := cell.LandPrice
		if price == 0 {
			price = cell.Price
		}
		board = append(board, Tile{
			Name:          cell.Name,
			Type:          tileTypeOf(cell.Type),
			LandPrice:     price,
			BuildingPrice: cell.BuildingPrice,
			HousePrice:    cell.HousePrice,
			HotelPrice:    cell.HotelPrice,
			Toll:          cell.Toll,
			Description:   cell.Description,
		})
	}
	return board
}

func tileTypeOf(raw string) TileType {
	switch TileType(strings.ToUpper(raw)) {
	case TileSpecial, TileChance, TileJail, TileStart, TileTravel, TileTax:
		return TileType(strings.ToUpper(raw))
	default:
		return TileNormal
	}
}

// normalizePosition clamps a position onto the board ring.
func normalizePosition(pos, boardLen int) int {
	if boardLen <= 0 {
		return 0
	}
	pos %= boardLen
	if pos < 0 {
		pos += boardLen
	}
	return pos
}

// movementPath lists the tiles stepped through from a start position, used by
// presentation layers to animate the hop sequence. The final element is the
// landing tile.
func movementPath(from, steps, boardLen int) []int {
	if boardLen <= 0 || steps <= 0 {
		return nil
	}
	path := make([]int, 0, steps)
	for i := 1; i <= steps; i++ {
		path = append(path, normalizePosition(from+i, boardLen))
	}
	return path
}

// buildingTypeName maps a construction tier to the wire name.
func buildingTypeName(level int) string {
	switch level {
	case 1:
		return "VILLA"
	case 2:
		return "BUILDING"
	case 3:
		return "HOTEL"
	default:
		return "FIELD"
	}
}

// buildingLevelOf is the inverse of buildingTypeName.
func buildingLevelOf(name string) int {
	switch strings.ToUpper(name) {
	case "VILLA", "HOUSE":
		// Map cells spell tier 1 as HOUSE; construction results say VILLA.
		return 1
	case "BUILDING":
		return 2
	case "HOTEL":
		return 3
	default:
		return 0
	}
}

// Economy-adjusted figures. Server-quoted amounts always take precedence over
// these; they exist for optimistic local math only.

func (s *State) adjustedLandPrice(t *Tile) int {
	if s.Economy == nil || s.Economy.PropertyMultiplier == 0 {
		return t.LandPrice
	}
	return int(float64(t.LandPrice) * s.Economy.PropertyMultiplier)
}

func (s *State) adjustedToll(index int, t *Tile) int {
	toll := t.Toll
	if s.Economy != nil && s.Economy.TollMultiplier != 0 {
		toll = int(float64(toll) * s.Economy.TollMultiplier)
	}
	// The expo doubles its host tile's toll.
	if s.ExpoLocation == index {
		toll *= 2
	}
	return toll
}

func (s *State) adjustedBuildingCost(t *Tile) int {
	cost := t.BuildingPrice
	if s.Economy != nil && s.Economy.BuildingMultiplier != 0 {
		cost = int(float64(cost) * s.Economy.BuildingMultiplier)
	}
	return cost
}

// netWorth sums cash plus land and building value. Used only when the server
// did not provide a totalAsset figure.
func (s *State) netWorth(p *Player) int {
	if p.TotalAsset != nil {
		return *p.TotalAsset
	}
	total := p.Money
	for _, idx := range p.Properties {
		tile := s.TileAt(idx)
		if tile == nil {
			continue
		}
		total += tile.LandPrice
		total += tile.Building.Level * tile.BuildingPrice
	}
	return total
}
