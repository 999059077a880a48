package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePosition(t *testing.T) {
	assert.Equal(t, 3, normalizePosition(35, 32))
	assert.Equal(t, 0, normalizePosition(32, 32))
	assert.Equal(t, 31, normalizePosition(-1, 32))
	assert.Equal(t, 0, normalizePosition(5, 0))
}

func TestMovementPath(t *testing.T) {
	assert.Equal(t, []int{30, 31, 0, 1}, movementPath(29, 4, 32))
	assert.Nil(t, movementPath(0, 0, 32))
}

func TestBuildBoardFallbacks(t *testing.T) {
	board := buildBoard([]WireCell{
		{Name: "A", Type: "normal", LandPrice: 100},
		{Name: "B", Type: "WEIRD", Price: 250},
		{Name: "C", Type: "special", LandPrice: 300},
	})

	assert.Equal(t, TileNormal, board[0].Type)
	// Unknown types degrade to NORMAL, and price backfills landPrice.
	assert.Equal(t, TileNormal, board[1].Type)
	assert.Equal(t, 250, board[1].LandPrice)
	assert.Equal(t, TileSpecial, board[2].Type)
}

func TestSpecialLandPositions(t *testing.T) {
	assert.True(t, isSpecialLandPosition(5))
	assert.True(t, isSpecialLandPosition(31))
	assert.False(t, isSpecialLandPosition(6))
}

func TestBuildingTierRoundTrip(t *testing.T) {
	assert.Equal(t, "FIELD", buildingTypeName(0))
	assert.Equal(t, "VILLA", buildingTypeName(1))
	assert.Equal(t, "HOTEL", buildingTypeName(3))

	assert.Equal(t, 1, buildingLevelOf("VILLA"))
	assert.Equal(t, 1, buildingLevelOf("HOUSE"))
	assert.Equal(t, 2, buildingLevelOf("building"))
	assert.Equal(t, 0, buildingLevelOf("FIELD"))
	assert.Equal(t, 0, buildingLevelOf(""))
}

func TestAdjustedTollAppliesEconomyAndExpo(t *testing.T) {
	st := &State{
		Board:        testBoard(),
		ExpoLocation: -1,
		Economy:      &EconomicEra{TollMultiplier: 1.5},
	}
	tile := st.TileAt(8)
	assert.Equal(t, 30_000, st.adjustedToll(8, tile))

	st.ExpoLocation = 8
	assert.Equal(t, 60_000, st.adjustedToll(8, tile))
}

func TestNetWorthPrefersServerTotal(t *testing.T) {
	st := &State{Board: testBoard()}
	p := Player{Money: 100_000, Properties: []int{8}}
	p.TotalAsset = nil
	assert.Equal(t, 200_000, st.netWorth(&p))

	st.Board[8].Building.Level = 2
	assert.Equal(t, 300_000, st.netWorth(&p))

	total := 999
	p.TotalAsset = &total
	assert.Equal(t, 999, st.netWorth(&p))
}
