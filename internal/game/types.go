package game

import "time"

type GamePhase string

const (
	PhaseSelectingOrder    GamePhase = "SELECTING_ORDER"
	PhaseWaitingForRoll    GamePhase = "WAITING_FOR_ROLL"
	PhaseDiceRolling       GamePhase = "DICE_ROLLING"
	PhasePlayerMoving      GamePhase = "PLAYER_MOVING"
	PhaseTileAction        GamePhase = "TILE_ACTION"
	PhaseWaitingForTurnEnd GamePhase = "WAITING_FOR_TURN_END"
	PhaseManageProperty    GamePhase = "MANAGE_PROPERTY"
	PhaseWorldTravelMove   GamePhase = "WORLD_TRAVEL_MOVE"
	PhaseGameOver          GamePhase = "GAME_OVER"
)

type TileType string

const (
	TileNormal  TileType = "NORMAL"
	TileSpecial TileType = "SPECIAL"
	TileChance  TileType = "CHANCE"
	TileJail    TileType = "JAIL"
	TileStart   TileType = "START"
	TileTravel  TileType = "AIRPLANE"
	TileTax     TileType = "NTS"
)

// TrackedPosition keeps the locally predicted board index next to the last
// server-confirmed one. Once a confirmed value exists it always wins; a new
// prediction is only a guess until the server echoes it back.
type TrackedPosition struct {
	Predicted    int
	Confirmed    int
	HasConfirmed bool
}

// Value returns the position the rest of the engine should act on.
func (p TrackedPosition) Value() int {
	if p.HasConfirmed {
		return p.Confirmed
	}
	return p.Predicted
}

// Predict records a locally computed position without confirming it.
func (p *TrackedPosition) Predict(pos int) {
	p.Predicted = pos
	p.HasConfirmed = false
}

// Confirm records an authoritative server position. The prediction is
// collapsed onto it so a later Predict starts from the confirmed point.
func (p *TrackedPosition) Confirm(pos int) {
	p.Confirmed = pos
	p.Predicted = pos
	p.HasConfirmed = true
}

type Player struct {
	ID         string
	Name       string
	Money      int
	Position   TrackedPosition
	Character  string
	Properties []int
	InJail     bool
	JailTurns  int
	Traveling  bool
	LapCount   int

	// Server-computed net worth. When present it overrides the locally
	// summed figure in game-over rankings.
	TotalAsset *int
}

// OwnsProperty reports whether the tile index is in the player's holdings.
func (p *Player) OwnsProperty(index int) bool {
	for _, idx := range p.Properties {
		if idx == index {
			return true
		}
	}
	return false
}

type Building struct {
	Level int // 0 none, 1 house, 2 building, 3 hotel
}

type Tile struct {
	Name          string
	Type          TileType
	LandPrice     int
	BuildingPrice int
	HousePrice    int
	HotelPrice    int
	Toll          int
	Building      Building
	Description   string
}

type ModalKind string

const (
	ModalNone            ModalKind = "NONE"
	ModalBuyProperty     ModalKind = "BUY_PROPERTY"
	ModalBuySpecialLand  ModalKind = "BUY_SPECIAL_LAND"
	ModalAcquireProperty ModalKind = "ACQUIRE_PROPERTY"
	ModalChanceCard      ModalKind = "CHANCE_CARD"
	ModalInfo            ModalKind = "INFO"
	ModalJail            ModalKind = "JAIL"
	ModalExpo            ModalKind = "EXPO"
	ModalManageProperty  ModalKind = "MANAGE_PROPERTY"
	ModalTax             ModalKind = "NTS"
)

// Modal describes the single interactive prompt a presentation layer should
// show. Kind NONE means nothing is open; TileIndex is -1 when no tile is
// attached.
type Modal struct {
	Kind        ModalKind
	TileIndex   int
	Text        string
	AcquireCost int
	Toll        int
	TollPaid    bool
	TaxAmount   int
	Properties  []int // candidate tile indexes for expo selection

	// OnConfirm runs inside the store when the viewer confirms the modal.
	// Nil means confirmation just closes it.
	OnConfirm func(*State, *Effects)
}

func noModal() Modal {
	return Modal{Kind: ModalNone, TileIndex: -1}
}

type ToastSeverity string

const (
	ToastInfo    ToastSeverity = "info"
	ToastSuccess ToastSeverity = "success"
	ToastWarning ToastSeverity = "warning"
	ToastError   ToastSeverity = "error"
)

type Toast struct {
	ID       string
	Severity ToastSeverity
	Title    string
	Message  string
	Duration time.Duration
	Created  time.Time
}

// EconomicEra is the active global economy effect. Multipliers default to 1
// when the server omits them.
type EconomicEra struct {
	PeriodName         string
	EffectName         string
	FullName           string
	Description        string
	Boom               bool
	RemainingTurns     int
	SalaryMultiplier   float64
	TollMultiplier     float64
	PropertyMultiplier float64
	BuildingMultiplier float64
}

// PendingTileCost holds server-declared costs that arrived with the dice
// result. The next tile resolution consumes it exactly once.
type PendingTileCost struct {
	TollAmount      *int
	AcquisitionCost *int
}

// State is the whole client aggregate. Every field is owned by the Store and
// only mutated through Store.update.
type State struct {
	GameID               string
	Players              []Player
	Board                []Tile
	CurrentPlayerIndex   int
	Phase                GamePhase
	Dice                 [2]int
	WinnerID             string
	Modal                Modal
	TotalTurns           int
	CurrentTurn          int
	ExpoLocation         int // -1 when no expo is placed
	ServerDiceSum        int
	ServerPosition       *int // one-shot authoritative landing position
	Economy              *EconomicEra
	LastEconomyToastTurn int
	LastSalaryBonus      int
	Toasts               []Toast
	PendingTileCost      *PendingTileCost

	// Concurrency bookkeeping.
	ProcessingChanceCard bool
	UpdatingPosition     bool
	SyncErrorCount       int
	LastSyncCheck        time.Time
}

// CurrentPlayer returns the acting player, or nil when the roster or index is
// not in a usable state.
func (s *State) CurrentPlayer() *Player {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return nil
	}
	return &s.Players[s.CurrentPlayerIndex]
}

// PlayerByName finds a roster entry by nickname.
func (s *State) PlayerByName(name string) *Player {
	for i := range s.Players {
		if s.Players[i].Name == name {
			return &s.Players[i]
		}
	}
	return nil
}

// PlayerByID finds a roster entry by id, falling back to nickname. Server
// payloads are inconsistent about which one they carry.
func (s *State) PlayerByID(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return s.PlayerByName(id)
}

// TileAt returns the tile at a board index, or nil when out of range.
func (s *State) TileAt(index int) *Tile {
	if index < 0 || index >= len(s.Board) {
		return nil
	}
	return &s.Board[index]
}

// OwnerOf returns the player owning the tile index, or nil.
func (s *State) OwnerOf(index int) *Player {
	for i := range s.Players {
		if s.Players[i].OwnsProperty(index) {
			return &s.Players[i]
		}
	}
	return nil
}
