package game

import (
	"encoding/json"
	"fmt"
)

// Inbound topics (server -> client).
const (
	TopicGameStateChange     = "GAME_STATE_CHANGE"
	TopicStartGameObserve    = "START_GAME_OBSERVE"
	TopicTurnChange          = "TURN_CHANGE"
	TopicUseDice             = "USE_DICE"
	TopicTradeLand           = "TRADE_LAND"
	TopicDrawCard            = "DRAW_CARD"
	TopicChanceCard          = "CHANCE_CARD" // legacy alias of DRAW_CARD
	TopicEconomicHistory     = "ECONOMIC_HISTORY_UPDATE"
	TopicConstructBuilding   = "CONSTRUCT_BUILDING"
	TopicJailEvent           = "JAIL_EVENT"
	TopicInvalidJailState    = "INVALID_JAIL_STATE"
	TopicWorldTravelEvent    = "WORLD_TRAVEL_EVENT"
	TopicTaxEvent            = "NTS_EVENT"
	TopicGameEnd             = "GAME_END"
	TopicInternalServerError = "INTERNAL_SERVER_ERROR"
	TopicInvalidBehavior     = "INVALID_BEHAVIOR"
	TopicEnterRoomOK         = "ENTER_ROOM_OK"
	TopicEnterNewUser        = "ENTER_NEW_USER"
)

// Outbound message types (client -> server).
const (
	TypeUseDice           = "USE_DICE"
	TypeTurnSkip          = "TURN_SKIP"
	TypeConstructBuilding = "CONSTRUCT_BUILDING"
	TypeTradeLand         = "TRADE_LAND"
	TypeJailEvent         = "JAIL_EVENT"
	TypeWorldTravelEvent  = "WORLD_TRAVEL_EVENT"
	TypeTaxEvent          = "NTS_EVENT"
	TypeGameOver          = "GAME_OVER"
)

// Topics lists every inbound topic the engine subscribes to.
func Topics() []string {
	return []string{
		TopicGameStateChange,
		TopicStartGameObserve,
		TopicTurnChange,
		TopicUseDice,
		TopicTradeLand,
		TopicDrawCard,
		TopicChanceCard,
		TopicEconomicHistory,
		TopicConstructBuilding,
		TopicJailEvent,
		TopicInvalidJailState,
		TopicWorldTravelEvent,
		TopicTaxEvent,
		TopicGameEnd,
		TopicInternalServerError,
		TopicInvalidBehavior,
		TopicEnterRoomOK,
		TopicEnterNewUser,
	}
}

func destRollDice(gameID string) string { return fmt.Sprintf("/app/game/%s/roll-dice", gameID) }
func destEndTurn(gameID string) string  { return fmt.Sprintf("/app/game/%s/end-turn", gameID) }
func destConstruct(gameID string) string {
	return fmt.Sprintf("/app/game/%s/construct-building", gameID)
}
func destTradeLand(gameID string) string   { return fmt.Sprintf("/app/game/%s/trade-land", gameID) }
func destJailEvent(gameID string) string   { return fmt.Sprintf("/app/game/%s/jail-event", gameID) }
func destWorldTravel(gameID string) string { return fmt.Sprintf("/app/game/%s/world-travel", gameID) }
func destTax(gameID string) string         { return fmt.Sprintf("/app/game/%s", gameID) }
func destGameOver(gameID string) string    { return fmt.Sprintf("/app/game/%s/game-over", gameID) }

// ============================================================================
// SHARED WIRE FRAGMENTS
// ============================================================================

// WirePlayer is a roster entry as the server sends it. Field presence varies
// by topic, so everything positional is a pointer.
type WirePlayer struct {
	UserID          string `json:"userId"`
	AltID           string `json:"id"`
	Nickname        string `json:"nickname"`
	Money           *int   `json:"money"`
	Position        *int   `json:"position"`
	OwnedProperties []int  `json:"ownedProperties"`
	InJail          *bool  `json:"inJail"`
	JailTurns       *int   `json:"jailTurns"`
	Traveling       *bool  `json:"isTraveling"`
	TotalAsset      *int   `json:"totalAsset"`
	TotalAssetAlt   *int   `json:"totalasset"` // some payloads lowercase it
}

// Key returns the stable identifier for roster matching.
func (w WirePlayer) Key() string {
	if w.UserID != "" {
		return w.UserID
	}
	if w.AltID != "" {
		return w.AltID
	}
	return w.Nickname
}

// Asset returns the server-computed net worth under either spelling.
func (w WirePlayer) Asset() *int {
	if w.TotalAsset != nil {
		return w.TotalAsset
	}
	return w.TotalAssetAlt
}

// WireRoster accepts the two shapes the server uses for player collections:
// a JSON array, or an object keyed by user id.
type WireRoster []WirePlayer

func (r *WireRoster) UnmarshalJSON(data []byte) error {
	var list []WirePlayer
	if err := json.Unmarshal(data, &list); err == nil {
		*r = list
		return nil
	}

	var keyed map[string]WirePlayer
	if err := json.Unmarshal(data, &keyed); err != nil {
		return fmt.Errorf("INVALID_ROSTER: players is neither array nor map: %w", err)
	}
	list = make([]WirePlayer, 0, len(keyed))
	for key, p := range keyed {
		if p.UserID == "" {
			p.UserID = key
		}
		list = append(list, p)
	}
	*r = list
	return nil
}

// WireAsset is the updatedAsset fragment carried by most game events.
type WireAsset struct {
	Money      *int  `json:"money"`
	Lands      []int `json:"lands"`
	TotalAsset *int  `json:"totalAsset"`
}

// WireCell is one board tile as the server ships it.
type WireCell struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	LandPrice     int    `json:"landPrice"`
	Price         int    `json:"price"` // older alias of landPrice
	BuildingPrice int    `json:"buildingPrice"`
	HousePrice    int    `json:"housePrice"`
	HotelPrice    int    `json:"hotelPrice"`
	Toll          int    `json:"toll"`
	BuildingType  string `json:"buildingType"`
	Description   string `json:"description"`
}

// ============================================================================
// GAME INIT (START_GAME_OBSERVE)
// ============================================================================
type GameInitPayload struct {
	RoomID             string     `json:"roomId"`
	PlayerOrder        []string   `json:"playerOrder"`
	Players            WireRoster `json:"players"`
	CurrentPlayerIndex int        `json:"currentPlayerIndex"`
	CurrentMap         *WireMap   `json:"currentMap"`
}

type WireMap struct {
	Cells []WireCell `json:"cells"`
}

// ============================================================================
// ROSTER / TURN SNAPSHOTS (GAME_STATE_CHANGE, TURN_CHANGE, TRADE_LAND)
// ============================================================================
type GameStateChangePayload struct {
	CurPlayer string     `json:"curPlayer"` // set on turn-boundary snapshots
	GameTurn  *int       `json:"gameTurn"`
	Players   WireRoster `json:"players"`
}

type TurnChangePayload struct {
	CurrentPlayerIndex int `json:"currentPlayerIndex"`
}

type TradeLandPayload struct {
	Players WireRoster `json:"players"`
}

// ============================================================================
// DICE RESULT (USE_DICE)
// ============================================================================
type UseDicePayload struct {
	UserName        string     `json:"userName"`
	DiceNum1        int        `json:"diceNum1"`
	DiceNum2        int        `json:"diceNum2"`
	DiceNumSum      int        `json:"diceNumSum"`
	CurTurn         int        `json:"curTurn"`
	CurrentPosition int        `json:"currentPosition"`
	SalaryBonus     int        `json:"salaryBonus"`
	CanBuyLand      bool       `json:"canBuyLand"`
	TollAmount      *int       `json:"tollAmount"`
	AcquisitionCost *int       `json:"acquisitionCost"`
	UpdatedAsset    *WireAsset `json:"updatedAsset"`
}

// Fingerprint identifies a dice announcement for dedup purposes.
func (p UseDicePayload) Fingerprint() string {
	return fmt.Sprintf("%s-%d-%d-%d", p.UserName, p.CurTurn, p.DiceNum1, p.DiceNum2)
}

// ============================================================================
// CHANCE CARD (DRAW_CARD / CHANCE_CARD)
// ============================================================================
type DrawCardPayload struct {
	UserName string          `json:"userName"`
	Result   *DrawCardResult `json:"result"`
}

type DrawCardResult struct {
	UserName          string `json:"userName"`
	CardName          string `json:"cardName"`
	EffectDescription string `json:"effectDescription"`
	MoneyChange       *int   `json:"moneyChange"`
	NewPosition       *int   `json:"newPosition"`
	JailStatus        *bool  `json:"jailStatus"`
	FinancialPolicy   bool   `json:"isFinancialPolicy"`
	AffectsEveryone   bool   `json:"affectsEveryone"`

	// Move-card toll settlement.
	TollAmount *int   `json:"tollAmount"`
	LandOwner  string `json:"landOwner"`
	CanBuyLand bool   `json:"canBuyLand"`
}

// ============================================================================
// ECONOMY (ECONOMIC_HISTORY_UPDATE)
// ============================================================================
type EconomicHistoryPayload struct {
	PeriodName         string   `json:"economicPeriodName"`
	EffectName         string   `json:"economicEffectName"`
	Description        string   `json:"economicDescription"`
	FullName           string   `json:"economicFullName"`
	IsBoom             *bool    `json:"isBoom"`
	Boom               *bool    `json:"boom"` // older server spelling
	RemainingTurns     int      `json:"remainingTurns"`
	SalaryMultiplier   *float64 `json:"salaryMultiplier"`
	TollMultiplier     *float64 `json:"tollMultiplier"`
	PropertyMultiplier *float64 `json:"propertyPriceMultiplier"`
	BuildingMultiplier *float64 `json:"buildingCostMultiplier"`
	CurrentMap         *WireMap `json:"currentMap"`
}

// ============================================================================
// CONSTRUCTION (CONSTRUCT_BUILDING)
// ============================================================================
type ConstructPayload struct {
	Result       bool       `json:"result"`
	Nickname     string     `json:"nickname"`
	LandNum      int        `json:"landNum"`
	BuildingType string     `json:"buildingType"`
	Message      string     `json:"message"`
	UpdatedAsset *WireAsset `json:"updatedAsset"`
}

// ============================================================================
// JAIL (JAIL_EVENT, INVALID_JAIL_STATE)
// ============================================================================
type JailEventPayload struct {
	Result       *bool      `json:"result"`
	UserName     string     `json:"userName"`
	Nickname     string     `json:"nickname"`
	Turns        int        `json:"turns"`
	UpdatedAsset *WireAsset `json:"updatedAsset"`
	ErrorMessage string     `json:"errorMessage"`
}

// Who returns whichever name field the server filled in.
func (p JailEventPayload) Who() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.UserName
}

type InvalidJailStatePayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ============================================================================
// WORLD TRAVEL (WORLD_TRAVEL_EVENT)
// ============================================================================
type WorldTravelPayload struct {
	Result        *bool      `json:"result"`
	Nickname      string     `json:"nickname"`
	StartLand     int        `json:"startLand"`
	EndLand       int        `json:"endLand"`
	LandOwner     string     `json:"landOwner"`
	TollAmount    *int       `json:"tollAmount"`
	TravelerAsset *WireAsset `json:"travelerAsset"`
	OwnerAsset    *WireAsset `json:"ownerAsset"`
}

// ============================================================================
// TAX OFFICE (NTS_EVENT)
// ============================================================================
type TaxEventPayload struct {
	Nickname     string     `json:"nickname"`
	TaxAmount    int        `json:"taxAmount"`
	UpdatedAsset *WireAsset `json:"updatedAsset"`
}

// ============================================================================
// GAME END (GAME_END) AND ERRORS
// ============================================================================
type GameEndPayload struct {
	WinnerName     string `json:"winnerName"`
	WinnerNickname string `json:"winnerNickname"`
	VictoryReason  string `json:"victoryReason"`
	GameEndTime    int64  `json:"gameEndTime"`
}

// Winner returns the nickname under either field name.
func (p GameEndPayload) Winner() string {
	if p.WinnerNickname != "" {
		return p.WinnerNickname
	}
	return p.WinnerName
}

type ServerErrorPayload struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// ============================================================================
// OUTBOUND REQUESTS
// ============================================================================
type RollDiceRequest struct {
	UserName string `json:"userName"`
}

type TurnSkipRequest struct {
	UserName string `json:"userName"`
}

type ConstructRequest struct {
	Nickname           string `json:"nickname"`
	LandNum            int    `json:"landNum"`
	TargetBuildingType string `json:"targetBuildingType"`
}

type TradeRequest struct {
	BuyerName        string `json:"buyerName"`
	SellerName       string `json:"sellerName,omitempty"`
	LandNum          int    `json:"landNum"`
	IsAcquisition    bool   `json:"isAcquisition"`
	AcquisitionPrice int    `json:"acquisitionPrice,omitempty"`
}

type JailRequest struct {
	Nickname string `json:"nickname"`
	Escape   bool   `json:"escape"`
}

type TravelRequest struct {
	Nickname    string `json:"nickname"`
	Destination int    `json:"destination"`
}

type TaxRequest struct {
	Nickname string `json:"nickname"`
	PayTax   bool   `json:"payTax"`
}

type GameOverRequest struct {
	WinnerID     string `json:"winnerId"`
	WinnerName   string `json:"winnerName"`
	WinCondition string `json:"winCondition"`
}
