// Package board holds the static board, property and stock tables and turns
// them into the game state attached to a room when play starts.
package board

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/avvvet/rockefeller-services/internal/room"
	"github.com/shopspring/decimal"
)

type Space struct {
	SpaceID    int       `json:"space_id"`
	Name       string    `json:"name"`
	Type       SpaceType `json:"type"`
	PropertyID string    `json:"property_id,omitempty"`
}

type Board struct {
	Spaces     []Space           `json:"spaces"`
	Properties map[string]string `json:"properties"` // property id -> name
}

type Property struct {
	PropertyID      string `json:"property_id"`
	Name            string `json:"name"`
	ColorSet        string `json:"color_set"`
	BuyPrice        int    `json:"buy_price"`
	MortgagePrice   int    `json:"mortgage_price"`
	HouseBuildPrice int    `json:"house_build_price"`
	RentNoHouse     int    `json:"rent_no_house"`
	RentOneHouse    int    `json:"rent_one_house"`
	RentTwoHouses   int    `json:"rent_two_houses"`
	RentThreeHouses int    `json:"rent_three_houses"`
	RentFourHouses  int    `json:"rent_four_houses"`
	RentHotel       int    `json:"rent_hotel"`
	Owner           string `json:"owner,omitempty"`
	Houses          int    `json:"houses"`
	IsMortgaged     bool   `json:"is_mortgaged"`
}

type ColorSet struct {
	Color      string   `json:"color"`
	Properties []string `json:"properties"`
}

type Stock struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Type          StockType       `json:"type"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	PropertyID    string          `json:"property_id,omitempty"`
	Owner         string          `json:"owner,omitempty"`
}

// Change is the relative move from the previous to the current price.
func (s Stock) Change() decimal.Decimal {
	if s.PreviousPrice.IsZero() {
		return decimal.Zero
	}
	return s.CurrentPrice.Sub(s.PreviousPrice).Div(s.PreviousPrice)
}

type GameState struct {
	Board       Board               `json:"board"`
	Properties  map[string]Property `json:"properties"`
	ColorSets   map[string]ColorSet `json:"color_sets"`
	Stocks      map[string]Stock    `json:"stocks"`
	DiceHistory [][2]int            `json:"dice_history"`
	EvenBuild   bool                `json:"even_build"`
}

func NewBoard() Board {
	b := Board{
		Spaces:     make([]Space, 0, len(layout)),
		Properties: make(map[string]string, len(properties)),
	}
	for i, row := range layout {
		b.Spaces = append(b.Spaces, Space{SpaceID: i, Name: row.name, Type: row.kind, PropertyID: row.propertyID})
	}
	for id, row := range properties {
		b.Properties[id] = row.name
	}
	return b
}

func NewProperties() map[string]Property {
	out := make(map[string]Property, len(properties))
	for id, row := range properties {
		out[id] = Property{
			PropertyID:      id,
			Name:            row.name,
			ColorSet:        row.colorSet,
			BuyPrice:        row.buy,
			MortgagePrice:   row.mortgage,
			HouseBuildPrice: row.houseBuild,
			RentNoHouse:     row.rent0,
			RentOneHouse:    row.rent1,
			RentTwoHouses:   row.rent2,
			RentThreeHouses: row.rent3,
			RentFourHouses:  row.rent4,
			RentHotel:       row.hotel,
		}
	}
	return out
}

func NewColorSets() map[string]ColorSet {
	out := make(map[string]ColorSet, len(colorSets))
	for color, ids := range colorSets {
		members := append([]string(nil), ids...)
		sort.Strings(members)
		out[color] = ColorSet{Color: color, Properties: members}
	}
	return out
}

func NewStocks() map[string]Stock {
	out := make(map[string]Stock, len(initialStocks))
	for _, row := range initialStocks {
		out[row.symbol] = Stock{
			Symbol:        row.symbol,
			Name:          row.name,
			Type:          row.kind,
			CurrentPrice:  price(row.current),
			PreviousPrice: price(row.before),
		}
	}
	return out
}

// NewGameState builds a fresh state for one room; nothing is shared between calls.
func NewGameState(cfg room.Config) GameState {
	return GameState{
		Board:       NewBoard(),
		Properties:  NewProperties(),
		ColorSets:   NewColorSets(),
		Stocks:      NewStocks(),
		DiceHistory: [][2]int{},
		EvenBuild:   cfg.EvenBuild,
	}
}

// Materialize is the room.GameStateFunc used by the room service.
func Materialize(cfg room.Config) (json.RawMessage, error) {
	data, err := json.Marshal(NewGameState(cfg))
	if err != nil {
		return nil, fmt.Errorf("marshal game state: %w", err)
	}
	return data, nil
}
