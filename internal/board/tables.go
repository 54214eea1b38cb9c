package board

import "github.com/shopspring/decimal"

type SpaceType string

const (
	SpaceProperty       SpaceType = "property"
	SpaceChance         SpaceType = "chance"
	SpaceCommunityChest SpaceType = "community_chest"
	SpaceTax            SpaceType = "tax"
	SpaceGo             SpaceType = "go"
	SpaceJail           SpaceType = "jail"
	SpaceFreeParking    SpaceType = "free_parking"
	SpaceGoToJail       SpaceType = "go_to_jail"
	SpaceUtility        SpaceType = "utility"
	SpaceRailroad       SpaceType = "railroad"
)

type StockType string

const (
	StockCompany  StockType = "company"
	StockProperty StockType = "property"
)

type propertyRow struct {
	name                                     string
	colorSet                                 string
	buy, mortgage, houseBuild                int
	rent0, rent1, rent2, rent3, rent4, hotel int
}

var colorSets = map[string][]string{
	"brown":  {"old_kent_road", "whitechapel_road"},
	"blue":   {"mumbai", "delhi"},
	"green":  {"agra", "lucknow", "kanpur"},
	"red":    {"jaipur", "pune", "goa"},
	"yellow": {"chennai", "bangalore", "hyderabad"},
	"orange": {"kolkata", "ahmedabad", "surat"},
	"purple": {"chandigarh", "indore", "nagpur"},
	"pink":   {"kochi", "varanasi", "madurai"},
}

// only the properties that sit on the current layout are priced
var properties = map[string]propertyRow{
	"old_kent_road":    {"Old Kent Road", "brown", 60, 30, 50, 2, 10, 30, 90, 160, 250},
	"whitechapel_road": {"Whitechapel Road", "brown", 60, 30, 50, 4, 20, 60, 180, 320, 450},
	"mumbai":           {"Mumbai", "blue", 400, 200, 200, 50, 200, 600, 1400, 1700, 2000},
	"delhi":            {"Delhi", "blue", 350, 175, 200, 35, 175, 500, 1100, 1300, 1500},
}

type spaceRow struct {
	name       string
	kind       SpaceType
	propertyID string
}

var layout = []spaceRow{
	{"GO", SpaceGo, ""},
	{"Old Kent Road", SpaceProperty, "old_kent_road"},
	{"Community Chest", SpaceCommunityChest, ""},
	{"Whitechapel Road", SpaceProperty, "whitechapel_road"},
	{"Income Tax", SpaceTax, ""},
	{"Kings Cross Station", SpaceRailroad, ""},
	{"Mumbai", SpaceProperty, "mumbai"},
	{"Chance", SpaceChance, ""},
	{"Delhi", SpaceProperty, "delhi"},
	{"Jail", SpaceJail, ""},
}

type stockRow struct {
	symbol, name    string
	kind            StockType
	current, before string
}

var initialStocks = []stockRow{
	{"AAPL", "Apple Inc.", StockCompany, "150.00", "148.00"},
	{"GOOG", "Alphabet Inc.", StockCompany, "2800.00", "2750.00"},
	{"MSFT", "Microsoft Corporation", StockCompany, "340.00", "335.00"},
	{"AMZN", "Amazon.com Inc.", StockCompany, "3300.00", "3250.00"},
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
