package events

// Type is the closed set of application events a webhook can subscribe to.
// Registry validation and dispatcher matching share this enumeration so an
// unsupported event type is rejected at one place.
type Type string

const (
	PriceAlertTriggered Type = "price.alert.triggered"
	GasAlertTriggered   Type = "gas.alert.triggered"
	WalletActivity      Type = "wallet.activity"
	WhaleMovement       Type = "whale.movement"
	WatchlistUpdated    Type = "watchlist.updated"

	// Ping is only ever emitted by the test-delivery endpoint.
	Ping Type = "ping"
)

var supported = map[Type]struct{}{
	PriceAlertTriggered: {},
	GasAlertTriggered:   {},
	WalletActivity:      {},
	WhaleMovement:       {},
	WatchlistUpdated:    {},
	Ping:                {},
}

func IsSupported(t Type) bool {
	_, ok := supported[t]
	return ok
}

// All returns the supported types in a stable order, for API listings.
func All() []Type {
	return []Type{
		PriceAlertTriggered,
		GasAlertTriggered,
		WalletActivity,
		WhaleMovement,
		WatchlistUpdated,
		Ping,
	}
}

func (t Type) String() string {
	return string(t)
}
