package core

import (
	"github.com/fox-one/pkg/store/db"
)

// App api server settings
type App struct {
	Port int `json:"port"`
}

// Ledger protocol-wide parameters
type Ledger struct {
	// MaxNumAssets caps the distinct tokens one account may hold across
	// supplied and borrowed positions.
	MaxNumAssets int `json:"max_num_assets"`
	// ForceClosingEnabled gates the reserve-funded bad-debt write-off.
	ForceClosingEnabled bool `json:"force_closing_enabled"`
	// BoosterDecimals precision of the booster token.
	BoosterDecimals uint8 `json:"booster_decimals"`
	// Admins may register and reconfigure assets.
	Admins []string `json:"admins"`
}

// Config service configuration
type Config struct {
	App    App       `json:"app"`
	DB     db.Config `json:"db"`
	Ledger Ledger    `json:"ledger"`
}

// IsAdmin check if the user is admin
func (c *Config) IsAdmin(userID string) bool {
	for _, a := range c.Ledger.Admins {
		if a == userID {
			return true
		}
	}
	return false
}
