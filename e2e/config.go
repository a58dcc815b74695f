package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

// Config points the suite at a running server. Both users must already be
// participants of RoomID (see tools/membership).
type Config struct {
	ServerAddr string `envconfig:"CHAT_SERVER_ADDR"`
	AdminAddr  string `envconfig:"CHAT_ADMIN_ADDR"`
	JWTSecret  string `envconfig:"JWT_SECRET"`
	RoomID     int    `envconfig:"E2E_ROOM_ID" default:"1"`
	FirstUser  string `envconfig:"E2E_FIRST_USER" default:"alice"`
	SecondUser string `envconfig:"E2E_SECOND_USER" default:"bob"`
	// E2E_DEBUG_JSON dumps every received frame
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
