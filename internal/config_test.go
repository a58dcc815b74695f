package internal

import (
	"os"
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ADMIN_PORT", "9090")
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("LOG_LEVEL", "INFO")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("AUTH_TOKEN_DURATION", "1h")
	t.Setenv("DELIVERY_TIMEOUT", "2s")
	t.Setenv("LOOKUP_TIMEOUT", "500ms")
	t.Setenv("CONNECTION_BUFFER_SIZE", "64")
	t.Setenv("MAX_CONTENT_LENGTH", "4000")
	t.Setenv("CHARACTER_REPLACEMENT", "*")
	t.Setenv("METRIC_INTERVAL", "5s")
	t.Setenv("RESTART_INTERVAL", "200ms")
}

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	setRequired(t)

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)
	req.NoError(config.Validate())

	req.Equal("0.0.0.0", config.Host)
	req.Equal(8080, config.Port)
	req.Equal(2*time.Second, config.DeliveryTimeout)
	req.Equal(60*time.Second, config.PongWait)
	req.Equal(10*time.Second, config.WriteWait)
	req.Equal(int64(65536), config.MaxFrameSize)
	req.Equal(1024, config.PresenceBufferSize)
	req.Nil(config.LimitMessages)
}

func TestConfig_Missing_Required(t *testing.T) {
	req := require.New(t)
	setRequired(t)
	req.NoError(os.Unsetenv("JWT_SECRET"))

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.Error(err)
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)
	setRequired(t)
	t.Setenv("LIMIT_MESSAGES", "0")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)
	req.Error(config.Validate())
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("€")
	req.NoError(err)
	req.Equal('€', r)

	_, err = CharacterRune("**")
	req.Error(err)
}
