package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host      string `env:"HOST,default=0.0.0.0"`
	Port      int    `env:"PORT,required=true"`
	AdminPort int    `env:"ADMIN_PORT,required=true"`
	DebugPort int    `env:"DEBUG_PORT,default=8081"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,required=true"`
	LookupTimeout        time.Duration `env:"LOOKUP_TIMEOUT,required=true"`
	PresenceBufferSize   int           `env:"PRESENCE_BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	MaxFrameSize         int64         `env:"MAX_FRAME_SIZE,default=65536"`
	WriteWait            time.Duration `env:"WRITE_WAIT,default=10s"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`

	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,required=true"`
	LimitMessages    *int   `env:"LIMIT_MESSAGES"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,required=true"`

	MetricInterval  time.Duration `env:"METRIC_INTERVAL,required=true"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// Validate checks the relations between settings that env tags cannot express.
func (c Config) Validate() error {
	if c.WriteWait <= 0 || c.PongWait <= 0 {
		return fmt.Errorf("WRITE_WAIT and PONG_WAIT must be positive, got %s and %s", c.WriteWait, c.PongWait)
	}
	if c.DeliveryTimeout <= 0 || c.LookupTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT and LOOKUP_TIMEOUT must be positive, got %s and %s",
			c.DeliveryTimeout, c.LookupTimeout)
	}
	if c.ConnectionBufferSize <= 0 || c.PresenceBufferSize <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE and PRESENCE_BUFFER_SIZE must be positive")
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	}
	return nil
}
