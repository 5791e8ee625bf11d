package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// Addr is the server the send command talks to.
	Addr string `env:"RESPLITE_ADDR,default=127.0.0.1:6379"`

	Debug     bool `env:"RESPLITE_DEBUG"`
	DebugHTTP bool `env:"RESPLITE_DEBUG_HTTP"`

	// Trace logs raw requests and replies
	Trace bool `env:"RESPLITE_TRACE"`

	Timeout        time.Duration `env:"RESPLITE_TIMEOUT,default=5s"`
	ReadBufferSize int           `env:"RESPLITE_READ_BUFFER_SIZE,default=4096"`
	MaxFrameSize   int           `env:"RESPLITE_MAX_FRAME_SIZE,default=536870912"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	return loadConfig(ctx, envconfig.OsLookuper())
}

// LoadConfigFrom is LoadConfig with the environment replaced by values.
// The .env.local file is not read.
func LoadConfigFrom(ctx context.Context, values map[string]string) (*Config, error) {
	return process(ctx, envconfig.MapLookuper(values))
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return process(ctx, lookuper)
}

func process(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}
