package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RedisOptions)(nil)

// RedisOptions contains configuration for the Redis pub/sub mirror transport.
type RedisOptions struct {
	// Enabled controls whether the Redis transport is attached at all.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`

	// DialTimeout bounds the initial connection attempt.
	DialTimeout time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`
}

// NewRedisOptions creates a new RedisOptions with default values.
func NewRedisOptions() *RedisOptions {
	return &RedisOptions{
		Enabled:     false,
		Addr:        "localhost:6379",
		DB:          0,
		DialTimeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *RedisOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags for RedisOptions to the specified FlagSet.
func (o *RedisOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "redis.enabled", o.Enabled, "Attach the Redis pub/sub mirror transport.")
	fs.StringVar(&o.Addr, "redis.addr", o.Addr, "The address of the Redis server.")
	fs.StringVar(&o.Password, "redis.password", o.Password, "The password for Redis authentication.")
	fs.IntVar(&o.DB, "redis.db", o.DB, "The Redis database number.")
	fs.DurationVar(&o.DialTimeout, "redis.dial-timeout", o.DialTimeout, "Timeout for establishing the Redis connection.")
}
