// Package config loads bot settings from an optional YAML file and the
// environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
	"github.com/silver2dream/hardnested-bot/internal/transcript"
)

// EnvPrefix is prepended to every environment variable, e.g. HNBOT_STATE_DIR.
const EnvPrefix = "HNBOT"

// Config is the complete bot configuration.
type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Attack     AttackConfig     `mapstructure:"attack"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	State      StateConfig      `mapstructure:"state"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Log        LogConfig        `mapstructure:"log"`
}

// TelegramConfig holds chat transport settings.
type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	Whitelist   []int64       `mapstructure:"-"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Debug       bool          `mapstructure:"debug"`
}

// AttackConfig holds external tool settings.
type AttackConfig struct {
	Binary          string        `mapstructure:"binary"`
	PollBackoff     time.Duration `mapstructure:"poll_backoff"`
	Timeout         time.Duration `mapstructure:"timeout"`
	KeepInputs      bool          `mapstructure:"keep_inputs"`
	MinFreeMemoryMB uint64        `mapstructure:"min_free_memory_mb"`
}

// TranscriptConfig holds live message chunking settings.
type TranscriptConfig struct {
	MaxLen int    `mapstructure:"max_len"`
	Marker string `mapstructure:"marker"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// UploadConfig holds log upload limits.
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field    string
	Message  string
	Expected string
}

func (e ValidationError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: %s (expected: %s)", e.Field, e.Message, e.Expected)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("telegram.poll_timeout", 60*time.Second)
	v.SetDefault("telegram.whitelist", "")
	v.SetDefault("telegram.debug", false)
	v.SetDefault("attack.binary", "./HardnestedRecovery/hardnested_main")
	v.SetDefault("attack.poll_backoff", time.Second)
	v.SetDefault("attack.timeout", time.Duration(0))
	v.SetDefault("attack.keep_inputs", false)
	v.SetDefault("attack.min_free_memory_mb", 512)
	v.SetDefault("transcript.max_len", transcript.DefaultMaxLen)
	v.SetDefault("transcript.marker", transcript.DefaultMarker)
	v.SetDefault("state.dir", "persistence")
	v.SetDefault("upload.max_bytes", 20*1024*1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")
	v.SetDefault("log.dir", "")
}

// New returns a viper instance wired for the bot: defaults, HNBOT_* env
// vars and the legacy TELEGRAM_TOKEN / WHITELISTED_CHAT_IDS names.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram.token", EnvPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("telegram.whitelist", EnvPrefix+"_TELEGRAM_WHITELIST", "WHITELISTED_CHAT_IDS")
	return v
}

// Load reads path (if non-empty) into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, boterr.NewConfigErrorWithCause("failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, boterr.NewConfigErrorWithCause("failed to parse config", err)
	}

	ids, err := ParseWhitelist(v.Get("telegram.whitelist"))
	if err != nil {
		return nil, boterr.NewConfigErrorWithCause("invalid telegram.whitelist", err)
	}
	cfg.Telegram.Whitelist = ids

	return &cfg, nil
}

// ParseWhitelist accepts a comma-separated string or a list of ids.
func ParseWhitelist(raw any) ([]int64, error) {
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	case int, int64:
		parts = []string{fmt.Sprint(val)}
	default:
		return nil, fmt.Errorf("unsupported whitelist value %T", raw)
	}

	var ids []int64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chat id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate checks if the configuration has all required fields
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Telegram.Token == "" {
		errors = append(errors, ValidationError{
			Field:    "telegram.token",
			Message:  "required field is missing",
			Expected: "bot token from @BotFather (env TELEGRAM_TOKEN)",
		})
	}

	if len(c.Telegram.Whitelist) == 0 {
		errors = append(errors, ValidationError{
			Field:    "telegram.whitelist",
			Message:  "no chat is allowed to use the bot",
			Expected: "comma-separated chat ids (env WHITELISTED_CHAT_IDS)",
		})
	}

	if c.Attack.Binary == "" {
		errors = append(errors, ValidationError{
			Field:   "attack.binary",
			Message: "required field is missing",
		})
	}

	if c.Attack.PollBackoff <= 0 || c.Attack.PollBackoff > 10*time.Second {
		errors = append(errors, ValidationError{
			Field:    "attack.poll_backoff",
			Message:  fmt.Sprintf("invalid value: %s", c.Attack.PollBackoff),
			Expected: "between 1ms and 10s",
		})
	}

	if c.Attack.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:    "attack.timeout",
			Message:  fmt.Sprintf("invalid value: %s", c.Attack.Timeout),
			Expected: "0 (no limit) or a positive duration",
		})
	}

	// leave room for the code fence and continuation marker under Telegram's 4096
	if c.Transcript.MaxLen < 100 || c.Transcript.MaxLen > 4080 {
		errors = append(errors, ValidationError{
			Field:    "transcript.max_len",
			Message:  fmt.Sprintf("invalid value: %d", c.Transcript.MaxLen),
			Expected: "between 100 and 4080",
		})
	}

	if c.State.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "state.dir",
			Message: "required field is missing",
		})
	}

	if c.Upload.MaxBytes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "upload.max_bytes",
			Message: fmt.Sprintf("invalid value: %d", c.Upload.MaxBytes),
		})
	}

	return errors
}

// IsWhitelisted reports whether chatID may use the bot.
func (c *Config) IsWhitelisted(chatID int64) bool {
	for _, id := range c.Telegram.Whitelist {
		if id == chatID {
			return true
		}
	}
	return false
}
