// Package config loads the relay configuration file and provides a typed
// Config used across the service.
//
// The file is a list of `key = value` lines; lines starting with `#` are
// comments. Every key may be overridden by an environment variable named
// TWEETRELAY_<KEY> (upper-cased), which keeps secrets out of the file when
// running in containers. Defaults are applied for optional keys; call
// Validate before using the result.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to upper-cased keys when looking up overrides.
const EnvPrefix = "TWEETRELAY_"

// Config keys.
const (
	KeyBearerToken      = "bearer_token"
	KeyIRCServer        = "irc_server"
	KeyIRCPort          = "irc_port"
	KeyIRCTLS           = "irc_tls"
	KeyIRCPassword      = "irc_password"
	KeyIRCNick          = "irc_nick"
	KeyIRCChannel       = "irc_channel"
	KeyRateLimit        = "rate_limit"
	KeyShowURL          = "show_url"
	KeyReconnectBackoff = "reconnect_backoff"
	KeyChatFlood        = "chat_flood_per_second"
	KeyChatProtocol     = "chat_protocol"
	KeyStreamURL        = "stream_url"
	KeyRulesURL         = "rules_url"
	KeyHTTPAddr         = "http_addr"
	KeyDatabaseDSN      = "database_dsn"
)

// Defaults.
const (
	DefaultRateLimit = 60
	DefaultChatFlood = 2.0
	DefaultStreamURL = "https://api.twitter.com/2/tweets/search/stream"
	DefaultRulesURL  = "https://api.twitter.com/2/tweets/search/stream/rules"
	DefaultHTTPAddr  = ":8080"

	// ProtocolIRC speaks RFC 2812 to any IRC server; ProtocolTwitch uses the
	// Twitch chat dialect (tmi.twitch.tv).
	ProtocolIRC    = "irc"
	ProtocolTwitch = "twitch"

	// MinRateLimit keeps the burst capacity (rate/10) at one message or more.
	MinRateLimit = 10
)

// ErrMissingKey is wrapped by Validate for every required key that is empty.
var ErrMissingKey = errors.New("missing required config key")

type Config struct {
	// Feed
	BearerToken      string
	StreamURL        string
	RulesURL         string
	RateLimit        float64 // messages per minute
	ShowURL          bool
	ReconnectBackoff bool

	// Chat
	IRCServer       string
	IRCPort         int
	IRCTLS          bool
	IRCPassword     string
	IRCNick         string
	IRCChannel      string
	ChatFloodPerSec float64
	ChatProtocol    string

	// Operator surface
	HTTPAddr    string
	DatabaseDSN string
}

// Load reads the config file at path and applies environment overrides and
// defaults. It fails on an unreadable file or a malformed value; missing
// required keys are reported by Validate.
func Load(path string) (*Config, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return FromMap(values)
}

// FromMap builds a Config from raw key/value pairs, applying environment
// overrides and defaults.
func FromMap(values map[string]string) (*Config, error) {
	get := func(key string) string {
		if v, ok := os.LookupEnv(EnvPrefix + strings.ToUpper(key)); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(values[key])
	}

	cfg := &Config{
		BearerToken: get(KeyBearerToken),
		IRCServer:   get(KeyIRCServer),
		IRCPassword: get(KeyIRCPassword),
		IRCNick:     get(KeyIRCNick),
		IRCChannel:  strings.TrimPrefix(get(KeyIRCChannel), "#"),
		StreamURL:   get(KeyStreamURL),
		RulesURL:    get(KeyRulesURL),
		DatabaseDSN: get(KeyDatabaseDSN),

		ChatProtocol: strings.ToLower(get(KeyChatProtocol)),
	}
	if cfg.ChatProtocol == "" {
		cfg.ChatProtocol = ProtocolIRC
	}

	var err error
	if cfg.IRCTLS, err = parseBool(KeyIRCTLS, get(KeyIRCTLS), true); err != nil {
		return nil, err
	}
	if cfg.ShowURL, err = parseBool(KeyShowURL, get(KeyShowURL), false); err != nil {
		return nil, err
	}
	if cfg.ReconnectBackoff, err = parseBool(KeyReconnectBackoff, get(KeyReconnectBackoff), false); err != nil {
		return nil, err
	}

	if v := get(KeyIRCPort); v != "" {
		if cfg.IRCPort, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", KeyIRCPort, v, err)
		}
	} else if cfg.IRCTLS {
		cfg.IRCPort = 6697
	} else {
		cfg.IRCPort = 6667
	}

	cfg.RateLimit = DefaultRateLimit
	if v := get(KeyRateLimit); v != "" {
		if cfg.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", KeyRateLimit, v, err)
		}
	}

	cfg.ChatFloodPerSec = DefaultChatFlood
	if v := get(KeyChatFlood); v != "" {
		if cfg.ChatFloodPerSec, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", KeyChatFlood, v, err)
		}
	}

	if cfg.StreamURL == "" {
		cfg.StreamURL = DefaultStreamURL
	}
	if cfg.RulesURL == "" {
		cfg.RulesURL = DefaultRulesURL
	}

	// An explicitly empty http_addr disables the operator server.
	if v, ok := lookup(values, KeyHTTPAddr); ok {
		cfg.HTTPAddr = v
	} else {
		cfg.HTTPAddr = DefaultHTTPAddr
	}

	return cfg, nil
}

func lookup(values map[string]string, key string) (string, bool) {
	if v, ok := os.LookupEnv(EnvPrefix + strings.ToUpper(key)); ok {
		return strings.TrimSpace(v), true
	}
	v, ok := values[key]
	return strings.TrimSpace(v), ok
}

func parseBool(key, v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s %q: want true or false", key, v)
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ key, val string }{
		{KeyBearerToken, c.BearerToken},
		{KeyIRCServer, c.IRCServer},
		{KeyIRCNick, c.IRCNick},
		{KeyIRCChannel, c.IRCChannel},
	}
	for _, r := range required {
		if r.val == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingKey, r.key))
		}
	}
	if c.IRCPort <= 0 || c.IRCPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid %s %d: out of range", KeyIRCPort, c.IRCPort))
	}
	if c.RateLimit < MinRateLimit {
		errs = append(errs, fmt.Errorf("invalid %s %v: must be at least %d messages per minute", KeyRateLimit, c.RateLimit, MinRateLimit))
	}
	if c.ChatFloodPerSec <= 0 {
		errs = append(errs, fmt.Errorf("invalid %s %v: must be positive", KeyChatFlood, c.ChatFloodPerSec))
	} else if c.RateLimit > c.ChatFloodPerSec*60 {
		// The flood guard would otherwise hold up the feed reader.
		errs = append(errs, fmt.Errorf("invalid %s %v: exceeds %s (%v/s = %v per minute)",
			KeyRateLimit, c.RateLimit, KeyChatFlood, c.ChatFloodPerSec, c.ChatFloodPerSec*60))
	}
	if c.ChatProtocol != ProtocolIRC && c.ChatProtocol != ProtocolTwitch {
		errs = append(errs, fmt.Errorf("invalid %s %q: want %s or %s", KeyChatProtocol, c.ChatProtocol, ProtocolIRC, ProtocolTwitch))
	}
	return errors.Join(errs...)
}

// IRCAddress returns host:port for the chat server.
func (c *Config) IRCAddress() string {
	return net.JoinHostPort(c.IRCServer, strconv.Itoa(c.IRCPort))
}
