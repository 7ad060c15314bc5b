package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/onnwee/tweetrelay/telemetry"
)

// ErrNotConnected is returned by Send while no chat session is up.
var ErrNotConnected = errors.New("chat: not connected")

// backend is one chat protocol. run owns a single connection: it registers,
// joins channel, reports events to h and returns when the connection ends.
// A nil error means ctx was canceled.
type backend interface {
	run(ctx context.Context, channel string, h handler) error
	say(channel, text string) error
}

// handler receives protocol events. Channel names may carry a leading '#'.
type handler interface {
	selfJoined(channel string)
	privmsg(channel, sender, text string)
}

// Options configures a Bot.
type Options struct {
	Address  string // host:port
	TLS      bool
	Password string
	Nick     string
	Channel  string // without leading #

	// Twitch selects the Twitch chat dialect instead of plain IRC.
	Twitch bool

	// FloodPerSecond bounds outgoing messages per second; burst is twice that.
	FloodPerSecond float64
}

// Bot is a single-channel chat client.
type Bot struct {
	backend backend
	channel string
	nick    string
	limiter *rate.Limiter
	joined  atomic.Bool

	mu        sync.Mutex
	onJoined  func()
	onCommand func(sender, text string)
}

// NewBot returns a bot for opts: an RFC 2812 client by default, or a
// go-twitch-irc client when opts.Twitch is set.
func NewBot(opts Options) *Bot {
	var be backend
	if opts.Twitch {
		be = newTwitchBackend(opts)
	} else {
		be = newIRCBackend(opts)
	}
	return newBot(be, opts)
}

func newBot(be backend, opts Options) *Bot {
	flood := opts.FloodPerSecond
	if flood <= 0 {
		flood = 2
	}
	burst := int(flood * 2)
	if burst < 1 {
		burst = 1
	}
	return &Bot{
		backend: be,
		channel: strings.ToLower(strings.TrimPrefix(opts.Channel, "#")),
		nick:    opts.Nick,
		limiter: rate.NewLimiter(rate.Limit(flood), burst),
	}
}

// OnJoined registers fn to run whenever the bot joins its channel. The
// callback may run more than once if the server makes the bot rejoin.
func (b *Bot) OnJoined(fn func()) {
	b.mu.Lock()
	b.onJoined = fn
	b.mu.Unlock()
}

// OnCommand registers fn to receive the text of channel messages addressed to
// the bot, with the nickname prefix removed.
func (b *Bot) OnCommand(fn func(sender, text string)) {
	b.mu.Lock()
	b.onCommand = fn
	b.mu.Unlock()
}

// Run connects, joins the channel and blocks until the connection ends or ctx
// is canceled. A nil return means the bot was asked to disconnect.
func (b *Bot) Run(ctx context.Context) error {
	err := b.backend.run(ctx, b.channel, b)
	b.joined.Store(false)
	return err
}

// Joined reports whether the bot is currently in its channel.
func (b *Bot) Joined() bool { return b.joined.Load() }

// Send sanitizes text and writes it to the channel, waiting for the flood
// guard.
func (b *Bot) Send(ctx context.Context, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := b.backend.say(b.channel, Sanitize(text)); err != nil {
		return err
	}
	telemetry.Inc(telemetry.ChatMessagesSent)
	return nil
}

func (b *Bot) isOurChannel(channel string) bool {
	return strings.EqualFold(strings.TrimPrefix(channel, "#"), b.channel)
}

func (b *Bot) selfJoined(channel string) {
	if !b.isOurChannel(channel) {
		return
	}
	slog.Info("chat joined channel", slog.String("channel", b.channel), slog.String("component", "chat"))
	b.joined.Store(true)
	b.mu.Lock()
	fn := b.onJoined
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (b *Bot) privmsg(channel, sender, text string) {
	if !b.isOurChannel(channel) {
		return
	}
	rest, ok := Addressed(b.nick, text)
	if !ok {
		return
	}
	b.mu.Lock()
	fn := b.onCommand
	b.mu.Unlock()
	if fn != nil {
		fn(sender, rest)
	}
}
