package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// twitchClient is the subset of *twitch.Client the backend uses.
type twitchClient interface {
	OnConnect(func())
	OnSelfJoinMessage(func(twitch.UserJoinMessage))
	OnPrivateMessage(func(twitch.PrivateMessage))
	Join(channels ...string)
	Say(channel, text string)
	Connect() error
	Disconnect() error
}

// twitchBackend speaks the Twitch chat dialect (tmi.twitch.tv) through
// go-twitch-irc. The password is the "oauth:..." chat token.
type twitchBackend struct {
	client    twitchClient
	connected atomic.Bool
}

func newTwitchBackend(opts Options) *twitchBackend {
	c := twitch.NewClient(opts.Nick, opts.Password)
	if opts.Address != "" {
		c.IrcAddress = opts.Address
	}
	c.TLS = opts.TLS
	return &twitchBackend{client: c}
}

func (be *twitchBackend) run(ctx context.Context, channel string, h handler) error {
	be.client.OnConnect(func() {
		be.connected.Store(true)
		slog.Info("chat connected", slog.String("component", "chat"))
	})
	be.client.OnSelfJoinMessage(func(m twitch.UserJoinMessage) { h.selfJoined(m.Channel) })
	be.client.OnPrivateMessage(func(m twitch.PrivateMessage) { h.privmsg(m.Channel, m.User.Name, m.Message) })

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := be.client.Disconnect(); err != nil {
				slog.Debug("chat disconnect", slog.Any("err", err))
			}
		case <-done:
		}
	}()

	be.client.Join(channel)
	err := be.client.Connect()
	be.connected.Store(false)
	if errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	return err
}

func (be *twitchBackend) say(channel, text string) error {
	if !be.connected.Load() {
		return ErrNotConnected
	}
	be.client.Say(channel, text)
	return nil
}
