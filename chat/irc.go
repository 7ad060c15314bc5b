package chat

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"gopkg.in/irc.v4"
)

const (
	dialTimeout   = 30 * time.Second
	pingFrequency = 2 * time.Minute
	pingTimeout   = time.Minute
)

// ircBackend speaks RFC 2812 through gopkg.in/irc.v4. The library sends
// PASS, NICK and USER on connect; the bot joins once the server sends 001.
type ircBackend struct {
	address  string
	useTLS   bool
	nick     string
	password string
	dial     func(ctx context.Context) (net.Conn, error)

	mu     sync.Mutex
	client *irc.Client
}

func newIRCBackend(opts Options) *ircBackend {
	be := &ircBackend{
		address:  opts.Address,
		useTLS:   opts.TLS,
		nick:     opts.Nick,
		password: opts.Password,
	}
	be.dial = be.dialServer
	return be
}

func (be *ircBackend) dialServer(ctx context.Context) (net.Conn, error) {
	nd := &net.Dialer{Timeout: dialTimeout}
	if !be.useTLS {
		return nd.DialContext(ctx, "tcp", be.address)
	}
	host, _, err := net.SplitHostPort(be.address)
	if err != nil {
		return nil, err
	}
	td := &tls.Dialer{NetDialer: nd, Config: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}}
	return td.DialContext(ctx, "tcp", be.address)
}

func (be *ircBackend) run(ctx context.Context, channel string, h handler) error {
	conn, err := be.dial(ctx)
	if err != nil {
		return err
	}
	slog.Info("chat connected", slog.String("server", be.address), slog.Bool("tls", be.useTLS), slog.String("component", "chat"))

	target := "#" + channel
	client := irc.NewClient(conn, irc.ClientConfig{
		Nick:          be.nick,
		Pass:          be.password,
		User:          be.nick,
		Name:          be.nick,
		PingFrequency: pingFrequency,
		PingTimeout:   pingTimeout,
		Handler: irc.HandlerFunc(func(c *irc.Client, m *irc.Message) {
			be.handle(c, m, target, h)
		}),
	})
	be.mu.Lock()
	be.client = client
	be.mu.Unlock()
	defer func() {
		be.mu.Lock()
		be.client = nil
		be.mu.Unlock()
	}()

	err = client.RunContext(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (be *ircBackend) handle(c *irc.Client, m *irc.Message, target string, h handler) {
	switch m.Command {
	case "001":
		if err := c.Write("JOIN " + target); err != nil {
			slog.Warn("chat join failed", slog.Any("err", err), slog.String("component", "chat"))
		}
	case "JOIN":
		if m.Prefix != nil && len(m.Params) > 0 && strings.EqualFold(m.Prefix.Name, c.CurrentNick()) {
			h.selfJoined(m.Params[0])
		}
	case "PRIVMSG":
		if m.Prefix != nil && len(m.Params) >= 2 {
			h.privmsg(m.Params[0], m.Prefix.Name, m.Params[len(m.Params)-1])
		}
	}
}

func (be *ircBackend) say(channel, text string) error {
	be.mu.Lock()
	client := be.client
	be.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.WriteMessage(&irc.Message{
		Command: "PRIVMSG",
		Params:  []string{"#" + channel, text},
	})
}
