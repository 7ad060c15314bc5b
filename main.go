// Command tweetrelay relays a filtered social-media feed into an IRC channel.
// It:
//   - Loads the `key = value` config file named on the command line and
//     initializes structured logging.
//   - Connects the chat bot; once it has joined the channel the feed ingestor
//     starts and publishes admitted items (dedup + token bucket).
//   - Answers addressed chat commands (help, get, add, del) against the
//     feed's rule-management API.
//   - Optionally journals published items to Postgres and exposes
//     /healthz, /readyz, /status, /published and /metrics over HTTP.
//
// The process exits when the chat connection ends or on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/onnwee/tweetrelay/chat"
	"github.com/onnwee/tweetrelay/command"
	"github.com/onnwee/tweetrelay/config"
	"github.com/onnwee/tweetrelay/db"
	"github.com/onnwee/tweetrelay/journal"
	"github.com/onnwee/tweetrelay/server"
	"github.com/onnwee/tweetrelay/stream"
	"github.com/onnwee/tweetrelay/telemetry"
	"github.com/onnwee/tweetrelay/twitterapi"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 5 * time.Second
)

// cliOptions is the parsed command line.
type cliOptions struct {
	configPath string
	// addr overrides http_addr when addrSet; "" disables the HTTP server.
	addr    string
	addrSet bool
}

func parseArgs(name string, args []string, output io.Writer) (cliOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [-addr :8080] <config-file>\n", name)
		fs.PrintDefaults()
	}
	var opts cliOptions
	fs.StringVar(&opts.addr, "addr", "", "operator HTTP listen address; overrides http_addr (\"\" disables)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "addr" {
			opts.addrSet = true
		}
	})
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, errors.New("exactly one config file is required")
	}
	opts.configPath = fs.Arg(0)
	return opts, nil
}

func main() {
	opts, err := parseArgs(os.Args[0], os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	setupLogging()

	cfg, err := config.Load(opts.configPath)
	if err == nil {
		if opts.addrSet {
			cfg.HTTPAddr = opts.addr
		}
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

// setupLogging configures slog from LOG_LEVEL and LOG_FORMAT. Defaults:
// level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func run(cfg *config.Config) int {
	telemetry.Init()

	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT.
	shutdownTracing, err := telemetry.InitTracing("tweetrelay", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var jw *journal.Writer
	deps := server.Deps{Channel: cfg.IRCChannel}
	if cfg.DatabaseDSN != "" {
		database, err := db.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		if err := db.Migrate(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			return 1
		}
		jw = journal.NewWriter(journal.DBStore{DB: database}, journal.DefaultQueueSize)
		deps.DB = database
	}

	bot := chat.NewBot(chat.Options{
		Address:        cfg.IRCAddress(),
		TLS:            cfg.IRCTLS,
		Password:       cfg.IRCPassword,
		Nick:           cfg.IRCNick,
		Channel:        cfg.IRCChannel,
		Twitch:         cfg.ChatProtocol == config.ProtocolTwitch,
		FloodPerSecond: cfg.ChatFloodPerSec,
	})

	opts := stream.Options{
		URL:           cfg.StreamURL,
		Token:         cfg.BearerToken,
		Out:           bot,
		RatePerMinute: cfg.RateLimit,
		ShowURL:       cfg.ShowURL,
		Backoff:       cfg.ReconnectBackoff,
	}
	if jw != nil {
		// Avoid a typed-nil Journal.
		opts.Journal = jw
	}
	ingestor := stream.New(opts)
	dispatcher := command.NewDispatcher(twitterapi.NewRulesClient(cfg.RulesURL, cfg.BearerToken))

	bot.OnJoined(func() { ingestor.Start(ctx) })
	bot.OnCommand(func(sender, text string) {
		slog.Debug("chat command", slog.String("sender", sender), slog.String("text", text), slog.String("component", "command"))
		dispatcher.Handle(ctx, bot, text)
	})

	deps.Stream = ingestor
	deps.Chat = bot
	if cfg.HTTPAddr != "" {
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(ctx, deps)); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	slog.Info("connecting to chat",
		slog.String("server", cfg.IRCAddress()),
		slog.Bool("tls", cfg.IRCTLS),
		slog.String("channel", cfg.IRCChannel),
		slog.Float64("rate_limit", cfg.RateLimit))
	runErr := bot.Run(ctx)
	stop()

	code := 0
	if runErr != nil {
		slog.Error("chat connection ended", slog.Any("err", runErr))
		code = 1
	} else {
		slog.Info("shutting down")
	}

	// The ingestor may still be publishing into the journal.
	if ingestor.Started() {
		select {
		case <-ingestor.Done():
		case <-time.After(shutdownTimeout):
			slog.Warn("stream ingestor did not stop in time", slog.String("component", "stream"))
		}
	}
	if jw != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := jw.Close(flushCtx); err != nil {
			slog.Warn("journal flush incomplete", slog.Any("err", err))
		}
		cancel()
	}
	return code
}
