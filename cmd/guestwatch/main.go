package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sonirico/guestws"
)

func main() {
	configPath := flag.String("config", "guestwatch.yaml", "path to config file")
	identity := flag.String("identity", "", "guest identity, overrides the config file")
	flag.Parse()

	cfg, err := guestws.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %s\n", err)
		os.Exit(1)
	}
	if *identity != "" {
		cfg.Identity = *identity
	}

	zl := newZerolog(cfg.Log)

	if err := run(cfg, zl); err != nil {
		zl.Error().Err(err).Msg("guestwatch stopped")
		os.Exit(1)
	}
}

// run returns only after every deferred cleanup has run.
func run(cfg *guestws.Config, zl zerolog.Logger) error {
	if cfg.Identity == "" {
		return errors.New("no identity given, set identity in the config or pass -identity")
	}

	logger := guestws.NewZerologLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := guestws.NewHTTPBroker(logger, &fasthttp.Client{
		Name:         "guestwatch",
		ReadTimeout:  cfg.Broker.Timeout,
		WriteTimeout: cfg.Broker.Timeout,
	}, cfg.Broker.BaseURL, cfg.Broker.Timeout)

	if stats, err := broker.OnlineStats(ctx); err != nil {
		zl.Warn().Err(err).Msg("cannot fetch online stats")
	} else {
		zl.Info().RawJSON("stats", nonEmptyJSON(stats.Data)).Msg("broker online stats")
	}

	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
	}

	manager := guestws.NewManager(
		logger,
		guestws.NewSessionBrokerRepo(logger, broker.ConnectGuest),
		guestws.NewWebsocketTransportFactory(logger, dialer, nil, cfg.Connection.WriteTimeout),
		cfg.ManagerConfig(),
	)
	defer manager.Close()

	manager.OnStateChange(func(s guestws.Status) {
		ev := zl.Info().
			Str("state", s.String()).
			Str("identity", s.Identity).
			Int("reconnects", s.Reconnects)
		if s.Err != nil {
			ev = ev.Str("error", s.ErrorText())
		}
		ev.Msg("connection state changed")
	})

	manager.Subscribe(func(n guestws.Notification) {
		printNotification(os.Stdout, n)
	})

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrapf(err, "cannot reach redis at %s", cfg.Redis.Addr)
		}

		relay := guestws.NewRedisRelay(logger, client, cfg.Redis.Prefix, cfg.Identity)
		manager.Subscribe(relay.Handle)

		zl.Info().
			Str("channel", relay.Channel()).
			Str("instance_id", relay.InstanceID()).
			Msg("relaying notifications to redis")
	}

	if err := manager.Connect(ctx, cfg.Identity); err != nil {
		return errors.Wrap(err, "cannot start connection")
	}

	statusCtx, cancel := context.WithTimeout(ctx, cfg.Broker.Timeout)
	if reply, err := broker.GuestStatus(statusCtx, cfg.Identity); err != nil {
		zl.Warn().Err(err).Msg("cannot fetch guest status")
	} else {
		zl.Info().Bool("success", reply.Success).Str("message", reply.Message).Msg("guest status")
	}
	cancel()

	<-ctx.Done()
	zl.Info().Msg("shutting down")

	return nil
}

func newZerolog(cfg guestws.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "guestwatch").Logger()
}

func printNotification(w io.Writer, n guestws.Notification) {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	if n.Kind.IsMessageEvent() {
		if msg, err := n.Message(); err == nil {
			sender := "?"
			if msg.Sender != nil {
				sender = msg.Sender.Name
			}
			fmt.Fprintf(w, "%s %-16s #%d %s: %s\n", ts.Format(time.RFC3339), n.Kind, msg.ID, sender, msg.Content)
			return
		}
	}

	fmt.Fprintf(w, "%s %-16s %s\n", ts.Format(time.RFC3339), n.Kind, n.Payload)
}

func nonEmptyJSON(data []byte) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
