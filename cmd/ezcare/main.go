package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/sp-mcslab/ezcare-web-sub000/internal/auth"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/config"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/core"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/diag"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/eventbus"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/media"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/room"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/rtc"
	"github.com/sp-mcslab/ezcare-web-sub000/internal/signaling"
)

func main() {
	app := &cli.App{
		Name:        "ezcare",
		Usage:       "Room session client",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Usage:    "environment: either 'development' or 'production'",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the yaml config file",
			},
			&cli.StringFlag{
				Name:     "room",
				Usage:    "room id to enter",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "user",
				Usage:    "local peer id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "display name",
			},
			&cli.StringFlag{
				Name:  "password",
				Usage: "room password input, for password-protected rooms",
			},
		},
		Action: startClient,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startClient(c *cli.Context) error {
	env := core.ParseEnvironment(c.String("env"))
	initLogger(env)

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	webRTCConfig, err := config.NewWebRTCConfig(cfg.RTC)
	if err != nil {
		return err
	}

	channel := signaling.NewChannel(signaling.Options{
		URL:               cfg.Signaling.URL,
		Token:             auth.StaticToken(cfg.Signaling.Token),
		RequestTimeout:    cfg.Signaling.RequestTimeout,
		DialTimeout:       cfg.Signaling.DialTimeout,
		ReconnectAttempts: cfg.Signaling.ReconnectAttempts,
		ReconnectBase:     cfg.Signaling.ReconnectBase,
		ReconnectMax:      cfg.Signaling.ReconnectMax,
	})
	client := signaling.NewClient(channel)

	bus := eventbus.NewBus()
	defer bus.Close()
	attachBridges(bus, cfg.Bridges)

	manager := rtc.NewManager(rtc.ManagerOptions{
		Signaler:   client,
		Provider:   media.NewSyntheticProvider(),
		Factory:    rtc.PCTransportFactory{},
		Bus:        bus,
		RTCConfig:  cfg.RTC,
		WebRTC:     webRTCConfig,
		MultiShare: cfg.Media.MultiShareScreen,
	})

	session := room.NewSession(room.Options{
		SelfID:   core.PeerID(c.String("user")),
		SelfName: c.String("name"),
		RoomID:   core.RoomID(c.String("room")),
		Channel:  channel,
		Signaler: client,
		Media:    manager,
		Bus:      bus,
	})

	if cfg.Diag.Enabled {
		diagApp := diag.New(diag.Options{
			Address: cfg.Diag.Address,
			Session: session,
			Media:   manager,
		})
		go func() {
			if err := diagApp.Start(); err != nil {
				log.Error().Err(err).Str("service", "diag").Msg("diagnostics server failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := diagApp.Stop(ctx); err != nil {
				log.Warn().Err(err).Str("service", "diag").Msg("diagnostics shutdown")
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := session.Connect(ctx); err != nil {
		return err
	}

	if session.IsHost() {
		if err := session.Join(ctx, c.String("password")); err != nil {
			return err
		}
	} else if err := session.RequestJoin(ctx, c.String("password")); err != nil {
		return err
	}

	go logEvents(bus.Subscribe())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Warn().Msg("received signal to terminate the client")

	if err := session.Leave(); err != nil {
		log.Warn().Err(err).Msg("leave failed")
	}
	log.Info().Msg("client stopped")

	return nil
}

func initLogger(env core.Environment) {
	cw := zerolog.NewConsoleWriter()
	log.Logger = log.Output(cw)

	level := zerolog.InfoLevel
	if env.IsDevelopment() {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

func attachBridges(bus *eventbus.Bus, cfg config.BridgesConfig) {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		bus.Attach(eventbus.NewRedisBridge(rdb, cfg.RedisPrefix))
	}
	if cfg.NATSAddr != "" {
		bridge, err := eventbus.NewNATSBridge(cfg.NATSAddr, cfg.NATSSubject)
		if err != nil {
			log.Warn().Err(err).Msg("nats bridge unavailable")
			return
		}
		bus.Attach(bridge)
	}
}

func logEvents(events <-chan eventbus.Event) {
	for event := range events {
		log.Info().
			Str("kind", string(event.Kind)).
			Str("peerID", string(event.PeerID)).
			Str("state", string(event.State)).
			Msg("session event")
	}
}
