package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/rendezvous/internal/adapters/rtc"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/probe"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("probe failed")
		os.Exit(1)
	}
}

func run() error {
	var (
		url        string
		session    string
		self       string
		peer       string
		credential string
		role       string
		delay      time.Duration
		timeout    time.Duration
		stun       bool
		verbose    bool
	)
	flagSet := pflag.NewFlagSet("rendezvous-probe", pflag.ContinueOnError)
	flagSet.StringVar(&url, "url", "ws://localhost:8080/api/ws/signal", "relay websocket endpoint")
	flagSet.StringVar(&session, "session", "probe", "session id")
	flagSet.StringVar(&self, "self", "m1", "own client id")
	flagSet.StringVar(&peer, "peer", "r1", "remote client id")
	flagSet.StringVar(&credential, "credential", os.Getenv("RELAY_PROBE_CREDENTIAL"), "token or shared secret")
	flagSet.StringVar(&role, "role", "pair", "manager, receiver, or pair to run both in-process")
	flagSet.DurationVar(&delay, "delay", time.Second, "receiver start delay in pair mode")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	flagSet.BoolVar(&stun, "stun", false, "use a public STUN server")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log pion internals")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	pionLevel := zerolog.WarnLevel
	if verbose {
		pionLevel = zerolog.DebugLevel
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	base := probe.Config{
		URL:        url,
		Session:    domain.SessionID(session),
		Credential: credential,
	}
	if stun {
		base.WebRTC = rtc.DefaultWebRTCConfig()
	} else {
		base.WebRTC = webrtc.Configuration{}
	}
	api := rtc.NewAPI(pionLevel)

	if role == "pair" {
		results, err := probe.RunPair(ctx, base, domain.ClientID(self), domain.ClientID(peer), delay, api)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%s: received %q after %s\n", r.Role, r.Received, r.Elapsed.Round(time.Millisecond))
		}
		return nil
	}

	base.Role = probe.Role(role)
	base.Self = domain.ClientID(self)
	base.Peer = domain.ClientID(peer)
	res, err := probe.Run(ctx, base, api)
	if err != nil {
		return err
	}
	fmt.Printf("%s: received %q after %s\n", res.Role, res.Received, res.Elapsed.Round(time.Millisecond))
	return nil
}
