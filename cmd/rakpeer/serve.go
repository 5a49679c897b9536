package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/raknet/internal/admin"
	"github.com/danmuck/raknet/internal/auth"
	"github.com/danmuck/raknet/internal/observability"
	"github.com/danmuck/raknet/internal/peer"
	"github.com/danmuck/raknet/internal/protocol/reliability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		adminAddr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept sessions and echo every message",
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.InitLogger("rakpeer")
			rc, err := resolveConfig(configPath, listen)
			if err != nil {
				return err
			}
			if adminAddr == "" {
				adminAddr = rc.AdminAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := peer.Listen(ctx, rc.Peer)
			if err != nil {
				return err
			}
			defer p.Close()

			if adminAddr != "" {
				srv := admin.New(adminAddr, p, admin.Options{
					CorsOrigins: rc.CorsOrigins,
					Token:       rc.AdminToken,
				})
				go func() {
					if err := srv.Serve(ctx); err != nil {
						log.Error().Err(err).Str("addr", adminAddr).Msg("admin server stopped")
					}
				}()
			}

			for {
				conn, err := p.Accept(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, peer.ErrClosed) {
						return nil
					}
					return err
				}
				log.Info().
					Str("remote", conn.RemoteAddr().String()).
					Uint64("peer_guid", conn.PeerGUID()).
					Int("mtu", conn.MTU()).
					Msg("session accepted")
				go echo(conn)
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "peer config file (TOML)")
	cmd.Flags().StringVar(&listen, "listen", "", "UDP listen address, overrides config")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "admin HTTP address, overrides config")
	return cmd
}

// resolved is a peer config plus the process-level keys around it.
type resolved struct {
	Peer        peer.Config
	CorsOrigins []string
	AdminAddr   string
	AdminToken  auth.Validator
	Remote      string
}

// resolveConfig loads path when given and wires the prometheus observers.
func resolveConfig(path, listen string) (resolved, error) {
	out := resolved{Peer: peer.DefaultConfig()}
	out.Peer.Name = "rakpeer"
	if path != "" {
		rc, err := loadRuntimeConfig(path)
		if err != nil {
			return resolved{}, err
		}
		out.Peer = rc.File
		out.CorsOrigins = rc.Raw.CorsOrigins
		out.AdminAddr = rc.Raw.AdminAddr
		out.AdminToken = rc.Raw.AdminValidator()
		out.Remote = rc.Raw.Remote
	}
	if listen != "" {
		out.Peer.Listen = listen
	}
	out.Peer.Session.Observer = observability.NewEngineObserver(out.Peer.Name)
	out.Peer.Handshakes = observability.NewHandshakeObserver(out.Peer.Name)
	return out, nil
}

func echo(conn *peer.Conn) {
	for msg := range conn.Messages() {
		if err := conn.Send(reliability.ReliableOrdered, msg.Channel, msg.Payload); err != nil {
			log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("echo failed")
		}
	}
	log.Info().
		Str("remote", conn.RemoteAddr().String()).
		AnErr("cause", conn.Err()).
		Msg("session closed")
}
