package main

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/danmuck/raknet/internal/observability"
	"github.com/danmuck/raknet/internal/peer"
	"github.com/danmuck/raknet/internal/protocol/reliability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func dialCmd() *cobra.Command {
	var (
		configPath string
		message    string
		count      int
		channel    uint8
		mode       string
		wait       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dial [addr]",
		Short: "Negotiate with a remote peer and exchange messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			observability.InitLogger("rakpeer")
			rc, err := resolveConfig(configPath, "")
			if err != nil {
				return err
			}
			if configPath == "" {
				rc.Peer.Listen = "0.0.0.0:0"
			}
			remote := rc.Remote
			if len(args) == 1 {
				remote = args[0]
			}
			if strings.TrimSpace(remote) == "" {
				return fmt.Errorf("no remote address given")
			}
			addr, err := netip.ParseAddrPort(strings.TrimSpace(remote))
			if err != nil {
				return fmt.Errorf("parse remote: %w", err)
			}
			rel, err := parseReliability(mode)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			p, err := peer.Listen(ctx, rc.Peer)
			if err != nil {
				return err
			}
			defer p.Close()

			conn, err := p.Dial(ctx, addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s guid=%d mtu=%d\n", conn.RemoteAddr(), conn.PeerGUID(), conn.MTU())

			for i := 0; i < count; i++ {
				if err := conn.Send(rel, channel, []byte(message)); err != nil {
					return err
				}
			}
			if !rel.IsReliable() {
				return nil
			}

			deadline := time.NewTimer(wait)
			defer deadline.Stop()
			for got := 0; got < count; {
				select {
				case msg, ok := <-conn.Messages():
					if !ok {
						return fmt.Errorf("session closed: %w", conn.Err())
					}
					got++
					fmt.Fprintf(cmd.OutOrStdout(), "echo %d/%d channel=%d: %s\n", got, count, msg.Channel, msg.Payload)
				case <-conn.Done():
					return fmt.Errorf("session closed: %w", conn.Err())
				case <-deadline.C:
					return fmt.Errorf("received %d of %d echoes: %w", got, count, context.DeadlineExceeded)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			log.Info().Str("remote", addr.String()).Int("messages", count).Msg("dial complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "peer config file (TOML)")
	cmd.Flags().StringVarP(&message, "message", "m", "hello", "payload to send")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of messages")
	cmd.Flags().Uint8Var(&channel, "channel", 0, "order channel")
	cmd.Flags().StringVar(&mode, "reliability", "reliable_ordered", "reliability mode")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for echoes")
	return cmd
}

func parseReliability(raw string) (reliability.Reliability, error) {
	want := strings.ToUpper(strings.TrimSpace(raw))
	for _, r := range reliability.All() {
		if r.String() == want {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown reliability %q", raw)
}
