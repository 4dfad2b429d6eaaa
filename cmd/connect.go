package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shobhitrajxyz/anonymate-app/internal/config"
	"github.com/shobhitrajxyz/anonymate-app/internal/dns"
	"github.com/shobhitrajxyz/anonymate-app/internal/logging"
	"github.com/shobhitrajxyz/anonymate-app/internal/peer"
	"github.com/shobhitrajxyz/anonymate-app/internal/ui"
)

var clientOpts config.Options

var connectCmd = &cobra.Command{
	Use:     "connect",
	Aliases: []string{"c"},
	Short:   "Meet a stranger and chat over a direct WebRTC channel",
	Long: `Connect to a broker, wait for a partner, and chat.

Lines typed on stdin are sent to the partner. Type /next to leave and look
for someone new, or /quit to exit.

Examples:
  anonymate connect
  anonymate connect --server wss://anonymate.app/ws`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelError)

		cfg, err := LoadConfig(clientOpts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runConnect(ctx, cfg)
	},
}

// LoadConfig loads peer configuration, wrapping failures.
func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, peer.NewError("load config", err)
	}
	return cfg, nil
}

// ConnectionContext bundles a live broker connection.
type ConnectionContext struct {
	Client  *peer.Client
	Handler *peer.Handler
	Config  *config.Config
}

func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	client := peer.NewClient(cfg.ServerURL, dns.NewResolver())
	if err := client.Connect(ctx); err != nil {
		return nil, peer.NewError("connect to server", err)
	}

	handler := peer.NewHandler(client)
	go handler.Start()

	return &ConnectionContext{
		Client:  client,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

func runConnect(ctx context.Context, cfg *config.Config) error {
	lines := readLines(ctx)

	for {
		next, err := converse(ctx, cfg, lines)
		if errors.Is(err, peer.ErrCancelled) {
			return nil
		}
		if errors.Is(err, peer.ErrPeerLeft) {
			fmt.Printf("%s %s\n\n", ui.IconWave, ui.MutedStyle.Render("The stranger left."))
		} else if err != nil {
			return err
		}
		if !next {
			return nil
		}
	}
}

// converse opens a fresh broker connection for one conversation. A paired
// connection stays bound to its room, so moving on means reconnecting.
func converse(ctx context.Context, cfg *config.Config, lines <-chan string) (bool, error) {
	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	conn, err := NewConnectionContext(ctx, cfg)
	stopSpinner()
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := conn.Client.JoinQueue(); err != nil {
		return false, peer.NewError("join queue", err)
	}

	match, err := ui.RunLobby(ctx, conn.Handler)
	if err != nil {
		return false, err
	}
	ui.RenderMatch(match)

	return chat(ctx, conn, match, lines)
}

// chat runs one conversation. It reports whether the user wants another.
func chat(ctx context.Context, conn *ConnectionContext, match *peer.Match, lines <-chan string) (bool, error) {
	session, err := peer.NewSession(conn.Client, conn.Handler, conn.Config, match)
	if err != nil {
		return false, err
	}
	defer session.Close()

	stop := ui.RunConnectionSpinner("Opening a direct channel...")
	err = session.Start(ctx)
	stop()
	if err != nil {
		if errors.Is(err, peer.ErrPeerLeft) {
			return true, err
		}
		return false, err
	}
	ui.PrintSuccess("Say hi! (/next for someone new, /quit to exit)")

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return false, nil
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				return false, nil
			case "/next":
				return true, nil
			}
			if err := session.Send(line); err != nil {
				ui.PrintWarning(err.Error())
				continue
			}
			fmt.Println(ui.ChatLine(true, line))

		case ev := <-session.Messages():
			if ev.Type == peer.ChatTypeBye {
				return true, peer.ErrPeerLeft
			}
			fmt.Println(ui.ChatLine(false, ev.Text.Body))

		case <-conn.Handler.PeerLeft:
			return true, peer.ErrPeerLeft

		case <-session.Failed():
			return true, peer.ErrPeerLeft

		case <-conn.Handler.Done():
			return false, peer.ErrServerClosed

		case <-ctx.Done():
			return false, nil
		}
	}
}

// readLines streams stdin lines until EOF or ctx ends.
func readLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func init() {
	rootCmd.AddCommand(connectCmd)

	connectCmd.Flags().StringVar(&clientOpts.ServerURL, "server", "", "Broker websocket URL (env SERVER_URL)")
	connectCmd.Flags().StringVarP(&clientOpts.STUNServer, "stun", "s", "", "Custom STUN server")
	connectCmd.Flags().StringVarP(&clientOpts.TURNServer, "turn", "t", "", "Custom TURN server")
	connectCmd.Flags().StringVar(&clientOpts.TURNUser, "turn-user", "", "TURN username")
	connectCmd.Flags().StringVar(&clientOpts.TURNPass, "turn-pass", "", "TURN password")
	connectCmd.Flags().BoolVar(&clientOpts.ForceRelay, "force-relay", false, "Only use TURN relay candidates (env FORCE_RELAY)")
}
