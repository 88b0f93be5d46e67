package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/chessnerd/internal/streamclient"
	"github.com/park285/chessnerd/pkg/chessdto"
)

func watchCmd() *cobra.Command {
	var (
		server    string
		token     string
		reconnect int
		window    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <game-id>",
		Short: "Follow a live game stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("CHESSNERD_TOKEN")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if window > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, window)
				defer cancel()
			}
			return watch(ctx, cmd.OutOrStdout(), server, args[0], token, reconnect)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default $CHESSNERD_TOKEN)")
	cmd.Flags().IntVar(&reconnect, "reconnect", 5, "redial attempts after a dropped link")
	cmd.Flags().DurationVar(&window, "for", 0, "stop after this long (0 waits for the game to close)")
	return cmd
}

func watch(ctx context.Context, out io.Writer, server, gameID, token string, reconnect int) error {
	c, err := streamclient.New(server, gameID,
		streamclient.WithToken(token),
		streamclient.WithReconnect(reconnect),
	)
	if err != nil {
		return err
	}
	c.OnStateChange(func(s streamclient.State) {
		fmt.Fprintf(out, "stream %s\n", s)
	})
	c.OnFrame(func(f chessdto.StreamFrame) {
		fmt.Fprintln(out, describeFrame(f))
	})
	if err := c.Connect(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-c.Done():
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Close(closeCtx)
}

func describeFrame(f chessdto.StreamFrame) string {
	if f.Notice != nil {
		return fmt.Sprintf("[%s] %s", f.Notice.Kind, f.Notice.Message)
	}
	if f.State == nil {
		return "[" + f.Type + "]"
	}
	st := f.State
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s to move  white %s  black %s", st.Generation, st.ActiveSide,
		clock(st.WhiteRemaining), clock(st.BlackRemaining))
	if st.LastMove != "" {
		fmt.Fprintf(&b, "  last %s", st.LastMove)
	}
	if st.Status != "playing" {
		fmt.Fprintf(&b, "  %s", st.Status)
		if st.Result != "" {
			fmt.Fprintf(&b, " (%s", st.Result)
			if st.Method != "" {
				fmt.Fprintf(&b, ", %s", st.Method)
			}
			b.WriteString(")")
		}
	}
	return b.String()
}

func clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
