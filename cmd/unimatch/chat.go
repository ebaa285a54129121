package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"unimatch/cmd/internal/app"
	"unimatch/cmd/internal/chat"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newChatCmd(rt *runtime) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Open a conversation and chat from the terminal",
		Long: `Open a conversation, print its history and follow new messages.

Type a line and press enter to send it. Commands:
  /retry    resend the draft kept by a failed send
  /refresh  re-fetch the history
  /logout   clear the session and exit
  /quit     leave the conversation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rt.cfg.Client
			flags.apply(&cfg)
			return runChat(cmd.Context(), rt, cfg, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

func runChat(ctx context.Context, rt *runtime, cfg app.ClientConfig, conversationID string, in io.Reader, out io.Writer) error {
	cr, err := app.NewChatRuntime(ctx, cfg, rt.log, rt.reg)
	if err != nil {
		return err
	}
	defer cr.Close()

	v, err := cr.Client.Open(ctx, conversationID)
	if err != nil {
		return err
	}

	r := newRenderer(out, v.Conversation().Participant.DisplayName, isTTY(out))
	r.header(v.Conversation(), v.Mode())
	r.sync(v.Messages(), time.Now())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-v.Updates():
			r.sync(v.Messages(), time.Now())

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				return nil
			case "/logout":
				cr.Logout()
				r.notice("signed out")
				return nil
			case "/refresh":
				if err := v.Refresh(ctx); err != nil {
					r.notice("refresh failed: %v", err)
				}
				continue
			case "/retry":
				line = v.Draft()
				if strings.TrimSpace(line) == "" {
					r.notice("no draft to resend")
					continue
				}
			}

			if _, err := v.Send(ctx, line); err != nil {
				var se *chat.SendError
				switch {
				case errors.As(err, &se):
					r.notice("send failed: %v", se.Err)
					r.notice("draft kept, /retry to resend: %s", snippet(v.Draft(), 60))
				case errors.Is(err, chat.ErrSendInFlight):
					r.notice("still sending the previous message")
				default:
					r.notice("send: %v", err)
				}
			}
			r.sync(v.Messages(), time.Now())
		}
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
