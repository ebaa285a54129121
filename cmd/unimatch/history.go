package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"unimatch/cmd/internal/api"
	"unimatch/cmd/internal/chat"
	v1 "unimatch/shared/contracts/chat/v1"

	"github.com/spf13/cobra"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print a conversation's history without marking it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rt.cfg.Client
			flags.apply(&cfg)
			if cfg.Token == "" {
				return errors.New("client token is required (UNIMATCH_TOKEN)")
			}

			rest, err := api.NewClient(cfg.BaseURL,
				api.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
				api.WithLogger(rt.log),
			)
			if err != nil {
				return err
			}
			return printHistory(cmd.Context(), rest, cfg.Token, cfg.UserID, args[0], cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

// historySource is the part of the REST client history needs.
type historySource interface {
	FetchMessages(ctx context.Context, token, conversationID string) ([]v1.Message, error)
	FetchConversation(ctx context.Context, token, conversationID string) (v1.Conversation, error)
}

func printHistory(ctx context.Context, src historySource, token, selfID, conversationID string, out io.Writer) error {
	wire, err := src.FetchMessages(ctx, token, conversationID)
	if err != nil {
		return err
	}
	conv := chat.Conversation{ID: conversationID}
	if meta, err := src.FetchConversation(ctx, token, conversationID); err == nil {
		conv.Participant = chat.Participant{
			UserID:      meta.Participant.UserID,
			DisplayName: meta.Participant.DisplayName,
			AvatarURL:   meta.Participant.AvatarURL,
			Online:      meta.Participant.Online,
		}
	}

	msgs, skipped := chat.FromWireList(wire, selfID)
	r := newRenderer(out, conv.Participant.DisplayName, isTTY(out))
	r.header(conv, chat.ModeNone)
	r.sync(msgs, time.Now())
	if skipped > 0 {
		r.notice("%d malformed messages skipped", skipped)
	}
	return nil
}
