package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"unimatch/cmd/internal/api"
	"unimatch/cmd/internal/session"
	v1 "unimatch/shared/contracts/chat/v1"

	"github.com/spf13/cobra"
)

func newBrowseCmd(rt *runtime) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Step through the profiles you can match with",
		Long: `Fetch the browsable profiles and show them one at a time.

Press enter for the next profile, q to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			sess := session.New(cfg.UserID, cfg.Token)
			return runBrowse(cmd.Context(), rest, sess, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags.register(cmd)
	return cmd
}

type profileSource interface {
	FetchProfiles(ctx context.Context, token string) ([]v1.Profile, error)
}

// runBrowse loads the profile list into sess and walks it on each input line.
func runBrowse(ctx context.Context, src profileSource, sess *session.Session, in io.Reader, out io.Writer) error {
	token, ok := sess.AccessToken()
	if !ok {
		return errors.New("not signed in")
	}
	wire, err := src.FetchProfiles(ctx, token)
	if err != nil {
		return err
	}

	profiles := make([]session.Profile, 0, len(wire))
	for _, p := range wire {
		profiles = append(profiles, session.Profile{UserID: p.UserID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL})
	}
	sess.SetProfiles(profiles)

	r := newRenderer(out, "", isTTY(out))
	sc := bufio.NewScanner(in)
	n := 1
	for p, ok := sess.CurrentProfile(); ok; p, ok = sess.NextProfile() {
		r.profile(p, n, len(profiles))
		n++
		if !sc.Scan() {
			return nil
		}
		if cmd := strings.TrimSpace(sc.Text()); cmd == "q" || cmd == "/quit" {
			return nil
		}
	}
	r.notice("no more profiles")
	return nil
}

func (r *renderer) profile(p session.Profile, n, total int) {
	name := p.DisplayName
	if name == "" {
		name = p.UserID
	}
	line := fmt.Sprintf("[%d/%d] %s (%s)", n, total, r.paint(name, ansiBold), p.UserID)
	if p.AvatarURL != "" {
		line += " " + r.paint(p.AvatarURL, ansiDim)
	}
	fmt.Fprintln(r.w, line)
}
