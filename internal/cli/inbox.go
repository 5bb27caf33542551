package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/inbox"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/session"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

func newInboxCmd(o *options) *cobra.Command {
	var (
		filter string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show your conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a, err := o.open()
			if err != nil {
				return err
			}
			defer a.Close()

			me, err := o.login(ctx, a)
			if err != nil {
				return err
			}

			if !watch {
				p := inbox.New(a.Chat)
				if _, err := p.Refresh(ctx, me.UserID); err != nil {
					return err
				}
				return renderInbox(out, p.Filter(filter))
			}

			if o.cfg.PubSub.Driver == pubsub.DriverMemory {
				l := log.L()
				l.Warn().Msg("local backend: only changes made by this process are seen live")
			}

			s := session.New(ctx, me.UserID, session.Deps{
				Storage:            a.Chat,
				Feed:               a.Feed,
				RefreshRate:        o.cfg.Feed.RefreshRate,
				StatusPollInterval: o.cfg.Feed.StatusPollInterval,
				OnConversations: func(convs []domain.Conversation, err error) {
					if err != nil {
						cmd.PrintErrln("refresh failed:", err)
						return
					}
					fmt.Fprint(out, clearScreen)
					renderInbox(out, inbox.FilterList(convs, filter))
				},
			})
			defer s.Close()

			if err := s.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only conversations whose name, email or last message contains this")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep the list open and redraw it on every change")
	return cmd
}
