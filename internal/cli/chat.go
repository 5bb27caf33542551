package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/app"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/feed"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/outbound"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/session"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/pubsub"
)

const quitCommand = "/quit"

func newChatCmd(o *options) *cobra.Command {
	var (
		history int
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "chat <user-email>",
		Short: "Open a conversation; each line you type is sent, " + quitCommand + " leaves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := o.open()
			if err != nil {
				return err
			}
			defer a.Close()

			me, err := o.login(ctx, a)
			if err != nil {
				return err
			}
			other, err := findUser(ctx, a, me.UserID, args[0])
			if err != nil {
				return err
			}

			if o.cfg.PubSub.Driver == pubsub.DriverMemory {
				l := log.L()
				l.Warn().Msg("local backend: replies from other processes appear after reopening the chat")
			}

			screen := newChatScreen(cmd.OutOrStdout(), me.UserID, other.DisplayName, history, !plain)
			s := session.New(ctx, me.UserID, session.Deps{
				Storage:            a.Chat,
				Feed:               a.Feed,
				RefreshRate:        o.cfg.Feed.RefreshRate,
				StatusPollInterval: o.cfg.Feed.StatusPollInterval,
				OnMessages: func(_ string, msgs []domain.Message) {
					screen.setMessages(msgs)
				},
				OnConnectivity: func(topic feed.Topic, st feed.State) {
					if topic.Kind == feed.TopicMessages {
						screen.setState(st)
					}
				},
				OnSendState: func(_ string, st outbound.SendState) {
					screen.setSendState(st)
				},
			})
			defer s.Close()

			if err := s.Start(ctx); err != nil {
				l := log.Ctx(ctx)
				l.Warn().Err(err).Msg("conversation list unavailable")
			}

			v, err := s.StartConversation(ctx, other.ID)
			if err != nil {
				return err
			}
			screen.setMessages(v.Messages())

			return readLoop(ctx, cmd.InOrStdin(), func(line string) {
				if _, err := s.Send(ctx, v.ConversationID(), line); err != nil {
					screen.showError(err)
				}
			})
		},
	}

	cmd.Flags().IntVar(&history, "history", 20, "messages kept on screen (0 for all)")
	cmd.Flags().BoolVar(&plain, "plain", false, "append redraws instead of clearing the screen")
	return cmd
}

func findUser(ctx context.Context, a *app.App, me, email string) (*domain.UserSummary, error) {
	users, err := a.Chat.ListOtherUsers(ctx, me)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, strings.TrimSpace(email)) {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("no other user with email %s: %w", email, domain.ErrNotFound)
}

// readLoop hands every non-empty input line to send until EOF, the quit
// command or ctx ends.
func readLoop(ctx context.Context, in io.Reader, send func(string)) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == quitCommand:
				return nil
			default:
				send(line)
			}
		}
	}
}
