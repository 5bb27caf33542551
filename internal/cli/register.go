package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
)

const minPasswordLength = 6

func newRegisterCmd(o *options) *cobra.Command {
	var username, displayName string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with --email and --password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := o.credentials()
			if err != nil {
				return err
			}
			if len(password) < minPasswordLength {
				return &domain.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
			}
			if username == "" {
				username, _, _ = strings.Cut(email, "@")
			}

			a, err := o.open()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Auth.Register(cmd.Context(), &domain.RegisterRequest{
				Email:       email,
				Username:    username,
				Password:    password,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "registered %s as %s (%s)\n", res.User.Email, res.User.DisplayName, res.UserID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username (defaults to the email's local part)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "name shown to other users")
	return cmd
}
