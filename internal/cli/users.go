package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newUsersCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the users you can chat with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open()
			if err != nil {
				return err
			}
			defer a.Close()

			me, err := o.login(cmd.Context(), a)
			if err != nil {
				return err
			}

			users, err := a.Chat.ListOtherUsers(cmd.Context(), me.UserID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tEMAIL")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\n", u.DisplayName, u.Email)
			}
			return tw.Flush()
		},
	}
}
