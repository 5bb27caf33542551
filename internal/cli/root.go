// Package cli implements the marketchat terminal client. Commands run the
// chat core in-process against the configured backend.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/app"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/log"
)

type options struct {
	v   *viper.Viper
	cfg *config.Config
}

// NewRootCmd builds the marketchat command tree.
func NewRootCmd() *cobra.Command {
	o := &options{v: viper.New()}
	o.v.SetEnvPrefix("marketchat")
	o.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "marketchat",
		Short:         "Chat with other marketplace users from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.v.GetString("config"))
			if err != nil {
				return err
			}
			if !o.v.GetBool("verbose") {
				cfg.Log.Level = "warn"
			}
			cfg.Log.Output = cmd.ErrOrStderr()
			log.Init(cfg.Log)
			o.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "path to config file")
	flags.StringP("email", "e", "", "account email (or MARKETCHAT_EMAIL)")
	flags.StringP("password", "p", "", "account password (or MARKETCHAT_PASSWORD)")
	flags.BoolP("verbose", "v", false, "log at the configured level instead of warn")
	for _, name := range []string{"config", "email", "password", "verbose"} {
		o.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newRegisterCmd(o),
		newUsersCmd(o),
		newInboxCmd(o),
		newChatCmd(o),
	)
	return root
}

// Execute runs the root command until it returns or the process is
// interrupted, and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		stop()
		os.Exit(1)
	}
}

func (o *options) open() (*app.App, error) {
	return app.New(o.cfg)
}

func (o *options) credentials() (string, string, error) {
	email, password := o.v.GetString("email"), o.v.GetString("password")
	if email == "" || password == "" {
		return "", "", errors.New("--email and --password are required")
	}
	return email, password, nil
}

func (o *options) login(ctx context.Context, a *app.App) (*domain.AuthResponse, error) {
	email, password, err := o.credentials()
	if err != nil {
		return nil, err
	}
	return a.Auth.Authenticate(ctx, &domain.LoginRequest{Email: email, Password: password})
}
