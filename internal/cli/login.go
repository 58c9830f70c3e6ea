package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/geocoder89/shopadmin/internal/domain/login"
	"github.com/geocoder89/shopadmin/internal/session"
	"github.com/geocoder89/shopadmin/internal/upstream"
	"github.com/geocoder89/shopadmin/internal/upstream/authapi"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

type LoginOptions struct {
	*RootOptions
	Username string
	Password string
}

func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "login",
		Short:         "Check credentials against the Auth API and print the session state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "user name")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "password")

	return cmd
}

var credentialsValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}()

func runLogin(cmd *cobra.Command, opts *LoginOptions) error {
	creds := login.Credentials{Username: opts.Username, Password: opts.Password}
	if err := credentialsValidator.Struct(creds); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("--%s is %s", flagName(ve[0].Field()), ve[0].Tag()))
		}
		return WrapExitError(ExitCommandError, "invalid credentials", err)
	}

	client, err := authapi.New(authapi.Config{
		BaseURL: opts.AuthAPI,
		Breaker: upstream.NewBreaker(upstream.BreakerConfig{Timeout: opts.Timeout}),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --auth-api", err)
	}

	out := opts.formatter(cmd)
	slice := session.NewSlice(session.State{}, client, opts.logger(cmd.ErrOrStderr()))
	outcome, st := slice.Login(cmd.Context(), creds)

	switch o := outcome.(type) {
	case login.Accepted:
		return out.Success(st, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "logged in as %s (role %s)\n", o.UserID, o.Role)
			return err
		})
	case login.Rejected:
		_ = out.Error("login_rejected", o.Status, st)
		return NewExitError(ExitFailure, "login rejected")
	default:
		_ = out.Error("auth_failed", st.LoginError, nil)
		return NewExitError(ExitCommandError, "auth api unavailable")
	}
}

func flagName(field string) string {
	switch field {
	case "Username":
		return "username"
	case "Password":
		return "password"
	}
	return field
}
