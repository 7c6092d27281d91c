package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"budgetsync/internal/api"
	"budgetsync/internal/bootstrap"
	"budgetsync/internal/core"
)

func newLoginCmd(factory appFactory) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				u, err := app.Session.Login(ctx, email, password)
				if err != nil {
					return err
				}
				app.Coordinator.Wait()
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s <%s>\n", u.Name, u.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRegisterCmd(factory appFactory) *cobra.Command {
	var in api.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.PasswordConfirmation == "" {
				in.PasswordConfirmation = in.Password
			}
			return withApp(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				u, err := app.Session.Register(ctx, in)
				if err != nil {
					return err
				}
				app.Coordinator.Wait()
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "registered %s <%s>\n", u.Name, u.Email)
				if !u.IsEmailVerified {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "check your inbox to verify your email")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Password, "password", "", "account password")
	cmd.Flags().StringVar(&in.PasswordConfirmation, "password-confirmation", "", "repeat the password (defaults to --password)")
	return cmd
}

func newLogoutCmd(factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				app.Session.Logout(ctx)
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(factory appFactory) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if offline {
				return whoamiOffline(cmd, factory)
			}
			return withUser(cmd, factory, func(_ context.Context, app *bootstrap.App) error {
				u, _ := app.Session.User()
				printUser(cmd.OutOrStdout(), u)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "print the locally stored user without contacting the server")
	return cmd
}

// whoamiOffline skips the bootstrap sequence on purpose: restoring would
// validate the token with the server.
func whoamiOffline(cmd *cobra.Command, factory appFactory) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := factory(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	u, ok := app.Session.PersistedUser(ctx)
	if !ok {
		return errNotSignedIn
	}
	printUser(cmd.OutOrStdout(), u)
	return nil
}

func newSettingsCmd(factory appFactory) *cobra.Command {
	var theme, currency, language string
	var toggleTheme bool
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change theme, currency and language",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				u, _ := app.Session.User()
				s := u.Settings()
				flags := cmd.Flags()
				if !flags.Changed("theme") && !flags.Changed("currency") && !flags.Changed("language") && !toggleTheme {
					printUser(cmd.OutOrStdout(), u)
					return nil
				}
				if toggleTheme {
					s.Theme = u.ToggledTheme()
				}
				if flags.Changed("theme") {
					s.Theme = theme
				}
				if flags.Changed("currency") {
					s.Currency = currency
				}
				if flags.Changed("language") {
					s.Language = language
				}
				updated, err := app.Session.UpdateSettings(ctx, s)
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), updated)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "light|dark")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO currency code")
	cmd.Flags().StringVar(&language, "language", "", "language code")
	cmd.Flags().BoolVar(&toggleTheme, "toggle-theme", false, "switch between light and dark")
	return cmd
}

func newResendVerificationCmd(factory appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "resend-verification",
		Short: "Send the email verification link again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUser(cmd, factory, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Session.ResendVerificationEmail(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "verification email sent")
				return nil
			})
		},
	}
}

func printUser(w io.Writer, u core.User) {
	verified := "no"
	if u.IsEmailVerified {
		verified = "yes"
	}
	_, _ = fmt.Fprintf(w, "id: %s\nname: %s\nemail: %s\nverified: %s\ntheme: %s\ncurrency: %s\nlanguage: %s\n",
		u.ID, u.Name, u.Email, verified, u.Theme, u.Currency, u.Language)
}
