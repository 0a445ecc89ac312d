package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

func credentialsForm(email, password *string) error {
	var fields []huh.Field
	if *email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Value(email).
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter a valid email address")
				}
				return nil
			}))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("password is required")
				}
				return nil
			}))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func newSignUpCmd(flags *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentialsForm(&email, &password); err != nil {
				return err
			}
			return withApp(cmd.Context(), flags, func(app *App) error {
				session, err := app.Auth.SignUp(cmd.Context(), strings.TrimSpace(email), password)
				if err != nil {
					return fmt.Errorf("sign up: %w", err)
				}
				if session == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Account created. Check your email to confirm it, then run 'onetask signin'.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed up and signed in as %s\n", session.User.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func newSignInCmd(flags *globalFlags) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentialsForm(&email, &password); err != nil {
				return err
			}
			return withApp(cmd.Context(), flags, func(app *App) error {
				session, err := app.Auth.SignIn(cmd.Context(), strings.TrimSpace(email), password)
				if err != nil {
					return fmt.Errorf("sign in: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", session.User.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func newSignOutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				if app.Auth.Session() == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
					return nil
				}
				if err := app.Auth.SignOut(cmd.Context()); err != nil {
					return fmt.Errorf("signed out locally, but %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
				return nil
			})
		},
	}
}

func newWhoAmICmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(app *App) error {
				s := app.Auth.Session()
				if s == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
					return nil
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Email:   %s\n", s.User.Email)
				fmt.Fprintf(out, "User ID: %s\n", s.User.ID)
				fmt.Fprintf(out, "Backend: %s\n", app.Config.Backend)
				if !s.ExpiresAt.IsZero() {
					fmt.Fprintf(out, "Token:   expires %s\n", s.ExpiresAt.Local().Format(time.DateTime))
				}
				return nil
			})
		},
	}
}
