package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

// withSession runs fn against a freshly opened engine.
func withSession(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, s *session) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := fn(ctx, s)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// NewRegisterCmd creates the register subcommand.
func NewRegisterCmd(opts *globalOptions) *cobra.Command {
	var nickname string
	cmd := &cobra.Command{
		Use:   "register EMAIL PASSWORD",
		Short: "Create an account and open its first session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) (any, error) {
				return s.engine.Register(ctx, args[0], args[1], nickname)
			})
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "", "display name (defaults to the email local part)")
	return cmd
}

// NewLoginCmd creates the login subcommand.
func NewLoginCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login EMAIL PASSWORD",
		Short: "Verify a password and open a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) (any, error) {
				return s.engine.Login(ctx, args[0], args[1])
			})
		},
	}
}

// NewRefreshCmd creates the refresh subcommand.
func NewRefreshCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh REFRESH_TOKEN",
		Short: "Rotate a refresh token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) (any, error) {
				return s.engine.Refresh(ctx, args[0])
			})
		},
	}
}

// NewLogoutCmd creates the logout subcommand.
func NewLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout USER_ID",
		Short: "Revoke every session of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) (any, error) {
				if err := s.engine.Logout(ctx, args[0]); err != nil {
					return nil, err
				}
				cmd.Println("All sessions revoked")
				return nil, nil
			})
		},
	}
}

// NewSessionsCmd creates the sessions subcommand.
func NewSessionsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions USER_ID",
		Short: "List the live sessions of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) (any, error) {
				return s.engine.ActiveSessions(ctx, args[0])
			})
		},
	}
}

// NewResetCmd creates the reset command group.
func NewResetCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Password reset by one-time code",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "request EMAIL",
		Short: "Send a reset code to EMAIL",
		Long: `Issue a six digit reset code and hand it to the configured mailer.
Without smtp settings the code is logged with its digits masked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) (any, error) {
				if err := s.engine.RequestPasswordReset(ctx, args[0]); err != nil {
					return nil, err
				}
				cmd.Println("If the account exists, a code is on its way")
				return nil, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "confirm EMAIL CODE NEW_PASSWORD",
		Short: "Redeem a reset code",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) (any, error) {
				if err := s.engine.ConfirmPasswordReset(ctx, args[0], args[1], args[2]); err != nil {
					return nil, err
				}
				cmd.Println("Password updated; every session was revoked")
				return nil, nil
			})
		},
	})

	return cmd
}
