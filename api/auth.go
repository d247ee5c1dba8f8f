package api

import (
	"context"
	"net/http"

	"github.com/MrEthical07/cmsync/mutation"
	"github.com/MrEthical07/cmsync/session"
)

// Auth covers login, registration and password recovery.
type Auth struct {
	// Login authenticates and installs the session.
	Login *mutation.Mutation[LoginInput, session.User]
	// Register creates an account. When the backend answers with a token
	// the new user is logged in.
	Register       *mutation.Mutation[RegisterInput, AuthResponse]
	ForgotPassword *mutation.Mutation[ForgotPasswordInput, MessageResponse]
	ResetPassword  *mutation.Mutation[ResetPasswordInput, MessageResponse]
}

func newAuth(d *deps) *Auth {
	return &Auth{
		Login: mutation.New("auth.login", func(ctx context.Context, in LoginInput) (session.User, error) {
			resp, err := call[AuthResponse](ctx, d, http.MethodPost, "/auth/login", in)
			if err != nil {
				return session.User{}, err
			}
			if resp.Token == "" {
				return session.User{}, ErrNoToken
			}
			return d.session.Login(ctx, resp.Token, resp.User)
		}, d.mutationOpts()...),

		Register: mutation.New("auth.register", func(ctx context.Context, in RegisterInput) (AuthResponse, error) {
			resp, err := call[AuthResponse](ctx, d, http.MethodPost, "/auth/register", in)
			if err != nil {
				return resp, err
			}
			if resp.Token != "" {
				user, err := d.session.Login(ctx, resp.Token, resp.User)
				if err != nil {
					return resp, err
				}
				resp.User = &user
			}
			return resp, nil
		}, d.mutationOpts()...),

		ForgotPassword: mutation.New("auth.forgot_password", func(ctx context.Context, in ForgotPasswordInput) (MessageResponse, error) {
			return call[MessageResponse](ctx, d, http.MethodPost, "/auth/forgot-password", in)
		}, d.mutationOpts()...),

		ResetPassword: mutation.New("auth.reset_password", func(ctx context.Context, in ResetPasswordInput) (MessageResponse, error) {
			return call[MessageResponse](ctx, d, http.MethodPost, "/auth/reset-password", in)
		}, d.mutationOpts()...),
	}
}
