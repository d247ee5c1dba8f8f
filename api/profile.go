package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/MrEthical07/cmsync/gateway"
	"github.com/MrEthical07/cmsync/mutation"
	"github.com/MrEthical07/cmsync/session"
)

// ErrEmptyConfirmationToken is returned by ConfirmUpdate without a token.
var ErrEmptyConfirmationToken = errors.New("confirmation token is empty")

// Profile covers the signed-in user's own account.
type Profile struct {
	Update         *mutation.Mutation[ProfileInput, ProfileResponse]
	UploadAvatar   *mutation.Mutation[AvatarUpload, AvatarResponse]
	ChangePassword *mutation.Mutation[ChangePasswordInput, ProfileResponse]

	// ConfirmUpdate follows an emailed confirmation link. A 400 from the
	// backend means the link expired; that is reported as
	// ConfirmationExpired, not as an error.
	ConfirmUpdate *mutation.Mutation[string, session.Confirmation]
}

func newProfile(d *deps) *Profile {
	return &Profile{
		Update: mutation.New("profile.update", func(ctx context.Context, in ProfileInput) (ProfileResponse, error) {
			resp, err := call[ProfileResponse](ctx, d, http.MethodPut, "/profile", in)
			if err != nil {
				return resp, err
			}
			return resp, d.settleProfile(ctx, &resp)
		}, d.mutationOpts(KeySession, KeyDashboard)...),

		UploadAvatar: mutation.New("profile.avatar", func(ctx context.Context, in AvatarUpload) (AvatarResponse, error) {
			body := gateway.NewMultipart().File("avatar", in.Filename, in.Content)
			resp, err := call[AvatarResponse](ctx, d, http.MethodPost, "/profile/avatar", body)
			if err != nil {
				return resp, err
			}
			if resp.URL != "" && d.session.IsAuthenticated() {
				if _, err := d.session.ApplyProfile(ctx, session.User{AvatarURL: resp.URL, AvatarFile: resp.Filename}); err != nil {
					d.logger.Debug("api: avatar not applied", "error", err)
				}
			}
			return resp, nil
		}, d.mutationOpts(KeySession, KeyDashboard)...),

		ChangePassword: mutation.New("profile.password", func(ctx context.Context, in ChangePasswordInput) (ProfileResponse, error) {
			resp, err := call[ProfileResponse](ctx, d, http.MethodPost, "/profile/password", in)
			if err != nil {
				return resp, err
			}
			return resp, d.settleProfile(ctx, &resp)
		}, d.mutationOpts()...),

		ConfirmUpdate: mutation.New("profile.confirm", func(ctx context.Context, tok string) (session.Confirmation, error) {
			if tok == "" {
				return session.ConfirmationIdle, ErrEmptyConfirmationToken
			}
			q := url.Values{}
			q.Set("token", tok)
			_, err := d.gw.Call(ctx, "/profile/confirm-update", gateway.Options{Query: q})
			switch {
			case err == nil:
				return session.ConfirmationConfirmed, d.session.ResolveConfirmation(ctx, true)
			case gateway.StatusOf(err) == http.StatusBadRequest:
				return session.ConfirmationExpired, d.session.ResolveConfirmation(ctx, false)
			default:
				return session.ConfirmationIdle, err
			}
		}, d.mutationOpts(KeySession, KeyDashboard)...),
	}
}

// settleProfile applies the returned user to the session and records a
// pending confirmation.
func (d *deps) settleProfile(ctx context.Context, resp *ProfileResponse) error {
	if resp.User != nil && d.session.IsAuthenticated() {
		updated, err := d.session.ApplyProfile(ctx, *resp.User)
		if err != nil {
			return err
		}
		resp.User = &updated
	}
	if resp.PendingConfirmation {
		return d.session.AwaitConfirmation(ctx)
	}
	return nil
}
