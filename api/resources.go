package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/MrEthical07/cmsync/gateway"
	"github.com/MrEthical07/cmsync/mutation"
	"github.com/MrEthical07/cmsync/query"
)

// Dashboard is the landing page summary.
type Dashboard struct {
	d *deps
}

// Get returns the dashboard. A user object in the response refreshes the
// session's profile fields.
func (r *Dashboard) Get(ctx context.Context) query.Result[DashboardData] {
	return query.Get(ctx, r.d.cache, KeyDashboard, func(ctx context.Context) (DashboardData, error) {
		data, err := call[DashboardData](ctx, r.d, http.MethodGet, "/dashboard", nil)
		if err != nil {
			return data, err
		}
		if data.User != nil && r.d.session.IsAuthenticated() {
			if _, err := r.d.session.ApplyProfile(ctx, *data.User); err != nil {
				r.d.logger.Debug("api: dashboard user not applied", "error", err)
			}
		}
		return data, nil
	})
}

// Tickets is the support desk.
type Tickets struct {
	d *deps

	Create   *mutation.Mutation[CreateTicketInput, Ticket]
	Hide     *mutation.Mutation[string, json.RawMessage]
	Delete   *mutation.Mutation[string, json.RawMessage]
	Reply    *mutation.Mutation[ReplyInput, json.RawMessage]
	Evaluate *mutation.Mutation[EvaluateInput, json.RawMessage]
}

func newTickets(d *deps) *Tickets {
	opts := d.mutationOpts(KeyTickets)
	return &Tickets{
		d: d,
		Create: mutation.New("tickets.create", func(ctx context.Context, in CreateTicketInput) (Ticket, error) {
			return call[Ticket](ctx, d, http.MethodPost, "/tickets", in)
		}, opts...),
		Hide: mutation.New("tickets.hide", func(ctx context.Context, id string) (json.RawMessage, error) {
			return d.gw.Call(ctx, "/tickets/"+url.PathEscape(id)+"/hide", gateway.Options{Method: http.MethodPatch})
		}, opts...),
		Delete: mutation.New("tickets.delete", func(ctx context.Context, id string) (json.RawMessage, error) {
			return d.gw.Call(ctx, "/tickets/"+url.PathEscape(id), gateway.Options{Method: http.MethodDelete})
		}, opts...),
		Reply: mutation.New("tickets.reply", func(ctx context.Context, in ReplyInput) (json.RawMessage, error) {
			return d.gw.Call(ctx, "/tickets/"+url.PathEscape(in.TicketID)+"/reply", gateway.Options{Method: http.MethodPost, Body: in})
		}, opts...),
		Evaluate: mutation.New("tickets.evaluate", func(ctx context.Context, in EvaluateInput) (json.RawMessage, error) {
			return d.gw.Call(ctx, "/tickets/"+url.PathEscape(in.TicketID)+"/evaluate", gateway.Options{Method: http.MethodPost, Body: in})
		}, opts...),
	}
}

// List returns every visible ticket.
func (r *Tickets) List(ctx context.Context) query.Result[[]Ticket] {
	return query.Get(ctx, r.d.cache, KeyTickets, func(ctx context.Context) ([]Ticket, error) {
		return gateway.List[Ticket](ctx, r.d.gw, "/tickets", gateway.Options{})
	})
}

// Posts is the social post scheduler.
type Posts struct {
	d *deps

	Create *mutation.Mutation[PostInput, Post]
	Update *mutation.Mutation[UpdatePostInput, Post]
	Delete *mutation.Mutation[string, json.RawMessage]
}

func newPosts(d *deps) *Posts {
	opts := d.mutationOpts(KeyPosts)
	return &Posts{
		d: d,
		Create: mutation.New("posts.create", func(ctx context.Context, in PostInput) (Post, error) {
			return call[Post](ctx, d, http.MethodPost, "/posts", in)
		}, opts...),
		Update: mutation.New("posts.update", func(ctx context.Context, in UpdatePostInput) (Post, error) {
			return call[Post](ctx, d, http.MethodPut, "/posts/"+url.PathEscape(in.ID), in.Post)
		}, opts...),
		Delete: mutation.New("posts.delete", func(ctx context.Context, id string) (json.RawMessage, error) {
			return d.gw.Call(ctx, "/posts/"+url.PathEscape(id), gateway.Options{Method: http.MethodDelete})
		}, opts...),
	}
}

// DefaultPostsLimit is the page size used when the caller has no preference.
const DefaultPostsLimit = 10

// List returns one page of posts.
func (r *Posts) List(ctx context.Context, page, limit int) query.Result[PostsPage] {
	return query.Get(ctx, r.d.cache, PostsKey(page, limit), func(ctx context.Context) (PostsPage, error) {
		q := url.Values{}
		q.Set("page", itoa(page))
		q.Set("limit", itoa(limit))
		out, err := gateway.Do[PostsPage](ctx, r.d.gw, "/posts", gateway.Options{Query: q})
		if out.Posts == nil {
			out.Posts = []Post{}
		}
		return out, err
	})
}

// Get returns a single post.
func (r *Posts) Get(ctx context.Context, id string) query.Result[Post] {
	return query.Get(ctx, r.d.cache, PostKey(id), func(ctx context.Context) (Post, error) {
		return call[Post](ctx, r.d, http.MethodGet, "/posts/"+url.PathEscape(id), nil)
	})
}

// Clients is the client directory.
type Clients struct {
	d *deps

	Create *mutation.Mutation[ClientInput, Client]
	Delete *mutation.Mutation[string, json.RawMessage]
}

func newClients(d *deps) *Clients {
	opts := d.mutationOpts(KeyClients)
	return &Clients{
		d: d,
		Create: mutation.New("clients.create", func(ctx context.Context, in ClientInput) (Client, error) {
			raw, err := d.gw.Call(ctx, "/clients", gateway.Options{Method: http.MethodPost, Body: in})
			if err != nil {
				return Client{}, err
			}
			return decodeWrapped[Client](raw, "client")
		}, opts...),
		Delete: mutation.New("clients.delete", func(ctx context.Context, id string) (json.RawMessage, error) {
			return d.gw.Call(ctx, "/clients/"+url.PathEscape(id), gateway.Options{Method: http.MethodDelete})
		}, opts...),
	}
}

// List returns every client.
func (r *Clients) List(ctx context.Context) query.Result[[]Client] {
	return query.Get(ctx, r.d.cache, KeyClients, func(ctx context.Context) ([]Client, error) {
		return gateway.List[Client](ctx, r.d.gw, "/clients", gateway.Options{}, "clients", "data")
	})
}

// Settings is the user's settings document.
type Settings struct {
	d *deps

	Update *mutation.Mutation[SettingsDocument, SettingsDocument]
}

func newSettings(d *deps) *Settings {
	return &Settings{
		d: d,
		Update: mutation.New("settings.update", func(ctx context.Context, in SettingsDocument) (SettingsDocument, error) {
			return call[SettingsDocument](ctx, d, http.MethodPut, "/settings", in)
		}, d.mutationOpts(KeySettings)...),
	}
}

// Get returns the settings document.
func (r *Settings) Get(ctx context.Context) query.Result[SettingsDocument] {
	return query.Get(ctx, r.d.cache, KeySettings, func(ctx context.Context) (SettingsDocument, error) {
		return call[SettingsDocument](ctx, r.d, http.MethodGet, "/settings", nil)
	})
}

// decodeWrapped decodes raw as T, unwrapping it from {field: ...} first
// when present.
func decodeWrapped[T any](raw json.RawMessage, field string) (T, error) {
	var out T
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err == nil {
		if inner, ok := wrapper[field]; ok {
			raw = inner
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &gateway.Error{Message: gateway.DefaultErrorMessage, Body: raw, Err: gateway.ErrDecode}
	}
	return out, nil
}
