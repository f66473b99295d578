/*
Package handler provides HTTP handler functions for listing and managing channels.
*/
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stickychat/internal/app/channel"
	"stickychat/internal/app/priority"
	"stickychat/internal/pkg/auth/jwt"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/req"
	"stickychat/internal/pkg/resp"
)

type CreateChannelInput struct {
	// Type is CUSTOM or LOCAL; the global channel always exists and cannot be created.
	Type string `json:"type"`
	// Name is the display name. Names are not unique.
	Name string `json:"name"`
}

type channelView struct {
	channel.Info
	Members int `json:"members"`
}

func viewOf(c *channel.Channel) channelView {
	return channelView{Info: c.Info(), Members: len(c.Members())}
}

// HandleListChannels returns every channel in creation order.
func HandleListChannels(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channels := deps.Players.Channels.Channels()

		out := make([]channelView, 0, len(channels))
		for _, c := range channels {
			out = append(out, viewOf(c))
		}
		resp.RespondSuccess(w, r, out)
	}
}

// HandleCreateChannel creates a channel under a fresh identifier.
func HandleCreateChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateChannelInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		kind, err := channel.ParseType(input.Type)
		if err != nil || kind == channel.TypeGlobal {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		name := strings.TrimSpace(input.Name)
		if name == "" || len(name) > maxNameLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		c := deps.Players.Channels.Create(kind, name)

		logx.Info("Channel created over API", "channel_id", c.ID().String(), "by", jwt.GetPayloadFromContext(r).ID)
		resp.RespondCreated(w, r, viewOf(c))
	}
}

// HandleDeleteChannel removes a channel. The global channel is protected.
func HandleDeleteChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if id == channel.GlobalID {
			resp.RespondError(w, r, errs.NewError(errs.ErrGlobalChannelProtected))
			return
		}

		if !deps.Players.Channels.Remove(id) {
			resp.RespondError(w, r, errs.NewError(errs.ErrChannelNotFound))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"id": id})
	}
}

// RequirePriority rejects callers whose session tier is below floor. It must run after
// jwt.RequireIdentity.
func RequirePriority(floor priority.Level) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			level, err := priority.Parse(jwt.GetPayloadFromContext(r).Priority)
			if err != nil || floor.IsGreaterThan(level) {
				resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
