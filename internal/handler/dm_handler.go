/*
Package handler provides HTTP handler functions for direct-message state and administration.
*/
package handler

import (
	"net/http"
	"strings"

	"stickychat/internal/app/notify"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/auth/jwt"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/req"
	"stickychat/internal/pkg/resp"
)

// identityID reads the caller's player id. It must run behind jwt.RequireIdentity.
func identityID(r *http.Request) (user.ID, *errs.CustomError) {
	id, err := user.Parse(jwt.GetPayloadFromContext(r).ID)
	if err != nil || id == user.Nil {
		return user.Nil, errs.NewError(errs.ErrInvalidParams)
	}
	return id, nil
}

// HandleGetDMState returns the caller's direct-message settings and last contact.
func HandleGetDMState(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, customErr := identityID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		svc, err := deps.Players.Store.Load(r.Context(), id)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		data := map[string]any{
			"enabled": svc.DirectMessagesEnabled(),
			"blocked": svc.BlockedUsers(),
		}
		if last, ok := svc.Last(); ok {
			data["last"] = last
		}
		resp.RespondSuccess(w, r, data)
	}
}

// HandleListMessageable returns the players the caller could message right now.
func HandleListMessageable(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, customErr := identityID(r)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		players, err := deps.Players.Router.MessageablePlayers(r.Context(), id)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}
		resp.RespondSuccess(w, r, players)
	}
}

// HandleListDisabled returns every tracked player with direct messages turned off.
func HandleListDisabled(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Players.Router.DisabledPlayers())
	}
}

// HandleListOnline returns the players connected to this instance.
func HandleListOnline(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"instance": deps.Config.InstanceID,
			"players":  deps.Hub.Online(),
		})
	}
}

type SystemMessageInput struct {
	To      string `json:"to"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}

var notificationTypes = map[string]notify.Type{
	"":        notify.TypeInfo,
	"success": notify.TypeSuccess,
	"info":    notify.TypeInfo,
	"quiet":   notify.TypeQuiet,
	"error":   notify.TypeError,
}

// HandleSendSystemMessage delivers a system notification to a player connected here.
func HandleSendSystemMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SystemMessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		to, err := user.Parse(input.To)
		if err != nil || to == user.Nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		t, ok := notificationTypes[strings.ToLower(input.Type)]
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if strings.TrimSpace(input.Content) == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageContentEmpty))
			return
		}

		result, err := deps.Players.Router.SendSystemMessage(r.Context(), to, t, input.Content)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}
		resp.RespondSuccess(w, r, result)
	}
}
