/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for validating the caller's
session token, building the player's context, upgrading the HTTP connection to WebSocket, and
initiating the client lifecycle.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"stickychat/internal/app/player"
	"stickychat/internal/app/priority"
	"stickychat/internal/app/session"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/auth/jwt"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The identity comes from the session token, which browsers pass as the token query parameter.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			logx.Warn("WebSocket request rejected: missing or invalid token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		id, err := user.Parse(identity.ID)
		if err != nil || id == user.Nil {
			logx.Warn("WebSocket request rejected: invalid player id in token", "id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		level, err := priority.Parse(identity.Priority)
		if err != nil {
			logx.Warn("WebSocket request rejected: invalid priority in token", "priority", identity.Priority)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		p, err := player.New(r.Context(), deps.Players, user.User{ID: id, Name: identity.Name}, level)
		if err != nil {
			logx.Error(err, "Failed to load player state", "client_id", id.String())
			resp.RespondErr(w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := session.NewClient(deps.Hub, conn, p, session.ClientOptions{
			JWTSecret:   deps.Config.JWTSecret,
			TokenExpiry: identity.Expiry(),
			SendLimiter: deps.SendLimiter,
		})

		go client.WritePump()

		if err := deps.Hub.Register(r.Context(), client); err != nil {
			logx.Error(err, "Failed to register client", "client_id", id.String())
			client.Kick(websocket.CloseInternalServerErr, "Presence unavailable.")
			return
		}

		logx.Info("WebSocket connection established and client registered", "client_id", id.String())

		client.ReadPump(r.Context())
	}
}
