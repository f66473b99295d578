/*
Package handler provides HTTP handler functions for issuing session tokens.
*/
package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"stickychat/internal/app/priority"
	"stickychat/internal/app/user"
	"stickychat/internal/pkg/auth/jwt"
	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/limiter"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/req"
	"stickychat/internal/pkg/resp"
)

const maxNameLength = 32

type CreateSessionInput struct {
	// ID renews the session of the player named by the caller's token; a new one is
	// assigned when omitted.
	ID string `json:"id,omitempty"`
	// Name is the display name shown to other players.
	Name string `json:"name"`
	// Nonce and Counter answer a proof-of-work challenge when the gate is enabled.
	Nonce   string `json:"nonce,omitempty"`
	Counter string `json:"counter,omitempty"`
}

// HandleGetChallenge issues a proof-of-work challenge for an anonymous session request.
func HandleGetChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Challenges == nil {
			resp.RespondSuccess(w, r, map[string]any{"difficulty": 0})
			return
		}
		resp.RespondSuccess(w, r, deps.Challenges.Challenge())
	}
}

// HandleCreateSession issues a session token for a player. Tokens minted here carry the
// DIRECT tier; a caller that already holds a token may re-issue one at its own tier for the
// same player. Naming an existing player requires a token for that player. Anonymous
// callers must answer a challenge when the gate is enabled.
func HandleCreateSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateSessionInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name := strings.TrimSpace(input.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		identity := jwt.GetPayloadFromContext(r)

		id := user.New()
		if input.ID != "" {
			parsed, err := user.Parse(input.ID)
			if err != nil || parsed == user.Nil {
				logx.Warn("Invalid player id in session request", "id", input.ID)
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			if identity == nil || identity.ID != parsed.String() {
				logx.Warn("Session requested for a player the caller does not hold", "id", input.ID, "ip", limiter.ClientIP(r))
				resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
				return
			}
			id = parsed
		}

		if deps.Challenges != nil && identity == nil {
			if input.Nonce == "" {
				resp.RespondError(w, r, errs.NewError(errs.ErrChallengeRequired))
				return
			}
			if err := deps.Challenges.Redeem(input.Nonce, input.Counter); err != nil {
				logx.Warn("Session challenge rejected", "ip", limiter.ClientIP(r), "error", err.Error())
				resp.RespondError(w, r, errs.NewError(errs.ErrChallengeInvalid))
				return
			}
		}

		level := priority.Direct
		if identity != nil && identity.ID == id.String() {
			if current, err := priority.Parse(identity.Priority); err == nil {
				level = current
			}
		}

		payload := &jwt.Payload{
			ID:       id.String(),
			Name:     name,
			Priority: level.String(),
		}

		tokenString, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.SessionExpiration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		resp.RespondCreated(w, r, map[string]any{
			"token":    tokenString,
			"id":       id,
			"priority": level.String(),
		})
	}
}
