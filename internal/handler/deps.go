package handler

import (
	"stickychat/internal/app/player"
	"stickychat/internal/app/session"
	"stickychat/internal/configs"
	"stickychat/internal/pkg/limiter"
	"stickychat/internal/pkg/pow"
)

// AppDeps holds the instance-wide services shared by every handler.
type AppDeps struct {
	Config *configs.AppConfig
	Hub    *session.Hub

	// Players are bound into every session's player context.
	Players player.Deps

	// SendLimiter throttles chat and direct messages per player across their sessions.
	SendLimiter *limiter.Keyed

	// Challenges gates anonymous session requests; nil disables the gate.
	Challenges *pow.Gate
}
