package lottery

import (
	"flyerportal/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("lottery.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("lottery.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(router *server.Router, h *Handler) {
	h.Register(router.API)
}
