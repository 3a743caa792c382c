package wallet

import (
	"flyerportal/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("wallet.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(router *server.Router, h *Handler) {
	h.Register(router.API)
}
