package flyer

import (
	"flyerportal/pkg/server"
	"flyerportal/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("flyer.service",
	fx.Provide(NewService),
)

var HTTP = fx.Module("flyer.http",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

// Worker handles the token distribution task.
var Worker = fx.Module("flyer.worker",
	fx.Invoke(registerHandlers),
)

func registerRoutes(router *server.Router, h *Handler) {
	h.Register(router.API)
}

func registerHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.FlyerDistribute, s.HandleDistribute)
}
