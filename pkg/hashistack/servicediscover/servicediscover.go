package servicediscover

import (
	"context"
	"fmt"
	"strconv"

	"flyerportal/pkg/config"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("servicediscover",
	fx.Provide(NewRegistry),
	fx.Invoke(registerConsul),
)

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type noopRegistry struct{}

func (noopRegistry) Register(context.Context) error   { return nil }
func (noopRegistry) Deregister(context.Context) error { return nil }

type ConsulRegistry struct {
	client    *api.Client
	serviceID string
	service   *api.AgentServiceRegistration
}

// NewRegistry registers the HTTP server with consul when CONSUL.ADDR is set.
func NewRegistry(cfg *config.Config, node *snowflake.Node) (ServiceRegistry, error) {
	if cfg.Consul.Addr == "" {
		return noopRegistry{}, nil
	}

	port, err := strconv.Atoi(cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_SERVER.ADDR %q: %w", cfg.Server.Addr, err)
	}

	host := cfg.Server.Host
	if host == "" {
		host = "127.0.0.1"
	}

	serviceID := fmt.Sprintf("%s-%s", cfg.AppName, node.Generate().String())
	return NewConsulRegistry(cfg.Consul.Addr, cfg.AppName, serviceID, host, port)
}

func NewConsulRegistry(address, serviceName, serviceID, host string, port int) (*ConsulRegistry, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	service := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: host,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health/readiness", host, port),
			Interval: "10s",
			Timeout:  "5s",
		},
	}

	return &ConsulRegistry{
		client:    client,
		serviceID: serviceID,
		service:   service,
	}, nil
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegisterOpts(r.service, api.ServiceRegisterOpts{}.WithContext(ctx))
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregisterOpts(r.serviceID, (&api.QueryOptions{}).WithContext(ctx))
}

func registerConsul(lc fx.Lifecycle, registry ServiceRegistry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				zap.L().Error("failed to register service", zap.Error(err))
				return err
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})
}
