package discovery

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// agent is the part of the Consul agent API used for registration.
type agent interface {
	ServiceRegister(reg *consulapi.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// Registration advertises this instance in Consul with an HTTP health check
// so gateways can route websocket traffic to it.
type Registration struct {
	agent  agent
	id     string
	logger *zap.Logger
}

type Service struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
}

func NewRegistration(consulAddr string, logger *zap.Logger) (*Registration, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = consulAddr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Registration{agent: client.Agent(), logger: logger}, nil
}

func (r *Registration) Register(svc Service) error {
	host := svc.Address
	if host == "" {
		host = "127.0.0.1"
	}
	reg := &consulapi.AgentServiceRegistration{
		ID:      svc.ID,
		Name:    svc.Name,
		Address: svc.Address,
		Port:    svc.Port,
		Tags:    svc.Tags,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/v1/health", host, svc.Port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := r.agent.ServiceRegister(reg); err != nil {
		return fmt.Errorf("consul register %s: %w", svc.ID, err)
	}
	r.id = svc.ID
	r.logger.Info("registered with consul", zap.String("service_id", svc.ID), zap.String("name", svc.Name))
	return nil
}

func (r *Registration) Deregister() error {
	if r.id == "" {
		return nil
	}
	if err := r.agent.ServiceDeregister(r.id); err != nil {
		return fmt.Errorf("consul deregister %s: %w", r.id, err)
	}
	r.logger.Info("deregistered from consul", zap.String("service_id", r.id))
	r.id = ""
	return nil
}
