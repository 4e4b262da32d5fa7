// Package bootstrap turns the one-time run payload into a configuration and
// the single capability client of the process.
package bootstrap

import (
	"net/http"
	"strings"
	"sync"

	"github.com/nuyoahch/agent-runtime/internal/capability"
	"github.com/nuyoahch/agent-runtime/internal/config"
	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/internal/hub"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
)

// ErrUninitialized is returned by accessors before a successful Initialize.
var ErrUninitialized = xerrors.New(xerrors.CodeUninitialized, "configuration manager is not initialized")

// ClientFactory builds the capability client for a run. It is called at
// most once per Manager.
type ClientFactory func(cfg RunConfiguration) (agentenv.SecureClient, error)

type state int

const (
	stateUninitialized state = iota
	stateReady
)

// Manager owns the run configuration and capability client.
type Manager struct {
	factory ClientFactory

	mu     sync.RWMutex
	state  state
	config RunConfiguration
	client agentenv.SecureClient
}

// NewManager returns an uninitialized manager.
func NewManager(factory ClientFactory) *Manager {
	return &Manager{factory: factory}
}

// Initialize parses payload and builds the client. It returns false without
// changing anything when already initialized or when payload is blank.
func (m *Manager) Initialize(payload string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateReady || strings.TrimSpace(payload) == "" {
		return false, nil
	}
	cfg, err := ParsePayload([]byte(payload))
	if err != nil {
		return false, err
	}
	if m.factory == nil {
		return false, xerrors.New(xerrors.CodeConfigInvalid, "no capability client factory configured")
	}
	client, err := m.factory(cfg.clone())
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeConfigInvalid, err, "construct capability client",
			xerrors.WithSeverity(xerrors.SeverityCritical))
	}

	m.config = cfg
	m.client = client
	m.state = stateReady
	return true, nil
}

// Ready reports whether Initialize has succeeded.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateReady
}

// CapabilityClient returns the client built by Initialize.
func (m *Manager) CapabilityClient() (agentenv.SecureClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != stateReady {
		return nil, ErrUninitialized
	}
	return m.client, nil
}

// Config returns a copy of the configuration with UserAuth always empty.
func (m *Manager) Config() (RunConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != stateReady {
		return RunConfiguration{}, ErrUninitialized
	}
	cfg := m.config.clone()
	cfg.UserAuth = ""
	return cfg, nil
}

// HubClientFactory builds hub adapters tuned by the host settings and
// narrowed by policy.
func HubClientFactory(settings config.HubConfig, policy capability.Policy, httpClient *http.Client) ClientFactory {
	return func(cfg RunConfiguration) (agentenv.SecureClient, error) {
		adapter, err := hub.New(hub.Config{
			UserAuth:          cfg.UserAuth,
			BaseURL:           cfg.BaseURL,
			ThreadID:          cfg.ThreadID,
			EnvVars:           cfg.EnvVars,
			Timeout:           settings.Timeout(),
			RequestsPerSecond: settings.RequestsPerSecond,
			Burst:             settings.Burst,
			HTTPClient:        httpClient,
		})
		if err != nil {
			return nil, err
		}
		return capability.Restrict(adapter, policy), nil
	}
}
