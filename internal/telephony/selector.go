package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"account-verifier/internal/config"
	"account-verifier/internal/settings"
)

// Factory builds a provider adapter by name. Split out so tests can inject
// fakes without touching vendor credentials.
type Factory func(name string, simulated bool) (Provider, error)

// NewFactory returns the production factory wired from config.
func NewFactory(cfg config.Config, log *slog.Logger) Factory {
	return func(name string, simulated bool) (Provider, error) {
		sim := Simulation{
			Enabled: simulated,
			// Live vendors deliver their own callbacks; only simulated calls
			// need a synthetic one.
			DeliverWebhook: simulated,
		}
		switch name {
		case "twilio":
			return NewTwilioProvider(TwilioOptions{
				AccountSID: cfg.Twilio.AccountSID,
				AuthToken:  cfg.Twilio.AuthToken,
				FromNumber: cfg.Twilio.FromNumber,
				Simulation: sim,
				Logger:     log,
			}), nil
		case "telnyx":
			return NewTelnyxProvider(TelnyxOptions{
				APIKey:     cfg.Telnyx.APIKey,
				FromNumber: cfg.Telnyx.FromNumber,
				Simulation: sim,
				Logger:     log,
			}), nil
		case "plivo":
			return NewPlivoProvider(PlivoOptions{
				AuthID:     cfg.Plivo.AuthID,
				AuthToken:  cfg.Plivo.AuthToken,
				FromNumber: cfg.Plivo.FromNumber,
				Simulation: sim,
				Logger:     log,
			}), nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
		}
	}
}

// Selector resolves the active provider adapter on every use and caches the
// built adapter until the resolved (name, simulated) pair changes. Switching
// the provider setting takes effect on the next call without a restart;
// in-flight calls keep the adapter they started with.
type Selector struct {
	runtime *settings.Runtime
	factory Factory
	log     *slog.Logger

	mu        sync.Mutex
	current   Provider
	name      string
	simulated bool
}

func NewSelector(runtime *settings.Runtime, factory Factory, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{runtime: runtime, factory: factory, log: log}
}

// Active returns the adapter for the currently configured provider.
func (s *Selector) Active(ctx context.Context) (Provider, error) {
	name := s.runtime.Provider(ctx)
	simulated := s.runtime.Simulated(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.name == name && s.simulated == simulated {
		return s.current, nil
	}

	p, err := s.factory(name, simulated)
	if err != nil {
		return nil, err
	}
	if s.current != nil {
		s.log.Info("switching telephony provider", "from", s.name, "to", name, "simulated", simulated)
	}
	s.current = p
	s.name = name
	s.simulated = simulated
	return p, nil
}

// ByName returns an adapter for an explicit provider, bypassing the cache.
// Used by webhook handlers that need the vendor named in the request path.
func (s *Selector) ByName(ctx context.Context, name string) (Provider, error) {
	simulated := s.runtime.Simulated(ctx)

	s.mu.Lock()
	if s.current != nil && s.name == name && s.simulated == simulated {
		p := s.current
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	return s.factory(name, simulated)
}
