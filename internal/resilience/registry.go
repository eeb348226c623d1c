package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ServiceHealth is the health of one upstream service as seen by the console.
type ServiceHealth struct {
	// Name is the service identifier.
	Name string `json:"name"`

	// CircuitState is the breaker state, or "" when the service has no breaker.
	CircuitState string `json:"circuitState,omitempty"`

	// Counts holds breaker statistics when the service has a breaker.
	Counts *gobreaker.Counts `json:"counts,omitempty"`

	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`

	// LastError is the most recent failure message.
	LastError string `json:"lastError,omitempty"`
}

// IsHealthy reports whether the breaker is closed and the latest recorded
// outcome was a success.
func (h *ServiceHealth) IsHealthy() bool {
	if h.CircuitState != "" && h.CircuitState != gobreaker.StateClosed.String() {
		return false
	}
	if h.LastFailureAt == nil {
		return true
	}
	return h.LastSuccessAt != nil && h.LastSuccessAt.After(*h.LastFailureAt)
}

// IsDegraded reports whether the breaker is half-open.
func (h *ServiceHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen.String()
}

// Registry tracks the services the console calls and their recent outcomes.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*registeredService
	now      func() time.Time
}

type registeredService struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]*registeredService),
		now:      time.Now,
	}
}

// Register adds a service. client may be nil for services probed without a
// breaker, such as the engine health endpoint.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = &registeredService{client: client}
}

// RecordSuccess records a successful call to a registered service.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.services[name]; ok {
		now := r.now()
		s.lastSuccessAt = &now
	}
}

// RecordFailure records a failed call to a registered service.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.services[name]; ok {
		now := r.now()
		s.lastFailureAt = &now
		if err != nil {
			s.lastError = err.Error()
		}
	}
}

// GetHealth returns the health of name, or nil when it is not registered.
func (r *Registry) GetHealth(name string) *ServiceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[name]
	if !ok {
		return nil
	}
	return s.health(name)
}

// GetAllHealth returns the health of every registered service ordered by name.
func (r *Registry) GetAllHealth() []*ServiceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ServiceHealth, 0, len(r.services))
	for name, s := range r.services {
		out = append(out, s.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *registeredService) health(name string) *ServiceHealth {
	h := &ServiceHealth{
		Name:          name,
		LastSuccessAt: s.lastSuccessAt,
		LastFailureAt: s.lastFailureAt,
		LastError:     s.lastError,
	}
	if s.client != nil {
		counts := s.client.CircuitBreakerCounts()
		h.CircuitState = s.client.CircuitBreakerState().String()
		h.Counts = &counts
	}
	return h
}
