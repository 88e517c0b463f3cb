package model

import "time"

// EndpointHealth tracks the health of a model endpoint for circuit breaking.
type EndpointHealth struct {
	// Available indicates if the endpoint is currently usable.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful request.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastFailure is the time of the last failed request.
	LastFailure time.Time `json:"last_failure,omitempty"`

	// FailureCount is the number of consecutive failures.
	FailureCount int `json:"failure_count"`

	// CircuitOpen indicates if the circuit breaker has tripped.
	CircuitOpen bool `json:"circuit_open"`

	// CircuitOpenedAt is when the circuit was opened.
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures circuit breaking behavior.
type HealthConfig struct {
	// FailureThreshold is the consecutive failures before opening the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long to wait before trying a failed endpoint again.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns sensible circuit breaker defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// SetHealthConfig updates the circuit breaker configuration.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthConfig = cfg
}

// MarkEndpointSuccess records a successful request, closing the circuit.
func (r *Registry) MarkEndpointSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.healthLocked(name)
	h.LastSuccess = time.Now()
	h.FailureCount = 0
	h.Available = true
	h.CircuitOpen = false
}

// MarkEndpointFailure records a failed request, opening the circuit once the
// failure threshold is reached.
func (r *Registry) MarkEndpointFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.healthLocked(name)
	h.LastFailure = time.Now()
	h.FailureCount++

	if h.FailureCount >= r.healthConfig.FailureThreshold {
		h.CircuitOpen = true
		h.CircuitOpenedAt = time.Now()
		h.Available = false
	}
}

// IsEndpointAvailable reports whether an endpoint should receive requests.
// An open circuit lets one request through after the recovery timeout
// (half-open probing).
func (r *Registry) IsEndpointAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.health[name]
	if !ok {
		return true // Unknown endpoint = available
	}
	if !h.CircuitOpen {
		return true
	}
	return time.Since(h.CircuitOpenedAt) > r.healthConfig.RecoveryTimeout
}

// GetEndpointHealth returns a copy of the health status for an endpoint,
// or nil when nothing has been recorded.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.health[name]
	if !ok {
		return nil
	}
	copied := *h
	return &copied
}

// ResetEndpointHealth clears the health status for an endpoint.
func (r *Registry) ResetEndpointHealth(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.health, name)
}

// healthLocked returns the health record for name, creating it if needed.
// Caller must hold the write lock.
func (r *Registry) healthLocked(name string) *EndpointHealth {
	if h, ok := r.health[name]; ok {
		return h
	}
	h := &EndpointHealth{Available: true}
	r.health[name] = h
	return h
}
