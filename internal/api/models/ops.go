package models

// Health is the liveness body of the console itself.
type Health struct {
	Status string `json:"status"`
}

// EngineHealth is the engine health snapshot.
type EngineHealth struct {
	IsUp          bool       `json:"isUp"`
	Loading       bool       `json:"loading"`
	LastCheckedAt *Timestamp `json:"lastCheckedAt,omitempty"`
}

// SystemStatus is the console's view of itself and the services it calls.
type SystemStatus struct {
	Status          HealthStatus    `json:"status"`
	Time            Timestamp       `json:"time"`
	Engine          EngineHealth    `json:"engine"`
	Services        []ServiceStatus `json:"services"`
	ActiveDownloads int             `json:"activeDownloads"`
}

// ServiceStatus is the status of one upstream service.
type ServiceStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState,omitempty"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
