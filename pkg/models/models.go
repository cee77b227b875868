// Package models provides data structures used throughout the workbench.
package models

import (
	"time"
)

// Connection identifies one remote cluster pair: the SQL gateway endpoint and
// the job manager (dashboard) endpoint.
type Connection struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	GatewayURL    string `json:"gateway_url" yaml:"gateway_url"`
	JobManagerURL string `json:"job_manager_url" yaml:"job_manager_url"`
}

// Session is a logical, stateful conversation with the gateway. The handle is
// an opaque token issued by the gateway on session creation and is the only
// unit of concurrency isolation.
type Session struct {
	Name         string    `json:"name" yaml:"name"`
	Handle       string    `json:"handle" yaml:"handle"`
	ConnectionID string    `json:"connection_id" yaml:"connection_id"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// DefaultSessionName is the reserved name used for auto-created sessions,
// including replacements minted by session recovery.
const DefaultSessionName = "default"
