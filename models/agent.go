package models

import (
	"strconv"
	"time"
)

// Agent is the Center's registration record for a remote deployment host.
type Agent struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	IP         string     `json:"ip"`
	Port       int        `json:"port"`
	ServiceURL string     `json:"service_url"`
	OS         string     `json:"os"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	CreatedAt  Timestamp  `json:"created_at"`
	UpdatedAt  *Timestamp `json:"updated_at"`
}

// AgentOnline is the status given to a freshly registered agent.
const AgentOnline = "online"

func (a Agent) RecordID() string { return strconv.Itoa(a.ID) }

func (a *Agent) Touch(t time.Time) { a.UpdatedAt = Stamp(t) }
