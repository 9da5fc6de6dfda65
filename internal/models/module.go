package models

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ModuleState describes what the gateway last observed of a worker module
type ModuleState string

const (
	ModuleStateUnknown  ModuleState = "unknown"
	ModuleStateRunning  ModuleState = "running"
	ModuleStateIdle     ModuleState = "idle"
	ModuleStateStopping ModuleState = "stopping"
)

// ModuleRoute is a route declared by a module descriptor
type ModuleRoute struct {
	Name        string `toml:"name" yaml:"name" json:"name"`
	Route       string `toml:"route" yaml:"route" json:"route" validate:"required"`
	Method      string `toml:"method" yaml:"method" json:"method" validate:"omitempty,oneof=GET POST PUT DELETE get post put delete"`
	Command     string `toml:"command" yaml:"command" json:"command" validate:"required"`
	Description string `toml:"description" yaml:"description" json:"description,omitempty"`
}

// ModuleDescriptor declares a worker module: the queue it polls and the routes it serves
type ModuleDescriptor struct {
	ID          string        `toml:"id" yaml:"id" json:"id" validate:"required"`
	Name        string        `toml:"name" yaml:"name" json:"name"`
	Queue       string        `toml:"queue" yaml:"queue" json:"queue" validate:"required"`
	Description string        `toml:"description" yaml:"description" json:"description,omitempty"`
	Routes      []ModuleRoute `toml:"routes" yaml:"routes" json:"routes" validate:"dive"`

	// Source file the descriptor was loaded from
	SourcePath string `toml:"-" yaml:"-" json:"source_path,omitempty"`
}

// Validate checks required fields and every declared route
func (d *ModuleDescriptor) Validate() error {
	if err := validator.New().Struct(d); err != nil {
		return fmt.Errorf("invalid module descriptor %q: %w", d.ID, err)
	}
	return nil
}

// RouteEntries converts the declared routes to route table entries for this module's queue
func (d *ModuleDescriptor) RouteEntries() []RouteEntry {
	entries := make([]RouteEntry, 0, len(d.Routes))
	for _, r := range d.Routes {
		method := strings.ToUpper(strings.TrimSpace(r.Method))
		if method == "" {
			method = http.MethodPost
		}
		entries = append(entries, RouteEntry{
			Path:        NormalizeRoutePath(r.Route),
			Method:      method,
			QueueName:   NormalizeQueueName(d.Queue),
			Command:     r.Command,
			ModuleID:    d.ID,
			Description: r.Description,
		})
	}
	return entries
}

// ModuleStatus is the live view of a module, persisted between restarts
type ModuleStatus struct {
	ModuleID        string          `json:"module_id"`
	Name            string          `json:"name"`
	Queue           string          `json:"queue"`
	State           ModuleState     `json:"state"`
	LastSeen        time.Time       `json:"last_seen"`
	Processed       int64           `json:"processed"`
	InferenceDevice string          `json:"inference_device,omitempty"`
	StatusData      json.RawMessage `json:"status_data,omitempty"` // opaque JSON object posted by the worker
	UpdatedAt       time.Time       `json:"updated_at"`
}
