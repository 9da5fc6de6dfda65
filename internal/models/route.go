package models

import "strings"

// RouteEntry maps an inbound path to the queue and command that serve it
type RouteEntry struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	QueueName   string `json:"queue_name"`
	Command     string `json:"command"`
	ModuleID    string `json:"module_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// NormalizeRoutePath lower-cases path and strips surrounding whitespace and slashes
func NormalizeRoutePath(path string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(path)), "/")
}

// NormalizeQueueName trims and lower-cases a queue name
func NormalizeQueueName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
