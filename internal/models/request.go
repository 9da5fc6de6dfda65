package models

import (
	"strconv"
	"strings"
)

// Request is the envelope handed to a worker. ID is the sole correlation key
// between the caller waiting in the broker and the worker's result.
type Request struct {
	ID      string          `json:"reqid"`
	Type    string          `json:"reqtype"`
	Payload *RequestPayload `json:"payload"`
}

// PayloadValue mirrors an HTML form field: one key, possibly many values
type PayloadValue struct {
	Key   string   `json:"key"`
	Value []string `json:"value"`
}

// FormFile is an uploaded file carried inline. Data is base64 on the wire.
type FormFile struct {
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// RequestPayload is the body workers receive for a request
type RequestPayload struct {
	Command     string         `json:"command"`
	Values      []PayloadValue `json:"values"`
	Files       []FormFile     `json:"files"`
	URLSegments []string       `json:"urlSegments"`
}

// NewRequestPayload creates an empty payload for command
func NewRequestPayload(command string) *RequestPayload {
	return &RequestPayload{
		Command:     command,
		Values:      []PayloadValue{},
		Files:       []FormFile{},
		URLSegments: []string{},
	}
}

// SetValue replaces all values for key with value
func (p *RequestPayload) SetValue(key, value string) {
	for i := range p.Values {
		if p.Values[i].Key == key {
			p.Values[i].Value = []string{value}
			return
		}
	}
	p.Values = append(p.Values, PayloadValue{Key: key, Value: []string{value}})
}

// AddValue appends value to the values already held for key
func (p *RequestPayload) AddValue(key, value string) {
	for i := range p.Values {
		if p.Values[i].Key == key {
			p.Values[i].Value = append(p.Values[i].Value, value)
			return
		}
	}
	p.Values = append(p.Values, PayloadValue{Key: key, Value: []string{value}})
}

// GetValue returns the first value for key
func (p *RequestPayload) GetValue(key string) (string, bool) {
	for _, v := range p.Values {
		if v.Key == key && len(v.Value) > 0 {
			return v.Value[0], true
		}
	}
	return "", false
}

// GetValues returns every value for key
func (p *RequestPayload) GetValues(key string) []string {
	for _, v := range p.Values {
		if v.Key == key {
			return v.Value
		}
	}
	return nil
}

// GetInt parses the first value for key as an int
func (p *RequestPayload) GetInt(key string) (int, bool) {
	s, ok := p.GetValue(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// AddFile appends an uploaded file
func (p *RequestPayload) AddFile(file FormFile) {
	p.Files = append(p.Files, file)
}

// GetFile returns the first file uploaded under name
func (p *RequestPayload) GetFile(name string) (*FormFile, bool) {
	for i := range p.Files {
		if p.Files[i].Name == name {
			return &p.Files[i], true
		}
	}
	return nil, false
}
