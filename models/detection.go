package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Detection is a persisted detection record. ID and Timestamp are owned by
// the store; the other fields are opaque caller data.
type Detection struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	DetectionType string    `json:"detectionType"`
	Confidence    float64   `json:"confidence"`
	Coordinates   *string   `json:"coordinates"`
}

// DetectionInput carries the caller-supplied fields for create and update.
// A nil pointer means the field was absent.
type DetectionInput struct {
	DetectionType *string  `json:"detectionType"`
	Confidence    *float64 `json:"confidence"`
	Coordinates   *string  `json:"coordinates"`
}

// DetectionPayload is the wire body accepted from HTTP clients and edge
// detectors. Coordinates may be a JSON string, kept as is, or any other
// JSON value, kept as its compact text.
type DetectionPayload struct {
	DetectionType *string         `json:"detectionType"`
	Confidence    *float64        `json:"confidence"`
	Coordinates   json.RawMessage `json:"coordinates"`
}

// Input converts the payload. Required field checks are left to the store.
func (p DetectionPayload) Input() (DetectionInput, error) {
	in := DetectionInput{DetectionType: p.DetectionType, Confidence: p.Confidence}

	raw := bytes.TrimSpace(p.Coordinates)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return DetectionInput{}, fmt.Errorf("invalid coordinates: %w", err)
		}
		in.Coordinates = &s
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return DetectionInput{}, fmt.Errorf("invalid coordinates: %w", err)
		}
		s := buf.String()
		in.Coordinates = &s
	}
	return in, nil
}
