package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the ServiceRequest body for one batch. Field names follow the
// remote API, not the snake_case convention of the rest of this package.
type Payload struct {
	ServiceRequest ServiceRequest `json:"ServiceRequest"`
}

// ServiceRequest selects assets with Filters and applies Data to them.
type ServiceRequest struct {
	Filters Filters     `json:"filters"`
	Data    PayloadData `json:"data"`
}

// Filters holds the asset selection criteria.
type Filters struct {
	Criteria []Criterion `json:"Criteria"`
}

// Criterion is one filter clause, e.g. id IN "1,2,3".
type Criterion struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// PayloadData wraps the asset update section.
type PayloadData struct {
	Asset PayloadAsset `json:"Asset"`
}

// PayloadAsset carries the custom attribute operations keyed by function.
type PayloadAsset struct {
	CustomAttributes map[APIFunction]CustomAttributeSet `json:"customAttributes"`
}

// CustomAttributeSet is the attribute list for one operation.
type CustomAttributeSet struct {
	CustomAttribute Attributes `json:"CustomAttribute"`
}

// Encode renders the payload as compact JSON without HTML escaping and
// without a trailing newline. Encoding is deterministic.
func (p Payload) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Function returns the single operation carried by the payload.
func (p Payload) Function() (APIFunction, bool) {
	for fn := range p.ServiceRequest.Data.Asset.CustomAttributes {
		return fn, true
	}
	return "", false
}

// DecodePayload parses a rendered payload.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
