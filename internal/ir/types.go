package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute is one classification key/value pair carried by an asset.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Attributes is an ordered attribute list. The order is the contract order
// and is used when rendering payloads; it never affects equality.
type Attributes []Attribute

// Clean returns a copy with every key and value passed through CleanField.
func (a Attributes) Clean() Attributes {
	out := make(Attributes, len(a))
	for i, attr := range a {
		out[i] = Attribute{Key: CleanField(attr.Key), Value: CleanField(attr.Value)}
	}
	return out
}

// NonEmpty returns the attributes whose value is non-empty, in order.
// Empty values mean "nothing to set" and never reach the remote service.
func (a Attributes) NonEmpty() Attributes {
	out := make(Attributes, 0, len(a))
	for _, attr := range a {
		if attr.Value != "" {
			out = append(out, attr)
		}
	}
	return out
}

// Get returns the value for key and whether it was present.
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Fingerprint returns the order-independent equality key of the attributes.
func (a Attributes) Fingerprint() Fingerprint {
	return FingerprintOf(a)
}

// AssetRecord is one asset identifier with its attributes, as emitted by
// the normalizer. Records are never mutated after creation.
type AssetRecord struct {
	AssetID    string     `json:"asset_id"`
	Attributes Attributes `json:"attributes"`
}

// Fingerprint returns the record's attribute fingerprint. The asset id is
// not part of it.
func (r AssetRecord) Fingerprint() Fingerprint {
	return r.Attributes.Fingerprint()
}

// Group is an equivalence class of asset identifiers sharing one fingerprint.
type Group struct {
	Number      int         `json:"group_number"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Attributes  Attributes  `json:"attributes"`
	AssetIDs    []string    `json:"asset_ids"`
}

// Count returns the number of asset identifiers in the group.
func (g Group) Count() int {
	return len(g.AssetIDs)
}

// Batch is a bounded slice of one group's identifiers: the unit of one
// remote call.
type Batch struct {
	GroupNumber int         `json:"group_number"`
	BatchNumber int         `json:"batch_number"`
	AssetIDs    []string    `json:"asset_ids"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Attributes  Attributes  `json:"attributes"`
}

// Count returns the number of asset identifiers in the batch.
func (b Batch) Count() int {
	return len(b.AssetIDs)
}

// JoinedIDs returns the identifiers as the single comma delimited value the
// remote filter expects.
func (b Batch) JoinedIDs() string {
	return strings.Join(b.AssetIDs, ",")
}

// APIFunction selects the attribute operation performed remotely.
type APIFunction string

const (
	APIFunctionAdd    APIFunction = "add"
	APIFunctionUpdate APIFunction = "update"
	APIFunctionRemove APIFunction = "remove"
)

// APIFunctions lists the valid functions in display order.
var APIFunctions = []APIFunction{APIFunctionAdd, APIFunctionUpdate, APIFunctionRemove}

// ParseAPIFunction parses a function name case-insensitively.
func ParseAPIFunction(s string) (APIFunction, error) {
	fn := APIFunction(strings.ToLower(strings.TrimSpace(s)))
	if !fn.Valid() {
		return "", fmt.Errorf("invalid api function %q: must be one of add, update, remove", s)
	}
	return fn, nil
}

// Valid reports whether fn is one of add, update or remove.
func (fn APIFunction) Valid() bool {
	switch fn {
	case APIFunctionAdd, APIFunctionUpdate, APIFunctionRemove:
		return true
	}
	return false
}

// Status is the recorded outcome of one batch: StatusNotAttempted,
// StatusTransportError, or the decimal HTTP status code.
type Status string

const (
	StatusNotAttempted   Status = "not-attempted"
	StatusTransportError Status = "transport-error"
)

// HTTPStatus returns the Status for an HTTP response code.
func HTTPStatus(code int) Status {
	return Status(strconv.Itoa(code))
}

// Code returns the HTTP status code, or 0 when the status is not one.
func (s Status) Code() int {
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return 0
	}
	return n
}

// ExecutionRecord is the durable outcome of delivering one batch.
// It is created exactly once per batch and never updated.
type ExecutionRecord struct {
	Batch       Batch       `json:"batch"`
	Payload     string      `json:"payload"`
	APIFunction APIFunction `json:"api_function"`
	Status      Status      `json:"status"`
	Attempts    int         `json:"attempts"`
	Log         string      `json:"execution_log"`
	RunID       string      `json:"run_id"`
}
