// Package provider defines the in-process contract between the stackplan
// core and resource providers. Configuration and state payloads cross the
// boundary as JSON so that providers stay decoupled from the IR.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Action is the change a provider proposes for a resource during planning.
type Action string

const (
	ActionNoop    Action = "NOOP"
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionReplace Action = "REPLACE"
	ActionDelete  Action = "DELETE"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Diagnostic carries a provider-side problem back to the core without
// aborting the call.
type Diagnostic struct {
	Severity Severity
	Summary  string
	Detail   string
}

// ConfigureRequest carries provider-level settings (region, endpoints, ...).
// Settings are resolved by the core before any resource operation runs; a
// provider must not fall back to ambient environment lookups for values the
// core passes here.
type ConfigureRequest struct {
	Settings map[string]string
}

type ConfigureResponse struct {
	Diagnostics []*Diagnostic
}

// PlanRequest asks the provider to compare desired configuration against
// prior state for one resource. PriorState is nil for resources not yet
// created; DesiredConfig is nil for resources slated for deletion.
type PlanRequest struct {
	Type          string
	Name          string
	DesiredConfig json.RawMessage
	PriorState    json.RawMessage
}

type PlanResponse struct {
	Action            Action
	ChangedAttributes []string
}

// ApplyRequest executes the planned change. The returned NewState replaces
// the resource's prior state.
type ApplyRequest struct {
	Type          string
	Name          string
	DesiredConfig json.RawMessage
	PriorState    json.RawMessage
}

type ApplyResponse struct {
	NewState json.RawMessage
}

// ReadRequest refreshes a resource's state from the real infrastructure.
type ReadRequest struct {
	Type         string
	ID           string
	CurrentState json.RawMessage
}

type ReadResponse struct {
	Exists   bool
	NewState json.RawMessage
}

type DeleteRequest struct {
	Type       string
	Name       string
	PriorState json.RawMessage
}

type DeleteResponse struct{}

// Provider is implemented by every resource provider.
type Provider interface {
	Configure(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error)
	Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error)
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error)
}

// Unimplemented may be embedded to get default implementations for methods a
// provider does not support.
type Unimplemented struct{}

func (Unimplemented) Configure(ctx context.Context, req *ConfigureRequest) (*ConfigureResponse, error) {
	return &ConfigureResponse{}, nil
}

func (Unimplemented) Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error) {
	return nil, fmt.Errorf("provider does not implement Plan")
}

func (Unimplemented) Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error) {
	return nil, fmt.Errorf("provider does not implement Apply")
}

func (Unimplemented) Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error) {
	return nil, fmt.Errorf("provider does not implement Read")
}

func (Unimplemented) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	return nil, fmt.Errorf("provider does not implement Delete")
}
