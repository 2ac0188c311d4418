package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ModuleID identifies a module. The backend may send it as a JSON string or number.
type ModuleID string

// ErrEmptyModuleID rejects a null, empty or absent module id.
var ErrEmptyModuleID = errors.New("module id must not be empty")

func (id *ModuleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return ErrEmptyModuleID
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("module id: %w", err)
		}
		if s == "" {
			return ErrEmptyModuleID
		}
		*id = ModuleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("module id must be a string or number: %w", err)
	}
	*id = ModuleID(n.String())
	return nil
}

func (id ModuleID) String() string { return string(id) }

// IntModuleID is a convenience for numeric ids.
func IntModuleID(n int) ModuleID { return ModuleID(strconv.Itoa(n)) }

// Module is an external tool or service exposed in the dashboard.
// Values are immutable once received; a refresh replaces the whole list.
type Module struct {
	ID             ModuleID `json:"id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	URL            string   `json:"url"`
	Available      bool     `json:"available"`
	Icon           string   `json:"icon,omitempty"`
	HealthEndpoint string   `json:"healthEndpoint,omitempty"`
}

// ValidateModules checks what decoding alone cannot: every module carries an id.
func ValidateModules(modules []Module) error {
	for i, m := range modules {
		if m.ID == "" {
			return fmt.Errorf("module %d: %w", i, ErrEmptyModuleID)
		}
	}
	return nil
}

// FindModule returns the module with the given id from modules.
func FindModule(modules []Module, id ModuleID) (Module, bool) {
	for _, m := range modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// ModuleRegistry fetches the module list from the backend.
// Implementations return ErrUnauthorized on an authorization failure and a
// *NetworkError for everything else.
type ModuleRegistry interface {
	FetchModules(ctx context.Context, token string) ([]Module, error)
}

// TokenIssuer exchanges user credentials for an opaque bearer token.
type TokenIssuer interface {
	Login(ctx context.Context, username, password string) (string, error)
}
