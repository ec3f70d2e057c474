package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartyKind discriminates the concrete owner of an entity or the
// recipient of a push message.
type PartyKind string

const (
	PartyBuyer  PartyKind = "buyer"
	PartyVendor PartyKind = "vendor"
	PartyAdmin  PartyKind = "admin"
)

// Valid returns true if the kind is one of the known constants.
func (k PartyKind) Valid() bool {
	switch k {
	case PartyBuyer, PartyVendor, PartyAdmin:
		return true
	default:
		return false
	}
}

func (k *PartyKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind := PartyKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return fmt.Errorf("invalid party kind: %s", s)
	}
	*k = kind
	return nil
}

// Party is an explicit tagged union replacing polymorphic owner
// resolution: a kind plus the id of the concrete record.
type Party struct {
	Kind PartyKind `json:"kind"`
	ID   string    `json:"id"`
}

func Buyer(id string) Party  { return Party{Kind: PartyBuyer, ID: id} }
func Vendor(id string) Party { return Party{Kind: PartyVendor, ID: id} }

// Channel returns the push-channel key for the party, e.g. "vendor.42".
func (p Party) Channel() string {
	return string(p.Kind) + "." + p.ID
}

func (p Party) String() string {
	return p.Channel()
}
