// Package option
package option

import (
	"fmt"
	"strings"
	"time"
)

// Type is the storage code of an option contract.
type Type string

const (
	Call Type = "CE"
	Put  Type = "PE"
)

// ParseType accepts CE/PE as well as CALL/PUT in any case.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CE", "CALL":
		return Call, nil
	case "PE", "PUT":
		return Put, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

func (t Type) Name() string {
	switch t {
	case Call:
		return "CALL"
	case Put:
		return "PUT"
	default:
		return string(t)
	}
}

const ExpiryLayout = "2006-01-02"

// Identifier names one option contract.
type Identifier struct {
	Strike int       `json:"strike"`
	Type   Type      `json:"type"`
	Expiry time.Time `json:"expiry"`
}

// Key is the symbol form used on storage, e.g. 21400CE.
func (id Identifier) Key() string {
	return fmt.Sprintf("%d%s", id.Strike, id.Type)
}

func (id Identifier) ExpiryString() string {
	if id.Expiry.IsZero() {
		return ""
	}
	return id.Expiry.Format(ExpiryLayout)
}

func (id Identifier) String() string {
	if id.Expiry.IsZero() {
		return id.Key()
	}
	return id.Key() + "@" + id.ExpiryString()
}

// Less orders identifiers by strike, then type.
func (id Identifier) Less(o Identifier) bool {
	if id.Strike != o.Strike {
		return id.Strike < o.Strike
	}
	return id.Type < o.Type
}
