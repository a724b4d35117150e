package oracle

import (
	"fmt"
	"strings"
)

// Caip2ChainID is a CAIP-2 blockchain identifier: a namespace and a
// reference joined by a colon, e.g. "eip155:1". Both parts are restricted to
// alphanumerics, the namespace 3-8 characters long and the reference 1-32.
type Caip2ChainID struct {
	namespace string
	reference string
}

// BadChainIDError reports a string that is not a well-formed CAIP-2 id.
type BadChainIDError struct {
	Input  string
	Reason string
}

func (e *BadChainIDError) Error() string {
	return fmt.Sprintf("bad chain id %q: %s", e.Input, e.Reason)
}

// NewCaip2ChainID parses and validates s.
func NewCaip2ChainID(s string) (Caip2ChainID, error) {
	namespace, reference, found := strings.Cut(s, ":")
	if !found {
		return Caip2ChainID{}, &BadChainIDError{Input: s, Reason: "missing ':' separator"}
	}
	if len(namespace) < 3 || len(namespace) > 8 {
		return Caip2ChainID{}, &BadChainIDError{Input: s, Reason: "namespace must be 3-8 characters"}
	}
	if len(reference) < 1 || len(reference) > 32 {
		return Caip2ChainID{}, &BadChainIDError{Input: s, Reason: "reference must be 1-32 characters"}
	}
	if !isAlphanumeric(namespace) || !isAlphanumeric(reference) {
		return Caip2ChainID{}, &BadChainIDError{Input: s, Reason: "only alphanumeric characters are allowed"}
	}
	return Caip2ChainID{namespace: namespace, reference: reference}, nil
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func (id Caip2ChainID) Namespace() string { return id.namespace }
func (id Caip2ChainID) Reference() string { return id.reference }

func (id Caip2ChainID) String() string {
	return id.namespace + ":" + id.reference
}
