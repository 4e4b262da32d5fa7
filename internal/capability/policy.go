// Package capability narrows the client handed to agents according to the
// host's policy.
package capability

import (
	"fmt"
	"slices"
)

// Capability names a group of client operations.
type Capability string

const (
	Env           Capability = "env"
	Completions   Capability = "completions"
	MessagesRead  Capability = "messages.read"
	MessagesWrite Capability = "messages.write"
	FilesRead     Capability = "files.read"
	FilesWrite    Capability = "files.write"
	VectorStores  Capability = "vector_stores"
)

// All lists every known capability.
var All = []Capability{Env, Completions, MessagesRead, MessagesWrite, FilesRead, FilesWrite, VectorStores}

// Policy allows or denies capabilities. An empty Allowed list permits
// everything not Denied; Denied always wins.
type Policy struct {
	Allowed []Capability `yaml:"allowed" json:"allowed"`
	Denied  []Capability `yaml:"denied" json:"denied"`
}

// Empty reports whether the policy restricts nothing.
func (p Policy) Empty() bool {
	return len(p.Allowed) == 0 && len(p.Denied) == 0
}

// Validate rejects unknown capability names.
func (p Policy) Validate() error {
	for _, list := range [][]Capability{p.Allowed, p.Denied} {
		for _, c := range list {
			if !slices.Contains(All, c) {
				return fmt.Errorf("unknown capability %q", c)
			}
		}
	}
	return nil
}

// Permits reports whether c may be used.
func (p Policy) Permits(c Capability) bool {
	if slices.Contains(p.Denied, c) {
		return false
	}
	return len(p.Allowed) == 0 || slices.Contains(p.Allowed, c)
}

// Merge layers p over defaults: lists set on p replace the defaults' lists.
func (p Policy) Merge(defaults Policy) Policy {
	merged := defaults
	if len(p.Allowed) > 0 {
		merged.Allowed = slices.Clone(p.Allowed)
	}
	if len(p.Denied) > 0 {
		merged.Denied = slices.Clone(p.Denied)
	}
	return merged
}
