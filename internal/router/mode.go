package router

import (
	"fmt"
	"strings"
)

// Mode controls how an external router override interacts with deterministic
// workflow resolution. Parse user input once at the CLI/config boundary with
// [ParseMode]; the selection logic matches exhaustively on the result.
type Mode int

const (
	// ModeDefault computes the deterministic decision first and applies a
	// router override on top when one is present.
	ModeDefault Mode = iota

	// ModeFirst uses the router override when present, otherwise falls back
	// to deterministic resolution.
	ModeFirst

	// ModeOnly requires a router override and never falls back.
	ModeOnly
)

// ParseMode normalizes a mode string, accepting the historical aliases.
// An empty value parses as [ModeDefault].
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default", "router", "router_default", "router-default":
		return ModeDefault, nil
	case "first", "router_first", "router-first":
		return ModeFirst, nil
	case "only", "router_only", "router-only":
		return ModeOnly, nil
	}
	return ModeDefault, fmt.Errorf("unsupported router mode %q: use router_default, router_first, or router_only", value)
}

func (m Mode) String() string {
	switch m {
	case ModeFirst:
		return "router_first"
	case ModeOnly:
		return "router_only"
	}
	return "router_default"
}
