package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// FilterKind discriminates ToolFilter's recursive algebra.
type FilterKind string

const (
	FilterAll      FilterKind = "all"
	FilterNone     FilterKind = "none"
	FilterServers  FilterKind = "servers"
	FilterTools    FilterKind = "tools"
	FilterToolIDs  FilterKind = "toolIDs"
	FilterPattern  FilterKind = "pattern"
	FilterAnd      FilterKind = "and"
	FilterOr       FilterKind = "or"
	FilterNot      FilterKind = "not"
)

// ToolFilter projects the aggregate tool catalogue returned by
// Coordinator.AvailableTools. Evaluation is purely structural and
// side-effect-free.
type ToolFilter struct {
	Kind FilterKind

	// servers
	ServerIDs []string
	// tools
	Names []string
	// toolIDs
	QualifiedIDs []string
	// pattern
	Pattern string
	// and / or
	Filters []ToolFilter
	// not
	Operand *ToolFilter

	compiled *regexp.Regexp
}

// All matches every tool.
func All() ToolFilter { return ToolFilter{Kind: FilterAll} }

// None matches no tool.
func None() ToolFilter { return ToolFilter{Kind: FilterNone} }

// Servers matches every tool belonging to one of the given server ids.
func Servers(ids ...string) ToolFilter { return ToolFilter{Kind: FilterServers, ServerIDs: ids} }

// Tools matches tools whose bare name is in names, regardless of server.
func Tools(names ...string) ToolFilter { return ToolFilter{Kind: FilterTools, Names: names} }

// ToolIDs matches tools whose qualified "<serverID>.<name>" id is in ids.
func ToolIDs(ids ...string) ToolFilter { return ToolFilter{Kind: FilterToolIDs, QualifiedIDs: ids} }

// Pattern matches tools whose bare name matches the given regular
// expression.
func Pattern(re string) ToolFilter { return ToolFilter{Kind: FilterPattern, Pattern: re} }

// And matches a tool iff every sub-filter matches it.
func And(filters ...ToolFilter) ToolFilter { return ToolFilter{Kind: FilterAnd, Filters: filters} }

// Or matches a tool iff any sub-filter matches it.
func Or(filters ...ToolFilter) ToolFilter { return ToolFilter{Kind: FilterOr, Filters: filters} }

// Not inverts f.
func Not(f ToolFilter) ToolFilter { return ToolFilter{Kind: FilterNot, Operand: &f} }

// Matches reports whether entry passes the filter.
func (f ToolFilter) Matches(entry ToolEntry) bool {
	switch f.Kind {
	case FilterAll:
		return true
	case FilterNone:
		return false
	case FilterServers:
		return contains(f.ServerIDs, entry.ServerID)
	case FilterTools:
		return contains(f.Names, entry.Name)
	case FilterToolIDs:
		return contains(f.QualifiedIDs, entry.QualifiedID())
	case FilterPattern:
		re := f.compiled
		if re == nil {
			re = regexp.MustCompile(f.Pattern)
		}
		return re.MatchString(entry.Name)
	case FilterAnd:
		for _, sub := range f.Filters {
			if !sub.Matches(entry) {
				return false
			}
		}
		return true
	case FilterOr:
		for _, sub := range f.Filters {
			if sub.Matches(entry) {
				return true
			}
		}
		return false
	case FilterNot:
		if f.Operand == nil {
			return true
		}
		return !f.Operand.Matches(entry)
	default:
		return false
	}
}

func contains(hay []string, needle string) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}
	return false
}

// Apply projects entries to those that pass f, preserving order.
func (f ToolFilter) Apply(entries []ToolEntry) []ToolEntry {
	out := make([]ToolEntry, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// toolFilterWire is ToolFilter's JSON-codable shape.
type toolFilterWire struct {
	Kind      FilterKind        `json:"kind"`
	ServerIDs []string          `json:"serverIDs,omitempty"`
	Names     []string          `json:"names,omitempty"`
	Qualified []string          `json:"toolIDs,omitempty"`
	Pattern   string            `json:"pattern,omitempty"`
	Filters   []ToolFilter      `json:"filters,omitempty"`
	Operand   *ToolFilter       `json:"operand,omitempty"`
}

// MarshalJSON implements the Codable contract ToolFilter round-trips
// through.
func (f ToolFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(toolFilterWire{
		Kind:      f.Kind,
		ServerIDs: f.ServerIDs,
		Names:     f.Names,
		Qualified: f.QualifiedIDs,
		Pattern:   f.Pattern,
		Filters:   f.Filters,
		Operand:   f.Operand,
	})
}

// UnmarshalJSON reconstructs a ToolFilter, recompiling a Pattern filter's
// regular expression.
func (f *ToolFilter) UnmarshalJSON(data []byte) error {
	var w toolFilterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case FilterAll, FilterNone, FilterServers, FilterTools, FilterToolIDs, FilterPattern, FilterAnd, FilterOr, FilterNot:
	default:
		return fmt.Errorf("mcp: unknown ToolFilter kind %q", w.Kind)
	}
	*f = ToolFilter{
		Kind:         w.Kind,
		ServerIDs:    w.ServerIDs,
		Names:        w.Names,
		QualifiedIDs: w.Qualified,
		Pattern:      w.Pattern,
		Filters:      w.Filters,
		Operand:      w.Operand,
	}
	if w.Kind == FilterPattern && w.Pattern != "" {
		re, err := regexp.Compile(w.Pattern)
		if err != nil {
			return fmt.Errorf("mcp: compiling pattern filter: %w", err)
		}
		f.compiled = re
	}
	return nil
}

// ToolMode enumerates common pre-built filters.
var (
	// ModeFullAccess exposes every tool from every connected server.
	ModeFullAccess = All()
	// ModeReadOnly exposes only tools whose name matches the
	// read/get/list prefix convention.
	ModeReadOnly = Pattern(`^(read|get|list)_`)
	// ModeNone exposes no tools.
	ModeNone = None()
)
