// Package grammar splits PSS datagrams into an event code and positional fields.
//
// Parsing never fails: a datagram whose code has no schema in the snapshot
// yields a shell event carrying its raw tokens and no field map.
package grammar

import (
	"strings"

	"github.com/okian/pss/internal/domain/model"
	"github.com/okian/pss/internal/domain/registry"
)

// Split trims surrounding whitespace, drops one trailing delimiter and splits
// on delim, keeping empty fields. It always returns at least one token.
func Split(text, delim string) []string {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, delim)
	return strings.Split(text, delim)
}

// Parse maps a raw message onto the schema of (code, version). The returned
// entry is nil for unknown codes.
func Parse(snap *registry.Snapshot, version string, msg model.RawMessage) (*model.ParsedEvent, *registry.Entry) {
	tokens := Split(msg.Text, snap.Delimiter(version))
	ev := &model.ParsedEvent{
		EventCode:       tokens[0],
		ProtocolVersion: version,
		ReceivedAt:      msg.ReceivedAt,
		RawText:         msg.Text,
		Source:          msg.Source,
	}

	entry, ok := snap.Lookup(ev.EventCode, version)
	if !ok {
		ev.Tokens = tokens
		return ev, nil
	}

	def := &entry.Definition
	ev.Category = def.Category
	ev.Athlete = def.Athlete
	ev.Round = def.Round

	values := tokens[1:]
	n := min(len(values), len(def.Fields))
	if n > 0 {
		ev.Fields = make([]model.FieldValue, n)
		for i := 0; i < n; i++ {
			ev.Fields[i] = model.FieldValue{Name: def.Fields[i].Name, Value: values[i]}
		}
	}
	if len(values) > len(def.Fields) {
		ev.Extra = append([]string(nil), values[len(def.Fields):]...)
	}
	return ev, entry
}

// Serialize writes an event back in wire form using the schema's field
// order. Fields after the last present one are omitted; a trailing
// delimiter is always written so empty trailing fields survive a reparse.
func Serialize(def *model.EventTypeDefinition, fields []model.FieldValue, extra []string, delim string) string {
	byName := make(map[string]string, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.Value
	}

	last := -1
	for i, spec := range def.Fields {
		if _, ok := byName[spec.Name]; ok {
			last = i
		}
	}
	if len(extra) > 0 {
		last = len(def.Fields) - 1
	}

	var b strings.Builder
	b.WriteString(def.Code)
	for i := 0; i <= last; i++ {
		b.WriteString(delim)
		b.WriteString(byName[def.Fields[i].Name])
	}
	for _, x := range extra {
		b.WriteString(delim)
		b.WriteString(x)
	}
	b.WriteString(delim)
	return b.String()
}
