package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/pss/internal/domain/model"
)

// SaveDefinition inserts or replaces a promoted event definition.
func (s *Store) SaveDefinition(ctx context.Context, def model.EventTypeDefinition) error {
	fields, err := json.Marshal(def.Fields)
	if err != nil {
		return fmt.Errorf("encode definition fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO event_definitions(event_code, protocol_version, category, athlete, round, introduced, deprecated, description, fields_json, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_code, protocol_version) DO UPDATE SET
	category=excluded.category,
	athlete=excluded.athlete,
	round=excluded.round,
	introduced=excluded.introduced,
	deprecated=excluded.deprecated,
	description=excluded.description,
	fields_json=excluded.fields_json,
	updated_at=excluded.updated_at
`, def.Code, def.ProtocolVersion, string(def.Category), def.Athlete, def.Round, def.Introduced, boolToInt(def.Deprecated),
		def.Description, string(fields), ts(s.now()))
	if err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	return nil
}

// ListDefinitions returns every stored definition ordered by version and code.
func (s *Store) ListDefinitions(ctx context.Context) ([]model.EventTypeDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT event_code, protocol_version, category, athlete, round, introduced, deprecated, description, fields_json
FROM event_definitions ORDER BY protocol_version, event_code
`)
	if err != nil {
		return nil, fmt.Errorf("query definitions: %w", err)
	}
	defer rows.Close()

	var out []model.EventTypeDefinition
	for rows.Next() {
		var (
			def        model.EventTypeDefinition
			category   string
			deprecated int
			fields     string
		)
		if err := rows.Scan(&def.Code, &def.ProtocolVersion, &category, &def.Athlete, &def.Round, &def.Introduced,
			&deprecated, &def.Description, &fields); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		def.Category = model.Category(category)
		def.Deprecated = deprecated != 0
		if err := json.Unmarshal([]byte(fields), &def.Fields); err != nil {
			return nil, fmt.Errorf("decode definition %s fields: %w", def.Code, err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

// SaveRule inserts or replaces a rule keyed by (code, version, name).
// Saving with Active=false disables a rule of the same key from the grammar.
func (s *Store) SaveRule(ctx context.Context, r model.ValidationRule) error {
	def, err := json.Marshal(r.Definition)
	if err != nil {
		return fmt.Errorf("encode rule definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO validation_rules(event_code, protocol_version, rule_name, kind, field, definition_json, error_message, active, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_code, protocol_version, rule_name) DO UPDATE SET
	kind=excluded.kind,
	field=excluded.field,
	definition_json=excluded.definition_json,
	error_message=excluded.error_message,
	active=excluded.active,
	updated_at=excluded.updated_at
`, r.EventCode, r.ProtocolVersion, r.Name, string(r.Kind), r.Field, string(def), r.ErrorMessage, boolToInt(r.Active), ts(s.now()))
	if err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	return nil
}

// ListRules returns every stored rule, active or not.
func (s *Store) ListRules(ctx context.Context) ([]model.ValidationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT event_code, protocol_version, rule_name, kind, field, definition_json, error_message, active
FROM validation_rules ORDER BY protocol_version, event_code, rule_name
`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []model.ValidationRule
	for rows.Next() {
		var (
			r      model.ValidationRule
			kind   string
			def    string
			active int
		)
		if err := rows.Scan(&r.EventCode, &r.ProtocolVersion, &r.Name, &kind, &r.Field, &def, &r.ErrorMessage, &active); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Kind = model.RuleKind(kind)
		r.Active = active != 0
		if err := json.Unmarshal([]byte(def), &r.Definition); err != nil {
			return nil, fmt.Errorf("decode rule %s: %w", r.Name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
