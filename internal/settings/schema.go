package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/facilityhub/backoffice/internal/shared"
	"github.com/facilityhub/backoffice/internal/users"
)

// Kind identifies a settings resource.
type Kind string

const (
	KindGeneral       Kind = "general"
	KindNotification  Kind = "notification"
	KindSecurity      Kind = "security"
	KindMapManagement Kind = "map_management"
	KindMapManager    Kind = "map_manager"
)

// Kinds lists every settings resource.
func Kinds() []Kind {
	return []Kind{KindGeneral, KindNotification, KindSecurity, KindMapManagement, KindMapManager}
}

// ParseKind accepts the storage name or its hyphenated URL form.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("settings kind %q: %w", raw, shared.ErrNotFound)
}

// OwnerType tells which entity a settings record hangs off.
type OwnerType int

const (
	OwnerUser OwnerType = iota
	OwnerOrganization
)

// FieldType is the value type of a settings field.
type FieldType int

const (
	TypeBool FieldType = iota
	TypeInt
	TypeString
	TypeEnum
)

func (t FieldType) String() string {
	switch t {
	case TypeBool:
		return "boolean"
	case TypeInt:
		return "integer"
	case TypeString:
		return "string"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Field declares one whitelisted settings field.
type Field struct {
	Name    string
	Type    FieldType
	Default any
	Enum    []string
	Min     int
	Max     int
	// Rule is a validator tag applied to string values, e.g. "omitempty,email".
	Rule string
}

// protectedFields can never be written through a settings update.
var protectedFields = map[string]struct{}{
	"role":         {},
	"permissions":  {},
	"password":     {},
	"passwordHash": {},
}

// provenanceFields are managed by the lifecycle itself and ignored when supplied.
var provenanceFields = map[string]struct{}{
	"id":        {},
	"_id":       {},
	"kind":      {},
	"updatedAt": {},
	"updatedBy": {},
	"createdAt": {},
}

// ValidationError lists rejected fields. It unwraps to shared.ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "settings: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return shared.ErrValidation }

// Seeder derives owner-specific initial values. It is only consulted for user-owned kinds.
type Seeder func(owner *users.User) map[string]any

// Mirror overwrites fields whose authoritative copy lives on the owning user.
type Mirror func(fields map[string]any, owner *users.User)

// Descriptor parametrises the lifecycle for one resource kind.
type Descriptor struct {
	Kind       Kind
	OwnerField string
	Owner      OwnerType
	Fields     []Field
	Seed       Seeder
	// Mirror runs on every presented record that has a resolved owner.
	Mirror     Mirror

	indexOnce sync.Once
	index     map[string]*Field
}

func (d *Descriptor) field(name string) (*Field, bool) {
	d.indexOnce.Do(func() {
		d.index = make(map[string]*Field, len(d.Fields))
		for i := range d.Fields {
			d.index[d.Fields[i].Name] = &d.Fields[i]
		}
	})
	f, ok := d.index[name]
	return f, ok
}

// Defaults returns a fresh map holding every field's default value.
func (d *Descriptor) Defaults() map[string]any {
	out := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		out[f.Name] = f.Default
	}
	return out
}

// Base returns defaults overlaid with the owner seed.
func (d *Descriptor) Base(owner *users.User) map[string]any {
	base := d.Defaults()
	if d.Seed != nil && owner != nil {
		for k, v := range d.Seed(owner) {
			if f, ok := d.field(k); ok {
				if coerced, err := coerce(f, v); err == nil {
					base[k] = coerced
				}
			}
		}
	}
	return base
}

// Complete fills missing fields with defaults, restores Go types lost in JSON round trips and
// drops keys that are not part of the schema.
func (d *Descriptor) Complete(fields map[string]any) map[string]any {
	out := d.Defaults()
	for k, v := range fields {
		f, ok := d.field(k)
		if !ok {
			continue
		}
		if coerced, err := coerce(f, v); err == nil {
			out[k] = coerced
		}
	}
	return out
}

// Normalize filters patch down to known fields with well-typed values. Unknown keys and
// provenance keys are dropped; protected keys and ill-typed values are rejected.
func (d *Descriptor) Normalize(patch map[string]any, v *validator.Validate) (map[string]any, error) {
	clean := make(map[string]any, len(patch))
	problems := make(map[string]string)
	for key, raw := range patch {
		if _, ok := protectedFields[key]; ok {
			problems[key] = "field cannot be changed through settings"
			continue
		}
		if key == d.OwnerField {
			continue
		}
		if _, ok := provenanceFields[key]; ok {
			continue
		}
		f, ok := d.field(key)
		if !ok {
			continue
		}
		value, err := coerce(f, raw)
		if err != nil {
			problems[key] = err.Error()
			continue
		}
		if s, ok := value.(string); ok && f.Rule != "" && v != nil {
			if err := v.Var(s, f.Rule); err != nil {
				problems[key] = "failed rule " + f.Rule
				continue
			}
		}
		clean[key] = value
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}
	return clean, nil
}

func coerce(f *Field, raw any) (any, error) {
	switch f.Type {
	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected %s", f.Type)
		}
		return b, nil
	case TypeInt:
		n, ok := toInt(raw)
		if !ok {
			return nil, fmt.Errorf("expected %s", f.Type)
		}
		if f.Min != 0 || f.Max != 0 {
			if n < f.Min || n > f.Max {
				return nil, fmt.Errorf("must be between %d and %d", f.Min, f.Max)
			}
		}
		return n, nil
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected %s", f.Type)
		}
		return strings.TrimSpace(s), nil
	case TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %s", strings.Join(f.Enum, ", "))
		}
		for _, allowed := range f.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("expected one of %s", strings.Join(f.Enum, ", "))
	default:
		return nil, fmt.Errorf("unsupported field type")
	}
}

func toInt(raw any) (int, bool) {
	switch n := raw.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
