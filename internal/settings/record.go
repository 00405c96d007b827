package settings

import (
	"encoding/json"
	"time"
)

// Record is the single settings document for one owner of one kind.
type Record struct {
	Kind       Kind
	OwnerID    string
	OwnerField string
	Fields     map[string]any
	UpdatedAt  time.Time
	UpdatedBy  string
}

// MarshalJSON flattens the fields next to the owner key and provenance.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[r.OwnerField] = r.OwnerID
	if !r.UpdatedAt.IsZero() {
		out["updatedAt"] = r.UpdatedAt
	}
	if r.UpdatedBy != "" {
		out["updatedBy"] = r.UpdatedBy
	}
	return json.Marshal(out)
}

// Clone returns a copy that shares nothing with r.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	return &c
}

// Bool returns the boolean field name, or false when absent.
func (r *Record) Bool(name string) bool {
	v, _ := r.Fields[name].(bool)
	return v
}

// Int returns the integer field name, or 0 when absent.
func (r *Record) Int(name string) int {
	if n, ok := toInt(r.Fields[name]); ok {
		return n
	}
	return 0
}

// String returns the string field name, or "" when absent.
func (r *Record) String(name string) string {
	v, _ := r.Fields[name].(string)
	return v
}
