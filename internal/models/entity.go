// Package models defines the persisted entities and their REST representation.
//
// Every entity implements Entity: a stable collection name, an opaque identity,
// explicit camelCase (de)serialization and a declared natural key. The natural
// key drives the fetch-and-retry half of the save protocol in repository.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Entity is implemented by every persisted record.
type Entity interface {
	// TypeName is the REST collection name, e.g. "telegram/phones".
	TypeName() string
	// Identity returns the backend id, empty when not yet persisted.
	Identity() string
	SetIdentity(id string)
	// Serialize produces the camelCase REST body.
	Serialize() map[string]any
	// Deserialize populates the entity from a camelCase REST body.
	Deserialize(data map[string]any) error
	// UniqueConstraint returns the natural-key query used to locate an
	// existing row after an insert conflict. Nil means no natural key.
	UniqueConstraint() map[string]string
}

// DateFormat is the wire format for timestamps.
const DateFormat = time.RFC3339

// ---- deserialization helpers (explicit, no reflection) ----

func asString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func asStringPtr(data map[string]any, key string) *string {
	if v, ok := data[key].(string); ok {
		return &v
	}
	return nil
}

func asBool(data map[string]any, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

// asInt64Ptr accepts json numbers and numeric strings; backends disagree on
// how to encode 64-bit ids.
func asInt64Ptr(data map[string]any, key string) *int64 {
	switch v := data[key].(type) {
	case float64:
		n := int64(v)
		return &n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

func asInt64(data map[string]any, key string) int64 {
	if p := asInt64Ptr(data, key); p != nil {
		return *p
	}
	return 0
}

func asIntPtr(data map[string]any, key string) *int {
	if p := asInt64Ptr(data, key); p != nil {
		n := int(*p)
		return &n
	}
	return nil
}

func asTimePtr(data map[string]any, key string) *time.Time {
	s, ok := data[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return nil
	}
	return &t
}

func putTime(body map[string]any, key string, t *time.Time) {
	if t != nil {
		body[key] = t.Format(DateFormat)
	} else {
		body[key] = nil
	}
}

func formatInt64(v int64) string {
	return fmt.Sprintf("%d", v)
}
