package db

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// Field value kinds stored in the envelope.
const (
	kindString  = "string"
	kindStrings = "strings"
	kindInt     = "int"
	kindFloat   = "float"
	kindBool    = "bool"
	kindTime    = "time"
	kindBytes   = "bytes"
	kindRefs    = "refs"
)

// envelope keeps the Go type of a field value next to its JSON encoding so
// fields decode back to the type they were written with.
type envelope struct {
	Kind  string          `json:"k"`
	Value json.RawMessage `json:"v"`
}

type storedRef struct {
	Name   string        `json:"name"`
	Zone   string        `json:"zone"`
	Owner  string        `json:"owner"`
	Action record.Action `json:"action,omitempty"`
}

// encodeFields serializes the fields of rec into a JSON object of envelopes.
// Fields are visited in key order, so the first bad field reported is stable.
func encodeFields(rec *record.Record) (string, error) {
	out := make(map[string]envelope, len(rec.Fields))
	for _, key := range rec.Keys() {
		kind, v, err := normalize(rec.Fields[key])
		if err != nil {
			return "", fmt.Errorf("field %q: %w", key, err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", key, err)
		}
		out[key] = envelope{Kind: kind, Value: raw}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func normalize(value any) (string, any, error) {
	switch v := value.(type) {
	case string:
		return kindString, v, nil
	case []string:
		return kindStrings, v, nil
	case int:
		return kindInt, int64(v), nil
	case int32:
		return kindInt, int64(v), nil
	case int64:
		return kindInt, v, nil
	case float32:
		return kindFloat, float64(v), nil
	case float64:
		return kindFloat, v, nil
	case bool:
		return kindBool, v, nil
	case time.Time:
		return kindTime, v.UTC().Format(time.RFC3339Nano), nil
	case []byte:
		return kindBytes, v, nil
	case []record.Reference:
		refs := make([]storedRef, 0, len(v))
		for _, ref := range v {
			refs = append(refs, storedRef{
				Name:   ref.ID.Name,
				Zone:   ref.ID.Zone.Name,
				Owner:  ref.ID.Zone.Owner,
				Action: ref.Action,
			})
		}
		return kindRefs, refs, nil
	default:
		return "", nil, fmt.Errorf("unsupported field type %T", value)
	}
}

// decodeFields is the inverse of encodeFields.
func decodeFields(data string) (map[string]any, error) {
	var in map[string]envelope
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(in))
	for key, env := range in {
		value, err := decodeValue(env)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		fields[key] = value
	}
	return fields, nil
}

func decodeValue(env envelope) (any, error) {
	switch env.Kind {
	case kindString:
		var s string
		err := json.Unmarshal(env.Value, &s)
		return s, err
	case kindStrings:
		var s []string
		err := json.Unmarshal(env.Value, &s)
		return s, err
	case kindInt:
		var n int64
		err := json.Unmarshal(env.Value, &n)
		return n, err
	case kindFloat:
		var f float64
		err := json.Unmarshal(env.Value, &f)
		return f, err
	case kindBool:
		var b bool
		err := json.Unmarshal(env.Value, &b)
		return b, err
	case kindTime:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	case kindBytes:
		var b []byte
		err := json.Unmarshal(env.Value, &b)
		return b, err
	case kindRefs:
		var stored []storedRef
		if err := json.Unmarshal(env.Value, &stored); err != nil {
			return nil, err
		}
		refs := make([]record.Reference, 0, len(stored))
		for _, s := range stored {
			refs = append(refs, record.Reference{
				ID:     record.ID{Name: s.Name, Zone: record.ZoneID{Name: s.Zone, Owner: s.Owner}},
				Action: s.Action,
			})
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unknown field kind %q", env.Kind)
	}
}
