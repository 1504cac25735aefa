package draft

import (
	"encoding/json"
	"fmt"
	"time"

	"loan-funnel-workers/internal/common/validation"
)

// Envelope is the stored form of a draft.
type Envelope struct {
	Version int       `json:"version"`
	Key     string    `json:"key"`
	SavedAt time.Time `json:"savedAt"`
	Data    Draft     `json:"data"`
}

// Migration upgrades data written at version v to v+1.
type Migration func(Draft) (Draft, error)

// Schema describes one draft key. A missing migration for a version is the
// identity. JSONSchema, when set, is checked after migration.
type Schema struct {
	Version    int
	Migrations map[int]Migration
	JSONSchema map[string]interface{}
}

// Registry holds the schema of each key.
type Registry struct {
	schemas map[string]Schema
}

func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]Schema)}
}

func (r *Registry) Register(key string, s Schema) {
	if s.Version < 1 {
		s.Version = 1
	}
	r.schemas[key] = s
}

// Lookup returns the schema for key, or a version 1 schema with no checks.
func (r *Registry) Lookup(key string) Schema {
	if r != nil {
		if s, ok := r.schemas[key]; ok {
			return s
		}
	}
	return Schema{Version: 1}
}

// Codec encodes envelopes and decodes stored blobs of any known version.
type Codec struct {
	registry *Registry
	now      func() time.Time
}

func NewCodec(registry *Registry) *Codec {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Codec{registry: registry, now: time.Now}
}

func (c *Codec) Encode(key string, d Draft) ([]byte, error) {
	if d == nil {
		d = Draft{}
	}
	return json.Marshal(Envelope{
		Version: c.registry.Lookup(key).Version,
		Key:     key,
		SavedAt: c.now().UTC(),
		Data:    d,
	})
}

// Decode returns the migrated data of raw. Every failure wraps
// ErrCorruptDraft.
func (c *Codec) Decode(key string, raw []byte) (Draft, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: malformed json: %v", ErrCorruptDraft, key, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s: null blob", ErrCorruptDraft, key)
	}

	version, data, err := unwrap(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDraft, key, err)
	}

	schema := c.registry.Lookup(key)
	if version > schema.Version {
		return nil, fmt.Errorf("%w: %s: version %d is newer than %d", ErrCorruptDraft, key, version, schema.Version)
	}
	for v := version; v < schema.Version; v++ {
		m, ok := schema.Migrations[v]
		if !ok {
			continue
		}
		if data, err = m(data); err != nil {
			return nil, fmt.Errorf("%w: %s: migrate v%d: %v", ErrCorruptDraft, key, v, err)
		}
	}

	if schema.JSONSchema != nil {
		res := validation.ValidateDocument(schema.JSONSchema, map[string]interface{}(data))
		if !res.Valid {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDraft, key, res.GetErrorMessages())
		}
	}
	return data, nil
}

// unwrap tells envelopes from legacy blobs. An envelope has a numeric
// version and an object under data; anything else is a v0 form object.
func unwrap(doc map[string]interface{}) (int, Draft, error) {
	v, hasVersion := doc["version"]
	data, hasData := doc["data"]
	if !hasVersion || !hasData {
		return 0, Draft(doc), nil
	}

	num, ok := v.(float64)
	if !ok || num < 0 || num != float64(int(num)) {
		return 0, nil, fmt.Errorf("invalid version %v", v)
	}
	obj, ok := data.(map[string]interface{})
	if !ok {
		if data == nil {
			return int(num), Draft{}, nil
		}
		return 0, nil, fmt.Errorf("data is %T, not an object", data)
	}
	return int(num), Draft(obj), nil
}
