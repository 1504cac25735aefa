package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activity(id, taskType string) Activity {
	return Activity{
		ID:          id,
		DisplayName: id,
		Category:    "loan",
		TaskType:    taskType,
		Timeout:     "5s",
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	reg := New()
	reg.Upsert(activity("loan-emi-calculate", "loan.emi.calculate"))

	require.NoError(t, Save(reg, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), raw[len(raw)-1])

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, loaded.Activities, 1)
	assert.Equal(t, "loan.emi.calculate", loaded.Activities[0].TaskType)
}

func TestLoadRegistry_Missing(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUpsert(t *testing.T) {
	reg := New()
	reg.Upsert(activity("a", "x.a"))
	reg.Upsert(activity("b", "x.b"))

	updated := activity("a", "x.a")
	updated.Description = "changed"
	reg.Upsert(updated)

	require.Len(t, reg.Activities, 2)
	a, ok := reg.Find("a")
	require.True(t, ok)
	assert.Equal(t, "changed", a.Description)

	_, ok = reg.Find("missing")
	assert.False(t, ok)
}

func TestUpsert_KeepsVerified(t *testing.T) {
	reg := New()
	v := activity("a", "x.a")
	v.ImplementationStatus = StatusVerified
	reg.Upsert(v)

	c := activity("a", "x.a")
	c.ImplementationStatus = StatusCompleted
	reg.Upsert(c)

	a, _ := reg.Find("a")
	assert.Equal(t, StatusVerified, a.ImplementationStatus)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		activities []Activity
		wantErr    string
	}{
		{
			name:       "valid",
			activities: []Activity{activity("a", "x.a"), activity("b", "x.b")},
		},
		{
			name:    "empty",
			wantErr: "no activities",
		},
		{
			name:       "duplicate id",
			activities: []Activity{activity("a", "x.a"), activity("a", "x.b")},
			wantErr:    "duplicate activity ID",
		},
		{
			name:       "duplicate task type",
			activities: []Activity{activity("a", "x.a"), activity("b", "x.a")},
			wantErr:    "task type x.a used by a and b",
		},
		{
			name:       "missing task type",
			activities: []Activity{activity("a", "")},
			wantErr:    "missing required field: TaskType",
		},
		{
			name: "bad timeout",
			activities: []Activity{func() Activity {
				a := activity("a", "x.a")
				a.Timeout = "soon"
				return a
			}()},
			wantErr: "invalid timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &ActivityRegistry{Activities: tt.activities}
			err := reg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type base struct {
	ID string `json:"id"`
}

type sample struct {
	base
	Name    string            `json:"name"`
	Amount  float64           `json:"amount"`
	Months  int               `json:"months"`
	Done    bool              `json:"done,omitempty"`
	At      time.Time         `json:"at"`
	Tags    []string          `json:"tags"`
	Meta    map[string]string `json:"meta"`
	Skipped string            `json:"-"`
}

func TestOutputSchema(t *testing.T) {
	s := OutputSchema(sample{})
	assert.Equal(t, "object", s["type"])

	props := s["properties"].(map[string]interface{})
	assert.Len(t, props, 8)
	assert.Equal(t, map[string]interface{}{"type": "string"}, props["id"])
	assert.Equal(t, map[string]interface{}{"type": "number"}, props["amount"])
	assert.Equal(t, map[string]interface{}{"type": "integer"}, props["months"])
	assert.Equal(t, map[string]interface{}{"type": "boolean"}, props["done"])
	assert.Equal(t, map[string]interface{}{"type": "string", "format": "date-time"}, props["at"])
	assert.Equal(t, map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}, props["tags"])
	assert.Equal(t, map[string]interface{}{"type": "object"}, props["meta"])
	assert.NotContains(t, props, "Skipped")
}
