package audit

import (
	"bytes"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// storedJSON renders raw the way PostgreSQL jsonb prints it back: keys
// ordered by length then bytes, with a space after every separator.
func storedJSON(t *testing.T, raw json.RawMessage) json.RawMessage {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	require.NoError(t, dec.Decode(&value))
	var buf bytes.Buffer
	writeStoredJSON(t, &buf, value)
	return buf.Bytes()
}

func writeStoredJSON(t *testing.T, buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) < len(keys[j])
			}
			return keys[i] < keys[j]
		})
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeStoredJSON(t, buf, k)
			buf.WriteString(": ")
			writeStoredJSON(t, buf, v[k])
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeStoredJSON(t, buf, item)
		}
		buf.WriteByte(']')
	default:
		out, err := json.Marshal(v)
		require.NoError(t, err)
		buf.Write(out)
	}
}

func TestSealSurvivesStoredJSONRendering(t *testing.T) {
	type line struct {
		Description string  `json:"description"`
		Quantity    float64 `json:"quantity"`
		Urgency     string  `json:"urgency,omitempty"`
	}
	type snapshot struct {
		Status     string            `json:"status"`
		ID         string            `json:"id"`
		Milestones map[string]string `json:"milestones"`
		Lines      []line            `json:"lines"`
		Amount     float64           `json:"amount"`
		OwnerID    string            `json:"owner_id"`
	}
	before, err := json.Marshal(snapshot{
		Status:     "validated_by_ops",
		ID:         "4a1f2d3e-0000-4000-8000-000000000001",
		Milestones: map[string]string{"submitted_at": "2025-03-01T08:00:00Z", "priced_at": "2025-03-02T08:00:00Z"},
		Lines:      []line{{Description: "cement", Quantity: 12.5, Urgency: "high"}},
		Amount:     1250000.75,
		OwnerID:    "proc-agent",
	})
	require.NoError(t, err)

	sealed := Entry{
		ActorID:    "acc-1",
		ActorRoles: []string{"accountant"},
		Action:     "mark-paid",
		Module:     "purchase_request",
		RecordID:   "4a1f2d3e-0000-4000-8000-000000000001",
		Before:     before,
		After:      json.RawMessage(`{"status":"paid","amount":1250000.75}`),
	}.Sealed(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))

	stored := sealed
	stored.Before = storedJSON(t, sealed.Before)
	stored.After = storedJSON(t, sealed.After)
	require.NotEqual(t, string(sealed.Before), string(stored.Before))
	require.NoError(t, stored.Verify())

	tampered := stored
	tampered.After = storedJSON(t, json.RawMessage(`{"status":"paid","amount":1250000.70}`))
	require.ErrorIs(t, tampered.Verify(), ErrTampered)
}

func TestNullableJSON(t *testing.T) {
	require.Nil(t, nullableJSON(nil))
	require.Nil(t, nullableJSON(json.RawMessage{}))
	require.Equal(t, `{"a":1}`, nullableJSON(json.RawMessage(`{"a":1}`)))
}
