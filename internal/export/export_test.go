package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahstewart/signal-snapshot/internal/analytics"
)

func sampleReport() *analytics.Report {
	return &analytics.Report{
		KPIs: analytics.KPIs{TotalMessages: 10, TotalConversations: 3, AvgMessagesPerDay: 5},
		MessagesByDay: map[string]int{
			"2024-03-10": 4,
			"2024-03-11": 6,
		},
		TopSenders: []analytics.RankedEntity{
			{ID: "u1", Name: "Alice", Count: 7},
		},
	}
}

func TestWriteRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport()))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, 10, doc.Report.KPIs.TotalMessages)
	assert.Equal(t, "Alice", doc.Report.TopSenders[0].Name)
}

func TestFlatten(t *testing.T) {
	flat, err := Flatten(sampleReport())
	require.NoError(t, err)

	assert.Equal(t, float64(10), flat["kpis.total_messages"])
	assert.Equal(t, float64(4), flat["messages_by_day.2024-03-10"])
	assert.Equal(t, "Alice", flat["top_senders.0.name"])

	for key, v := range flat {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			t.Errorf("key %q still holds a nested value", key)
		}
	}
}
