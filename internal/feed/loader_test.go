package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/domain"
)

func TestDecode(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"limit","ts":1,"id":1,"side":"B","price":9900,"shares":50}`,
		``,
		`{"type":"limit","ts":2,"id":2,"side":"S","price":10100,"shares":80}`,
		`{"type":"market","ts":3,"id":1,"side":"S","shares":30}`,
		`{"type":"cancel","ts":4,"id":2,"shares":10}`,
		`{"type":"update","ts":5,"old_id":2,"id":3,"price":10000,"shares":70}`,
		`{"type":"delete","ts":6,"id":3}`,
	}, "\n")

	events, err := Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 6)

	lo, ok := events[0].(domain.LimitOrder)
	require.True(t, ok)
	assert.Equal(t, domain.LimitOrder{Timestamp: 1, ID: 1, Side: domain.Buy, Price: 9900, Shares: 50}, lo)

	mo, ok := events[2].(domain.MarketOrder)
	require.True(t, ok)
	assert.Equal(t, domain.MarketOrder{Timestamp: 3, ID: 1, Side: domain.Sell, Shares: 30}, mo)

	up, ok := events[4].(domain.UpdateOrder)
	require.True(t, ok)
	assert.EqualValues(t, 2, up.OldID)
	assert.EqualValues(t, 3, up.ID)

	_, ok = events[5].(domain.DeleteOrder)
	assert.True(t, ok)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "malformed json",
			input:   `{"type":"limit",`,
			wantErr: "line 1",
		},
		{
			name:    "unknown type",
			input:   `{"type":"iceberg","ts":1,"id":1}`,
			wantErr: "unknown event type",
		},
		{
			name:    "unknown side",
			input:   `{"type":"limit","ts":1,"id":1,"side":"X","price":1,"shares":1}`,
			wantErr: "unknown side",
		},
		{
			name:    "non-positive shares",
			input:   `{"type":"limit","ts":1,"id":1,"side":"B","price":1,"shares":0}`,
			wantErr: "shares must be positive",
		},
		{
			name: "out of order timestamps",
			input: `{"type":"limit","ts":5,"id":1,"side":"B","price":1,"shares":1}` + "\n" +
				`{"type":"limit","ts":4,"id":2,"side":"B","price":1,"shares":1}`,
			wantErr: "timestamp 4 precedes 5",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.input))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/does-not-exist.jsonl")
	assert.Error(t, err)
}
