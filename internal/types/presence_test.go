package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceState_Ranking(t *testing.T) {
	assert.True(t, Discount.Outranks(InStock))
	assert.True(t, InStock.Outranks(NotInStock))
	assert.False(t, NotInStock.Outranks(Discount))
	assert.False(t, InStock.Outranks(InStock))
}

func TestPresenceState_String(t *testing.T) {
	assert.Equal(t, "DISCOUNT", Discount.String())
	assert.Equal(t, "IN_STOCK", InStock.String())
	assert.Equal(t, "NOT_IN_STOCK", NotInStock.String())
	assert.Equal(t, "PresenceState(9)", PresenceState(9).String())
}

func TestPresenceState_TextRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]PresenceState{"PLA": Discount})
	require.NoError(t, err)
	assert.JSONEq(t, `{"PLA":"DISCOUNT"}`, string(data))

	var got map[string]PresenceState
	require.NoError(t, json.Unmarshal([]byte(`{"PETG":"in_stock"}`), &got))
	assert.Equal(t, InStock, got["PETG"])
}

func TestPresenceState_UnmarshalUnknown(t *testing.T) {
	var s PresenceState
	err := s.UnmarshalText([]byte("SOLD_OUT"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown presence state")
}
