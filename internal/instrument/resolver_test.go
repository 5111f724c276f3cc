package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbx-trading/arbx/internal/domain"
)

func table() []domain.Instrument {
	return []domain.Instrument{
		{Symbol: "RELIANCE", Venue: "NSE", TradingSymbol: "RELIANCE-EQ", Token: "2885"},
		{Symbol: "RELIANCE", Venue: "BSE", TradingSymbol: "RELIANCE", Token: "500325"},
	}
}

func TestResolve(t *testing.T) {
	r := NewStaticResolver(table())
	require.Equal(t, 2, r.Len())

	inst, err := r.Resolve("RELIANCE", "NSE")
	require.NoError(t, err)
	assert.Equal(t, "2885", inst.Token)

	inst, err = r.Resolve("RELIANCE", "BSE")
	require.NoError(t, err)
	assert.Equal(t, "500325", inst.Token)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	r := NewStaticResolver(table())

	inst, err := r.Resolve("reliance", "nse")
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE-EQ", inst.TradingSymbol)
}

func TestResolveUnknownFailsFast(t *testing.T) {
	r := NewStaticResolver(table())

	_, err := r.Resolve("TCS", "NSE")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoInstrument)
}

func TestReplaceSwapsTable(t *testing.T) {
	r := NewStaticResolver(table())

	r.Replace([]domain.Instrument{
		{Symbol: "TCS", Venue: "NSE", TradingSymbol: "TCS-EQ", Token: "11536"},
	})
	require.Equal(t, 1, r.Len())

	_, err := r.Resolve("RELIANCE", "NSE")
	assert.ErrorIs(t, err, domain.ErrNoInstrument)

	inst, err := r.Resolve("TCS", "NSE")
	require.NoError(t, err)
	assert.Equal(t, "11536", inst.Token)
}
