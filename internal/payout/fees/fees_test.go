package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "payouts/pkg/domain-errors"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name    string
		gross   int64
		rateBps int32
		wantFee int64
		wantNet int64
	}{
		{
			name:    "five percent of a round amount",
			gross:   100_000, // $1,000.00
			rateBps: 500,
			wantFee: 5_000, // $50.00
			wantNet: 95_000,
		},
		{
			name:    "zero gross",
			gross:   0,
			rateBps: 500,
			wantFee: 0,
			wantNet: 0,
		},
		{
			name:    "zero rate keeps everything",
			gross:   12_345,
			rateBps: 0,
			wantFee: 0,
			wantNet: 12_345,
		},
		{
			name:    "full rate takes everything",
			gross:   12_345,
			rateBps: 10_000,
			wantFee: 12_345,
			wantNet: 0,
		},
		{
			name:    "halfway rounds to even, odd quotient goes up",
			gross:   10, // net 9.5
			rateBps: 500,
			wantFee: 0,
			wantNet: 10,
		},
		{
			name:    "halfway rounds to even, even quotient stays",
			gross:   30, // net 28.5
			rateBps: 500,
			wantFee: 2,
			wantNet: 28,
		},
		{
			name:    "sub-cent fraction rounds to nearest",
			gross:   1_001, // net 950.95
			rateBps: 500,
			wantFee: 50,
			wantNet: 951,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.gross, tt.rateBps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, got.Fee, "fee")
			assert.Equal(t, tt.wantNet, got.Net, "net")
		})
	}
}

// Fee plus net must reconstruct the gross exactly, whatever the rounding did.
func TestCalculate_ConservesGross(t *testing.T) {
	for gross := int64(0); gross < 3_000; gross++ {
		got, err := Calculate(gross, DefaultRateBps)
		require.NoError(t, err)
		require.Equal(t, gross, got.Fee+got.Net, "gross %d", gross)
		require.GreaterOrEqual(t, got.Fee, int64(0), "gross %d", gross)
		require.GreaterOrEqual(t, got.Net, int64(0), "gross %d", gross)
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	first, err := Calculate(123_457, 500)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Calculate(123_457, 500)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculate_RejectsInvalidInput(t *testing.T) {
	t.Run("negative gross", func(t *testing.T) {
		_, err := Calculate(-1, 500)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("negative rate", func(t *testing.T) {
		_, err := Calculate(100, -1)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rate above 100 percent", func(t *testing.T) {
		_, err := Calculate(100, 10_001)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
