package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessera-cash/wallet-sdk/types"
)

func input(txid string, amount uint64, fromCert bool) types.SpendableInput {
	return types.SpendableInput{
		LockId:          txid + ":0",
		Origin:          types.Outpoint{Txid: txid, VOut: 0},
		Amount:          amount,
		Currency:        "TSR",
		FromCertificate: fromCert,
	}
}

func TestCoinSelect(t *testing.T) {
	tests := []struct {
		name             string
		inputs           []types.SpendableInput
		amount           uint64
		fees             types.FeeInfo
		preferCerts      bool
		wantAmounts      []uint64
		wantChange       uint64
		wantInsufficient bool
	}{
		{
			name: "descending greedy with change",
			inputs: []types.SpendableInput{
				input("a", 70, false), input("b", 30, false), input("c", 10, false),
			},
			amount:      80,
			wantAmounts: []uint64{70, 30},
			wantChange:  20,
		},
		{
			name: "exact match leaves no change",
			inputs: []types.SpendableInput{
				input("a", 70, false), input("b", 30, false), input("c", 10, false),
			},
			amount:      100,
			wantAmounts: []uint64{70, 30},
			wantChange:  0,
		},
		{
			name:             "insufficient funds",
			inputs:           []types.SpendableInput{input("a", 70, false)},
			amount:           80,
			wantInsufficient: true,
		},
		{
			name:             "zero eligible inputs",
			amount:           1,
			wantInsufficient: true,
		},
		{
			name: "certificates preferred when requested",
			inputs: []types.SpendableInput{
				input("a", 70, false), input("b", 30, true), input("c", 25, true),
			},
			amount:      50,
			preferCerts: true,
			wantAmounts: []uint64{30, 25},
			wantChange:  5,
		},
		{
			name: "certificates not preferred by default",
			inputs: []types.SpendableInput{
				input("a", 70, false), input("b", 30, true),
			},
			amount:      50,
			wantAmounts: []uint64{70},
			wantChange:  20,
		},
		{
			name: "per input fee grows the target",
			inputs: []types.SpendableInput{
				input("a", 70, false), input("b", 30, false), input("c", 10, false),
			},
			amount: 80,
			fees:   types.FeeInfo{BaseFee: 5, PerInputFee: 2},
			// target: 80+5, +2 per selected input => 70+30 covers 89
			wantAmounts: []uint64{70, 30},
			wantChange:  11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, change, err := CoinSelect(tt.inputs, tt.amount, tt.fees, tt.preferCerts)
			if tt.wantInsufficient {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInsufficientFunds))
				return
			}
			require.NoError(t, err)

			amounts := make([]uint64, 0, len(selected))
			for _, in := range selected {
				amounts = append(amounts, in.Amount)
			}
			require.Equal(t, tt.wantAmounts, amounts)
			require.Equal(t, tt.wantChange, change)
		})
	}
}

func TestCoinSelectDoesNotMutateInput(t *testing.T) {
	inputs := []types.SpendableInput{
		input("a", 10, false), input("b", 70, false), input("c", 30, false),
	}
	_, _, err := CoinSelect(inputs, 80, types.FeeInfo{}, false)
	require.NoError(t, err)
	require.Equal(t, uint64(10), inputs[0].Amount)
	require.Equal(t, uint64(70), inputs[1].Amount)
}
