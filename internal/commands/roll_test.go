package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDice(t *testing.T) {
	tests := []struct {
		notation string
		want     Dice
		wantErr  bool
	}{
		{notation: "1d20", want: Dice{Count: 1, Sides: 20}},
		{notation: "d20", want: Dice{Count: 1, Sides: 20}},
		{notation: "2D6+5", want: Dice{Count: 2, Sides: 6, Modifier: 5}},
		{notation: "1d100-10", want: Dice{Count: 1, Sides: 100, Modifier: -10}},
		{notation: " 3d4 ", want: Dice{Count: 3, Sides: 4}},
		{notation: "100d1000", want: Dice{Count: 100, Sides: 1000}},
		{notation: "0d6", wantErr: true},
		{notation: "101d6", wantErr: true},
		{notation: "1d1", wantErr: true},
		{notation: "1d1001", wantErr: true},
		{notation: "1d", wantErr: true},
		{notation: "d", wantErr: true},
		{notation: "2d6+", wantErr: true},
		{notation: "2x6", wantErr: true},
		{notation: "", wantErr: true},
		{notation: "99999999999999999999d6", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.notation, func(t *testing.T) {
			got, err := ParseDice(tt.notation)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiceRoll_StaysInRange(t *testing.T) {
	d := Dice{Count: 3, Sides: 6}

	low := d.Roll(func(int) int { return 0 })
	assert.Equal(t, []int{1, 1, 1}, low)

	high := d.Roll(func(n int) int { return n - 1 })
	assert.Equal(t, []int{6, 6, 6}, high)
}

func TestFormatRoll(t *testing.T) {
	tests := []struct {
		name     string
		notation string
		dice     Dice
		rolls    []int
		want     string
	}{
		{
			name:     "single die",
			notation: "1d20",
			dice:     Dice{Count: 1, Sides: 20},
			rolls:    []int{17},
			want:     "**Rin** rolled **1d20**: **17**",
		},
		{
			name:     "single die with modifier",
			notation: "1d20+3",
			dice:     Dice{Count: 1, Sides: 20, Modifier: 3},
			rolls:    []int{10},
			want:     "**Rin** rolled **1d20+3**\nRoll: 10 (+3) = **13**",
		},
		{
			name:     "many dice",
			notation: "3d6",
			dice:     Dice{Count: 3, Sides: 6},
			rolls:    []int{1, 2, 3},
			want:     "**Rin** rolled **3d6**\nRolls: [1, 2, 3] = 6 = **6**",
		},
		{
			name:     "many dice negative modifier",
			notation: "2d10-4",
			dice:     Dice{Count: 2, Sides: 10, Modifier: -4},
			rolls:    []int{5, 7},
			want:     "**Rin** rolled **2d10-4**\nRolls: [5, 7] = 12 (-4) = **8**",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRoll("Rin", tt.notation, tt.dice, tt.rolls))
		})
	}
}
