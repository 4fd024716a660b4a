package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobOutranks(t *testing.T) {
	nan := Priority(math.NaN())

	tests := []struct {
		name string
		a, b Job
		want bool
	}{
		{"higher priority", Job{Model: 1, Node: 9, Priority: 2}, Job{Model: 0, Node: 0, Priority: 1}, true},
		{"lower priority", Job{Priority: 1}, Job{Priority: 2}, false},
		{"tie lower model", Job{Model: 0, Node: 5, Priority: 1}, Job{Model: 1, Node: 0, Priority: 1}, true},
		{"tie lower node", Job{Model: 1, Node: 2, Priority: 1}, Job{Model: 1, Node: 3, Priority: 1}, true},
		{"identical", Job{Model: 1, Node: 3, Priority: 1}, Job{Model: 1, Node: 3, Priority: 1}, false},
		{"number over nan", Job{Model: 1, Priority: -1}, Job{Model: 0, Priority: nan}, true},
		{"nan under number", Job{Model: 0, Priority: nan}, Job{Model: 1, Priority: -1}, false},
		{"nan tie lower model", Job{Model: 0, Priority: nan}, Job{Model: 1, Priority: nan}, true},
		{"nan tie higher model", Job{Model: 1, Priority: nan}, Job{Model: 0, Priority: nan}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Outranks(tt.b))
		})
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "Key(3:7)", Key{Model: 3, Node: 7}.String())
	assert.Equal(t, Key{Model: 3, Node: 7}, Job{Model: 3, Node: 7, Slot: 1}.Key())
}
