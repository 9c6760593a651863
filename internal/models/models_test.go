package models

import "testing"

func TestPosition_Direction(t *testing.T) {
	tests := []struct {
		name    string
		side    Side
		isLong  bool
		isShort bool
	}{
		{"Long", SideBuy, true, false},
		{"Short", SideSell, false, true},
		{"Unknown", Side("hold"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{Side: tt.side}
			if got := p.IsLong(); got != tt.isLong {
				t.Errorf("Position.IsLong() = %v, want %v", got, tt.isLong)
			}
			if got := p.IsShort(); got != tt.isShort {
				t.Errorf("Position.IsShort() = %v, want %v", got, tt.isShort)
			}
		})
	}
}

func TestAggregatedPosition_Direction(t *testing.T) {
	tests := []struct {
		name    string
		net     float64
		isLong  bool
		isShort bool
	}{
		{"NetLong", 1.5, true, false},
		{"NetShort", -0.5, false, true},
		{"Flat", 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &AggregatedPosition{NetQuantity: tt.net}
			if got := a.IsLong(); got != tt.isLong {
				t.Errorf("IsLong() = %v, want %v", got, tt.isLong)
			}
			if got := a.IsShort(); got != tt.isShort {
				t.Errorf("IsShort() = %v, want %v", got, tt.isShort)
			}
		})
	}
}

func TestSide_Opposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Errorf("buy.Opposite() = %s, want sell", SideBuy.Opposite())
	}
	if SideSell.Opposite() != SideBuy {
		t.Errorf("sell.Opposite() = %s, want buy", SideSell.Opposite())
	}
	if Side("x").Valid() {
		t.Error("unknown side reported as valid")
	}
}
