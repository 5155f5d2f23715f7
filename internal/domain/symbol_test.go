package domain

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	if got := NormalizeSymbol("  aapl "); got != "AAPL" {
		t.Errorf("NormalizeSymbol = %q, want AAPL", got)
	}
}

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		symbol  string
		wantErr bool
	}{
		{"AAPL", false},
		{"BRK.B", false},
		{"TRY", false},
		{"X", false},
		{"", true},
		{"aapl", true},
		{"1ABC", true},
		{"ABCDEFGHIJK", true},
	}
	for _, tt := range tests {
		err := ValidateSymbol("assetName", tt.symbol)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSymbol(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
		}
	}
}

func TestValidateTradableSymbol_RejectsCash(t *testing.T) {
	if err := ValidateTradableSymbol("assetName", CashSymbol); err == nil {
		t.Error("cash symbol should not be tradable")
	}
	if err := ValidateTradableSymbol("assetName", "AAPL"); err != nil {
		t.Errorf("AAPL should be tradable: %v", err)
	}
}
