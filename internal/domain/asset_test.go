package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAsset_Reserved(t *testing.T) {
	a := &Asset{
		CustomerID: "c1",
		Symbol:     CashSymbol,
		Size:       dec("1000.00"),
		UsableSize: dec("300.00"),
		UpdatedAt:  time.Now(),
	}
	if got := a.Reserved(); !got.Equal(dec("700")) {
		t.Errorf("Reserved() = %s, want 700", got)
	}
}

func TestNewAsset_FullyUsable(t *testing.T) {
	a := NewAsset("c1", "AAPL", dec("10"), time.Now())
	if !a.UsableSize.Equal(a.Size) {
		t.Errorf("UsableSize = %s, want %s", a.UsableSize, a.Size)
	}
	if !a.Reserved().IsZero() {
		t.Errorf("Reserved() = %s, want 0", a.Reserved())
	}
}

func TestAsset_Check(t *testing.T) {
	tests := []struct {
		name    string
		size    string
		usable  string
		wantErr bool
	}{
		{"fully usable", "10", "10", false},
		{"partially reserved", "10", "2.5", false},
		{"fully reserved", "10", "0", false},
		{"zero", "0", "0", false},
		{"negative usable", "10", "-0.01", true},
		{"usable above size", "10", "10.01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Asset{CustomerID: "c1", Symbol: "AAPL", Size: dec(tt.size), UsableSize: dec(tt.usable)}
			err := a.Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAsset_Clone(t *testing.T) {
	a := NewAsset("c1", "AAPL", dec("10"), time.Now())
	c := a.Clone()
	c.UsableSize = dec("1")
	if !a.UsableSize.Equal(dec("10")) {
		t.Errorf("mutating clone changed original: %s", a.UsableSize)
	}
}

func TestAssetKey(t *testing.T) {
	if got := AssetKey("c1", "TRY"); got != "asset:c1:TRY" {
		t.Errorf("AssetKey = %q", got)
	}
}

func TestCustomer_IsAdmin(t *testing.T) {
	if !(&Customer{Role: RoleAdmin}).IsAdmin() {
		t.Error("ADMIN should be admin")
	}
	if (&Customer{Role: RoleCustomer}).IsAdmin() {
		t.Error("CUSTOMER should not be admin")
	}
	if _, ok := ParseRole("ROOT"); ok {
		t.Error("ParseRole(ROOT) should fail")
	}
}
