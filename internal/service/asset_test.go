package service

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/minibroker/internal/domain"
)

func TestListAssets(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	assets, err := svc.assets.ListAssets(ctx, "c1", "", asC1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assets) != 2 || assets[0].Symbol != "AAPL" || assets[1].Symbol != domain.CashSymbol {
		t.Fatalf("got %v, want [AAPL TRY]", symbols(assets))
	}

	one, err := svc.assets.ListAssets(ctx, "c1", "aapl", admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(one) != 1 || one[0].Symbol != "AAPL" {
		t.Fatalf("got %v, want [AAPL]", symbols(one))
	}
}

func TestListAssets_DefaultsToCaller(t *testing.T) {
	svc := newTestServices(t)

	assets, err := svc.assets.ListAssets(context.Background(), "", "", asC2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assets) != 1 || assets[0].CustomerID != "c2" {
		t.Fatalf("got %v, want c2's TRY row", symbols(assets))
	}
}

func TestListAssets_UnheldSymbolIsEmpty(t *testing.T) {
	svc := newTestServices(t)

	assets, err := svc.assets.ListAssets(context.Background(), "c2", "AAPL", asC2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assets == nil || len(assets) != 0 {
		t.Fatalf("got %v, want empty non-nil slice", assets)
	}
}

func TestListAssets_Errors(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	if _, err := svc.assets.ListAssets(ctx, "ghost", "", admin); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Errorf("unknown customer: got %v, want ErrCustomerNotFound", err)
	}
	if _, err := svc.assets.ListAssets(ctx, "c1", "", asC2); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("other customer: got %v, want ErrForbidden", err)
	}
	if _, err := svc.assets.ListAssets(ctx, "c1", "not a symbol", admin); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("bad symbol: got %v, want validation error", err)
	}
	if _, err := svc.assets.ListAssets(ctx, "", "", anyone); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("no customer: got %v, want validation error", err)
	}
}

func symbols(assets []*domain.Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.Symbol
	}
	return out
}
