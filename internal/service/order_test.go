package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
)

func TestCreateOrder_Success(t *testing.T) {
	svc := newTestServices(t)

	o, err := svc.orders.CreateOrder(context.Background(), buyReq("c1", " aapl ", "2", "100.50"), asC1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.AssetName != "AAPL" {
		t.Errorf("AssetName = %q, want normalized AAPL", o.AssetName)
	}
	if o.Status != domain.OrderStatusPending {
		t.Errorf("Status = %s, want PENDING", o.Status)
	}

	cash, _ := svc.store.GetAsset(context.Background(), "c1", domain.CashSymbol)
	if !cash.UsableSize.Equal(d("799")) {
		t.Errorf("TRY usable = %s, want 799", cash.UsableSize)
	}
}

func TestCreateOrder_DefaultsToCaller(t *testing.T) {
	svc := newTestServices(t)

	o, err := svc.orders.CreateOrder(context.Background(), buyReq("", "AAPL", "1", "1"), asC2)
	if err != nil {
		t.Fatal(err)
	}
	if o.CustomerID != "c2" {
		t.Errorf("CustomerID = %q, want c2", o.CustomerID)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	svc := newTestServices(t)

	tests := []struct {
		name  string
		req   CreateOrderRequest
		field string
	}{
		{"missing customer", buyReq("", "AAPL", "1", "1"), "customerId"},
		{"bad symbol", buyReq("c1", "aa pl", "1", "1"), "assetName"},
		{"cash symbol", buyReq("c1", "TRY", "1", "1"), "assetName"},
		{"zero size", buyReq("c1", "AAPL", "0", "1"), "size"},
		{"negative price", buyReq("c1", "AAPL", "1", "-1"), "price"},
		{"over-scaled size", buyReq("c1", "AAPL", "1.001", "1"), "size"},
		{"over-scaled price", buyReq("c1", "AAPL", "1", "0.001"), "price"},
		{"sub-cent notional", buyReq("c1", "AAPL", "0.01", "0.49"), "price"},
		{"bad side", CreateOrderRequest{CustomerID: "c1", AssetName: "AAPL", Side: "HOLD", Size: d("1"), Price: d("1")}, "orderSide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.orders.CreateOrder(context.Background(), tt.req, admin)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestCreateOrder_ForbiddenForOtherCustomer(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.orders.CreateOrder(context.Background(), buyReq("c1", "AAPL", "1", "1"), asC2)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	cash, _ := svc.store.GetAsset(context.Background(), "c1", domain.CashSymbol)
	if !cash.UsableSize.Equal(d("1000")) {
		t.Errorf("TRY usable = %s, want untouched 1000", cash.UsableSize)
	}
}

func TestCreateOrder_UnknownCustomer(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.orders.CreateOrder(context.Background(), buyReq("ghost", "AAPL", "1", "1"), admin)
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("got %v, want ErrCustomerNotFound", err)
	}
}

func TestCreateOrder_InsufficientFunds(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.orders.CreateOrder(context.Background(), buyReq("c2", "AAPL", "6", "100"), asC2)
	var ife *domain.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("got %v, want InsufficientFundsError", err)
	}
	if !ife.Required.Equal(d("600")) || !ife.Available.Equal(d("500")) {
		t.Errorf("required/available = %s/%s, want 600/500", ife.Required, ife.Available)
	}
}

func TestGetOrder_Ownership(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	o, err := svc.orders.CreateOrder(ctx, buyReq("c1", "AAPL", "1", "1"), asC1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.orders.GetOrder(ctx, o.OrderID, asC1); err != nil {
		t.Errorf("owner: unexpected error: %v", err)
	}
	if _, err := svc.orders.GetOrder(ctx, o.OrderID, asC2); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("other: got %v, want ErrForbidden", err)
	}
	if _, err := svc.orders.GetOrder(ctx, "missing", admin); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("missing: got %v, want ErrOrderNotFound", err)
	}
}

func TestCancelOrder(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	o, err := svc.orders.CreateOrder(ctx, buyReq("c1", "AAPL", "2", "100"), asC1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.orders.CancelOrder(ctx, o.OrderID, asC2); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("other customer cancel: got %v, want ErrForbidden", err)
	}

	canceled, err := svc.orders.CancelOrder(ctx, o.OrderID, asC1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canceled.Status != domain.OrderStatusCanceled {
		t.Errorf("Status = %s, want CANCELED", canceled.Status)
	}
	cash, _ := svc.store.GetAsset(ctx, "c1", domain.CashSymbol)
	if !cash.UsableSize.Equal(d("1000")) {
		t.Errorf("TRY usable = %s, want 1000", cash.UsableSize)
	}

	if _, err := svc.orders.CancelOrder(ctx, o.OrderID, asC1); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second cancel: got %v, want ErrInvalidState", err)
	}
}

func TestMatchOrder(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	o, err := svc.orders.CreateOrder(ctx, buyReq("c1", "MSFT", "3", "10"), asC1)
	if err != nil {
		t.Fatal(err)
	}

	matched, err := svc.orders.MatchOrder(ctx, o.OrderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched.Status != domain.OrderStatusMatched {
		t.Errorf("Status = %s, want MATCHED", matched.Status)
	}
	msft, err := svc.store.GetAsset(ctx, "c1", "MSFT")
	if err != nil {
		t.Fatalf("bought asset missing: %v", err)
	}
	if !msft.Size.Equal(d("3")) || !msft.UsableSize.Equal(d("3")) {
		t.Errorf("MSFT = %s/%s, want 3/3", msft.Size, msft.UsableSize)
	}

	if _, err := svc.orders.MatchOrder(ctx, ""); err == nil {
		t.Error("expected validation error for empty order id")
	}
}

func TestListOrders(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		o, err := svc.orders.CreateOrder(ctx, buyReq("c1", "AAPL", "1", "10"), asC1)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, o.OrderID)
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := svc.orders.CancelOrder(ctx, ids[0], asC1); err != nil {
		t.Fatal(err)
	}

	all, err := svc.orders.ListOrders(ctx, ListOrdersRequest{}, asC1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d orders, want 3", len(all))
	}
	if all[0].OrderID != ids[2] || all[2].OrderID != ids[0] {
		t.Errorf("orders not newest first: %s, %s, %s", all[0].OrderID, all[1].OrderID, all[2].OrderID)
	}

	pending := domain.OrderStatusPending
	open, err := svc.orders.ListOrders(ctx, ListOrdersRequest{CustomerID: "c1", Status: &pending}, admin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("got %d pending orders, want 2", len(open))
	}
}

func TestListOrders_Errors(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	start := baseTime.Add(time.Hour)
	end := baseTime

	if _, err := svc.orders.ListOrders(ctx, ListOrdersRequest{}, anyone); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("no customer: got %v, want validation error", err)
	}
	if _, err := svc.orders.ListOrders(ctx, ListOrdersRequest{CustomerID: "c1", StartDate: &start, EndDate: &end}, admin); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("inverted range: got %v, want validation error", err)
	}
	if _, err := svc.orders.ListOrders(ctx, ListOrdersRequest{CustomerID: "c1"}, asC2); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("other customer: got %v, want ErrForbidden", err)
	}
	if _, err := svc.orders.ListOrders(ctx, ListOrdersRequest{CustomerID: "ghost"}, admin); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Errorf("unknown customer: got %v, want ErrCustomerNotFound", err)
	}
}
