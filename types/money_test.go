package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"GBP", GBP(9900), 9900, "gbp", "£99.00"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
		{"Zero EUR", Zero("EUR"), 0, "eur", "€0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Multiply", func() Money { return USD(100).Multiply(3) }, USD(300)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
		{"Abs positive", func() Money { return USD(100).Abs() }, USD(100)},
		{"Abs negative", func() Money { return USD(-100).Abs() }, USD(100)},
		{"Complex", func() Money {
			return USD(1000).Add(USD(500)).Multiply(2).Subtract(USD(1000))
		}, USD(2000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyBasisPoints(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		bps      int64
		expected Money
	}{
		{"10 percent", USD(10000), 1000, USD(1000)},
		{"5 percent", USD(10000), 500, USD(500)},
		{"floors fractional cents", USD(999), 1000, USD(99)},
		{"zero bps", USD(10000), 0, USD(0)},
		{"full amount", USD(12345), 10000, USD(12345)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.money.BasisPoints(tt.bps)
			if !got.Equal(tt.expected) {
				t.Errorf("BasisPoints(%d): got %v, want %v", tt.bps, got, tt.expected)
			}
		})
	}
}

func TestMoneyComparison(t *testing.T) {
	if !USD(100).LessThan(USD(200)) {
		t.Error("expected 100 < 200")
	}
	if !USD(200).GreaterThan(USD(100)) {
		t.Error("expected 200 > 100")
	}
	if !USD(100).Min(USD(200)).Equal(USD(100)) {
		t.Error("Min: expected 100")
	}
	if !USD(100).Max(USD(200)).Equal(USD(200)) {
		t.Error("Max: expected 200")
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	// This should panic
	_ = USD(100).Add(EUR(100))
}

func TestMoneySum(t *testing.T) {
	total := Sum(USD(100), USD(200), USD(300))
	if !total.Equal(USD(600)) {
		t.Errorf("Sum: got %v, want %v", total, USD(600))
	}

	empty := Sum()
	if !empty.IsZero() {
		t.Errorf("Sum of nothing should be zero, got %v", empty)
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Amount != 4900 || decoded.Currency != "usd" || decoded.Display != "$49.00" {
		t.Errorf("unexpected JSON: %+v", decoded)
	}
}

func TestMoneyFormatNegative(t *testing.T) {
	if got := USD(-150).FormatMajor(); got != "-1.50" {
		t.Errorf("FormatMajor: got %s, want -1.50", got)
	}
}
