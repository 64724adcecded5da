package ecommerce

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStockRecordPrice(t *testing.T) {
	testCases := []struct {
		raw       string
		expected  string
		expectErr bool
	}{
		{`"49.00"`, "49", false},
		{`100.5`, "100.5", false},
		{`null`, "", true},
		{``, "", true},
		{`"abc"`, "", true},
	}
	for _, tc := range testCases {
		price, err := StockRecord{PriceExclTax: json.RawMessage(tc.raw)}.Price()
		if tc.expectErr {
			if err == nil {
				t.Errorf("Price(%s) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("Price(%s) unexpected error: %v", tc.raw, err)
			continue
		}
		if !price.Equal(decimal.RequireFromString(tc.expected)) {
			t.Errorf("Price(%s) = %s, want %s", tc.raw, price, tc.expected)
		}
	}
}

func TestAttributes(t *testing.T) {
	var p Product
	body := `{"attribute_values": [
		{"name": "certificate_type", "code": "certificate_type", "value": "verified"},
		{"name": "credit_hours", "code": "credit_hours", "value": 3},
		{"name": "id_verification_required", "code": "id_verification_required", "value": true},
		{"name": "Course Key", "code": "course_key", "value": "course-v1:MITx+6.002x+2T2024"}
	]}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}

	byName := p.AttributesByName()
	if byName["certificate_type"] != "verified" || byName["credit_hours"] != "3" || byName["id_verification_required"] != "true" {
		t.Errorf("Unexpected attributes by name %v", byName)
	}
	if p.AttributesByCode()["course_key"] != "course-v1:MITx+6.002x+2T2024" {
		t.Errorf("Unexpected attributes by code %v", p.AttributesByCode())
	}
}
