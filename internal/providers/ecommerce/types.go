package ecommerce

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Product classes listed by the products endpoint.
const (
	ClassEntitlement    = "Course Entitlement"
	ClassEnrollmentCode = "Enrollment Code"

	StructureChild = "child"
)

// CourseRun is a course run with its seat products.
type CourseRun struct {
	ID       string    `json:"id"`
	Products []Product `json:"products"`
}

type Product struct {
	ID              int           `json:"id"`
	Structure       string        `json:"structure"`
	ProductClass    string        `json:"product_class"`
	Title           string        `json:"title"`
	Expires         *string       `json:"expires"`
	AttributeValues []Attribute   `json:"attribute_values"`
	StockRecords    []StockRecord `json:"stockrecords"`
}

type Attribute struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Value any    `json:"value"`
}

type StockRecord struct {
	PriceCurrency *string         `json:"price_currency"`
	PriceExclTax  json.RawMessage `json:"price_excl_tax"`
	PartnerSKU    *string         `json:"partner_sku"`
}

// Price accepts both JSON numbers and quoted decimals.
func (s StockRecord) Price() (decimal.Decimal, error) {
	raw := strings.Trim(strings.TrimSpace(string(s.PriceExclTax)), `"`)
	if raw == "" || raw == "null" {
		return decimal.Decimal{}, fmt.Errorf("missing price_excl_tax")
	}
	return decimal.NewFromString(raw)
}

// AttributesByName indexes attribute values by display name.
func (p Product) AttributesByName() map[string]string {
	out := make(map[string]string, len(p.AttributeValues))
	for _, a := range p.AttributeValues {
		out[a.Name] = attrString(a.Value)
	}
	return out
}

// AttributesByCode indexes attribute values by code.
func (p Product) AttributesByCode() map[string]string {
	out := make(map[string]string, len(p.AttributeValues))
	for _, a := range p.AttributeValues {
		out[a.Code] = attrString(a.Value)
	}
	return out
}

func attrString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
