package catalog_test

import (
	"reflect"
	"testing"

	"dawin/internal/catalog"
)

func sampleCatalog() *catalog.Catalog {
	disabled := false
	return catalog.New([]catalog.EventDefinition{
		{
			EventType: "customer.inquiry_received",
			Category:  catalog.CategoryCustomer,
			Schema: catalog.Schema{
				Required: []string{"customerName", "customerEmail"},
				Properties: map[string]catalog.Property{
					"customerName":  {Type: "string"},
					"customerEmail": {Type: "string"},
					"urgency":       {Type: "number"},
				},
			},
		},
		{
			EventType: "customer.order_placed",
			Category:  catalog.CategoryCustomer,
		},
		{
			EventType: "financial.invoice_overdue",
			Category:  catalog.CategoryFinancial,
			Schema:    catalog.Schema{Required: []string{"invoiceId"}},
		},
		{
			EventType: "strategic.market_alert",
			Category:  catalog.CategoryStrategic,
			Enabled:   &disabled,
		},
	})
}

func TestDefinitionLookup(t *testing.T) {
	c := sampleCatalog()

	def, ok := c.Definition("customer.inquiry_received")
	if !ok || def.EventType != "customer.inquiry_received" {
		t.Fatalf("expected definition, got ok=%v def=%+v", ok, def)
	}
	if _, ok := c.Definition("Customer.Inquiry_Received"); ok {
		t.Fatalf("lookup must be case sensitive")
	}
	if _, ok := c.Definition("customer.unknown"); ok {
		t.Fatalf("unknown type should not resolve")
	}
	// disabled types are invisible to Definition but reachable via Declared
	if _, ok := c.Definition("strategic.market_alert"); ok {
		t.Fatalf("disabled type should not resolve")
	}
	def, ok = c.Declared("strategic.market_alert")
	if !ok || def.IsEnabled() {
		t.Fatalf("Declared should surface the disabled definition, got ok=%v enabled=%v", ok, def.IsEnabled())
	}
}

func TestListingsKeepDeclarationOrder(t *testing.T) {
	c := sampleCatalog()

	var got []string
	for _, def := range c.ByCategory(catalog.CategoryCustomer) {
		got = append(got, def.EventType)
	}
	want := []string{"customer.inquiry_received", "customer.order_placed"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ByCategory order: got %v want %v", got, want)
	}

	types := c.EnabledTypes()
	wantTypes := []string{"customer.inquiry_received", "customer.order_placed", "financial.invoice_overdue"}
	if !reflect.DeepEqual(types, wantTypes) {
		t.Fatalf("EnabledTypes: got %v want %v", types, wantTypes)
	}

	if c.Len() != 4 || len(c.Definitions()) != 4 {
		t.Fatalf("Definitions must include disabled entries, got len %d", len(c.Definitions()))
	}
	if len(c.ByCategory(catalog.CategoryStrategic)) != 0 {
		t.Fatalf("disabled definition must not appear in category listing")
	}
}

func TestDuplicateTypesKeepFirstDeclaration(t *testing.T) {
	c := catalog.New([]catalog.EventDefinition{
		{EventType: "customer.order_placed", Category: catalog.CategoryCustomer},
		{EventType: "customer.order_placed", Category: catalog.CategoryFinancial},
	})
	if c.Len() != 1 {
		t.Fatalf("expected single definition, got %d", c.Len())
	}
	def, _ := c.Definition("customer.order_placed")
	if def.Category != catalog.CategoryCustomer {
		t.Fatalf("first declaration should win, got category %s", def.Category)
	}
}

func TestValidatePayloadUnknownType(t *testing.T) {
	c := sampleCatalog()
	for _, eventType := range []string{"customer.unknown", "strategic.market_alert"} {
		res := c.ValidatePayload(eventType, map[string]any{"anything": 1})
		if res.Valid {
			t.Fatalf("%s: expected invalid", eventType)
		}
		if len(res.Errors) != 1 || res.Errors[0] != "Unknown event type: "+eventType {
			t.Fatalf("%s: got errors %v", eventType, res.Errors)
		}
	}
}

func TestValidatePayloadRequiredFields(t *testing.T) {
	c := sampleCatalog()

	// missing and null both count as absent, errors in declared order
	res := c.ValidatePayload("customer.inquiry_received", map[string]any{"customerEmail": nil})
	want := []string{
		"Missing required field: customerName",
		"Missing required field: customerEmail",
	}
	if res.Valid || !reflect.DeepEqual(res.Errors, want) {
		t.Fatalf("got valid=%v errors=%v", res.Valid, res.Errors)
	}

	res = c.ValidatePayload("customer.inquiry_received", map[string]any{
		"customerName":  "Globex",
		"customerEmail": "ops@globex.example",
		"extraField":    "never rejected",
	})
	if !res.Valid || len(res.Errors) != 0 {
		t.Fatalf("extra fields should pass, got %+v", res)
	}

	// declared property types are informational, not enforced
	res = c.ValidatePayload("customer.inquiry_received", map[string]any{
		"customerName":  42,
		"customerEmail": true,
		"urgency":       "not a number",
	})
	if !res.Valid {
		t.Fatalf("type mismatches should not fail validation, got %v", res.Errors)
	}

	// no schema means any payload is fine, including nil
	if res := c.ValidatePayload("customer.order_placed", nil); !res.Valid {
		t.Fatalf("nil payload against empty schema should pass, got %v", res.Errors)
	}
}

func TestValidatePayloadIsPure(t *testing.T) {
	c := sampleCatalog()
	payload := map[string]any{"customerName": "Globex"}
	first := c.ValidatePayload("customer.inquiry_received", payload)
	second := c.ValidatePayload("customer.inquiry_received", payload)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated validation diverged: %+v vs %+v", first, second)
	}
	if !reflect.DeepEqual(payload, map[string]any{"customerName": "Globex"}) {
		t.Fatalf("payload was mutated: %v", payload)
	}
}
