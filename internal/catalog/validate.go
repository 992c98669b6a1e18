package catalog

// ValidationResult reports the outcome of payload validation. Valid is true
// iff Errors is empty.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidatePayload checks a payload against the definition's required-field
// list. An unknown event type yields a single "Unknown event type" error.
// A required field counts as missing when the key is absent or its value is
// null. Every missing field is reported; undeclared extra fields never are.
// Declared property types are informational and not checked.
func (c *Catalog) ValidatePayload(eventType string, payload map[string]any) ValidationResult {
	def, ok := c.Definition(eventType)
	if !ok {
		return ValidationResult{Errors: []string{"Unknown event type: " + eventType}}
	}
	var errs []string
	for _, name := range def.Schema.Required {
		if v, ok := payload[name]; !ok || v == nil {
			errs = append(errs, "Missing required field: "+name)
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
