package approval

// Consent is a tool's declared consent requirement: either a fixed flag or a
// function of the call's arguments. The zero value declares nothing and
// leaves the decision to configuration overrides and the controller mode.
type Consent struct {
	kind    consentKind
	static  bool
	dynamic func(args map[string]interface{}) bool
}

type consentKind int

const (
	consentUnset consentKind = iota
	consentStatic
	consentDynamic
)

// Static declares a fixed consent requirement.
func Static(required bool) Consent {
	return Consent{kind: consentStatic, static: required}
}

// Dynamic declares a requirement computed from the call's arguments, e.g.
// only a forced push needs consent.
func Dynamic(fn func(args map[string]interface{}) bool) Consent {
	return Consent{kind: consentDynamic, dynamic: fn}
}

// Required evaluates the requirement for the given arguments. The second
// return is false when the tool declares nothing.
func (c Consent) Required(args map[string]interface{}) (required bool, declared bool) {
	switch c.kind {
	case consentStatic:
		return c.static, true
	case consentDynamic:
		if c.dynamic == nil {
			return false, false
		}
		return c.dynamic(args), true
	default:
		return false, false
	}
}

// Requirement returns the evaluated requirement in the pointer form Decide
// expects: nil when the tool declares nothing.
func (c Consent) Requirement(args map[string]interface{}) *bool {
	required, declared := c.Required(args)
	if !declared {
		return nil
	}
	return &required
}
