package model

// Built-in context attribute names. Targeting conditions may reference these
// or any custom attribute.
const (
	UserIDAttribute     = "userId"
	SessionIDAttribute  = "sessionId"
	CountryAttribute    = "country"
	DeviceTypeAttribute = "deviceType"
)

// EvaluationContext describes the request a flag is evaluated for.
type EvaluationContext struct {
	UserID     string         `json:"userId,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	Country    string         `json:"country,omitempty"`
	DeviceType string         `json:"deviceType,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Identity is the bucketing identity: user, then session, then "anonymous".
func (c EvaluationContext) Identity() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.SessionID != "":
		return c.SessionID
	default:
		return "anonymous"
	}
}

// Snapshot copies the context so later changes to the caller's attribute map
// are not observed.
func (c EvaluationContext) Snapshot() EvaluationContext {
	if c.Attributes == nil {
		return c
	}
	attrs := make(map[string]any, len(c.Attributes))
	for k, v := range c.Attributes {
		attrs[k] = v
	}
	c.Attributes = attrs
	return c
}

// Lookup resolves an attribute, checking built-in fields before custom attributes.
func (c EvaluationContext) Lookup(attribute string) (any, bool) {
	builtin := map[string]string{
		UserIDAttribute:     c.UserID,
		SessionIDAttribute:  c.SessionID,
		CountryAttribute:    c.Country,
		DeviceTypeAttribute: c.DeviceType,
	}
	if v, ok := builtin[attribute]; ok && v != "" {
		return v, true
	}
	v, ok := c.Attributes[attribute]
	return v, ok
}

// Flatten merges built-in fields and custom attributes into one map.
func (c EvaluationContext) Flatten() map[string]any {
	out := make(map[string]any, len(c.Attributes)+4)
	for k, v := range c.Attributes {
		out[k] = v
	}
	if c.UserID != "" {
		out[UserIDAttribute] = c.UserID
	}
	if c.SessionID != "" {
		out[SessionIDAttribute] = c.SessionID
	}
	if c.Country != "" {
		out[CountryAttribute] = c.Country
	}
	if c.DeviceType != "" {
		out[DeviceTypeAttribute] = c.DeviceType
	}
	return out
}
