package config

// ResponseTransform configures the C7 shaping pipeline, applied in the fixed
// order filter -> field_mappings -> include/exclude -> template.
type ResponseTransform struct {
	Filter       *string           `yaml:"filter"`
	FieldMappings map[string]string `yaml:"field_mappings"`
	Include      []string          `yaml:"include"`
	Exclude      []string          `yaml:"exclude"`
	Template     *string           `yaml:"template"`
}

// IsIdentity reports whether this transform changes nothing -- used to
// verify spec.md §8's "idempotent shaping" invariant.
func (t *ResponseTransform) IsIdentity() bool {
	if t == nil {
		return true
	}
	return t.Filter == nil && len(t.FieldMappings) == 0 && len(t.Include) == 0 &&
		len(t.Exclude) == 0 && t.Template == nil
}

// TrafficSplitConfig assigns each inbound request to one named variant,
// either by weighted random choice or by a sticky cookie recorded on a
// previous assignment (supplemented feature, original_source's traffic_split.rs).
type TrafficSplitConfig struct {
	Variants   []TrafficVariant `yaml:"variants"`
	StickyCookie string         `yaml:"sticky_cookie"`
}

// TrafficVariant is one weighted branch of a traffic split: its own
// subrequest list and execution mode replace the route's default ones.
type TrafficVariant struct {
	Name          string                 `yaml:"name"`
	Weight        int                    `yaml:"weight"`
	Subrequests   []SubrequestDefinition `yaml:"subrequests"`
	ExecutionMode ExecutionMode          `yaml:"execution_mode"`
}

// TrafficMirrorConfig fires a fraction of requests at a mirror client,
// fire-and-forget, discarding the response (supplemented feature,
// original_source's middleware/traffic_mirror.rs).
type TrafficMirrorConfig struct {
	ClientID string  `yaml:"client_id"`
	URI      string  `yaml:"uri"`
	Sample   float64 `yaml:"sample"`
}
