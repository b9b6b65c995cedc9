package redact

// Strategy names who performs the replacement for a text.
type Strategy string

const (
	// StrategyManual detects, filters and splices locally. Every returned
	// entity is exactly what was redacted.
	StrategyManual Strategy = "manual"
	// StrategyDelegated hands detection, synthesis and mapping to the
	// Deidentifier in one call.
	StrategyDelegated Strategy = "delegated"
)

// SelectStrategy picks the text redaction strategy for cfg.
//
// Synthetic replacement is the only capability owned by the synthesis
// collaborator, and it gives no guarantee of honouring label filters. So
// replace without filters is delegated; any filter, or any other method,
// stays on the manual path where the filters apply exactly.
func SelectStrategy(cfg Config) Strategy {
	if cfg.HasFilter() || cfg.Method != MethodReplace {
		return StrategyManual
	}
	return StrategyDelegated
}
