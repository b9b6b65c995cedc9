package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys shared by the redaction packages.
const (
	AttrMethod      = attribute.Key("redactx.method")
	AttrStrategy    = attribute.Key("redactx.strategy")
	AttrModel       = attribute.Key("redactx.model")
	AttrEntityCount = attribute.Key("redactx.entity_count")
	AttrTextRunes   = attribute.Key("redactx.text_runes")
	AttrFormat      = attribute.Key("redactx.format")
	AttrTier        = attribute.Key("redactx.tier")
	AttrPageCount   = attribute.Key("redactx.page_count")
	AttrBatchSize   = attribute.Key("redactx.batch_size")
)

// RedactionAttributes describes a text redaction request.
func RedactionAttributes(method, strategy, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrMethod.String(method),
		AttrStrategy.String(strategy),
		AttrModel.String(model),
	}
}

// DocumentAttributes describes a document render.
func DocumentAttributes(format, tier string, entities int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrFormat.String(format),
		AttrTier.String(tier),
		AttrEntityCount.Int(entities),
	}
}
