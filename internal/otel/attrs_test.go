package otel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactionAttributes(t *testing.T) {
	attrs := RedactionAttributes("mask", "manual", "m1")
	assert.Len(t, attrs, 3)
	assert.Equal(t, AttrMethod, attrs[0].Key)
	assert.Equal(t, "mask", attrs[0].Value.AsString())
	assert.Equal(t, "manual", attrs[1].Value.AsString())
	assert.Equal(t, "m1", attrs[2].Value.AsString())
}

func TestDocumentAttributes(t *testing.T) {
	attrs := DocumentAttributes("pdf", "in_place", 4)
	assert.Equal(t, "pdf", attrs[0].Value.AsString())
	assert.Equal(t, "in_place", attrs[1].Value.AsString())
	assert.Equal(t, int64(4), attrs[2].Value.AsInt64())
}
