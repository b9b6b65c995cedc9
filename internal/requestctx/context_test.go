package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetClientID_and_ClientID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ClientID(ctx))

	ctx2 := SetClientID(ctx, "acme")
	assert.Equal(t, "acme", ClientID(ctx2))
	assert.Empty(t, ClientID(ctx))

	ctx3 := SetClientID(ctx2, "other")
	assert.Equal(t, "other", ClientID(ctx3))
	assert.Equal(t, "acme", ClientID(ctx2))
}

func TestRequestIDIndependentOfClientID(t *testing.T) {
	ctx := SetRequestID(SetClientID(context.Background(), "acme"), "corr_1")
	assert.Equal(t, "corr_1", RequestID(ctx))
	assert.Equal(t, "acme", ClientID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
