package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutPublisher(t *testing.T) {
	t.Parallel()

	p := New(nil)
	_, err := p.Publish(context.Background(), "crawl-runs", map[string]int{"freelancers": 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
	assert.NoError(t, p.Close())
}
