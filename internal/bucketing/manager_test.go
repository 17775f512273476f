package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"family-safety-score/internal/config"
)

func TestGetUserBucketIsStableAndInRange(t *testing.T) {
	bm := NewBucketingManager(config.BucketingConfig{UserBuckets: 16, EventBuckets: 4})

	seen := map[int]bool{}
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("user-%d", i)
		b := bm.GetUserBucket(id)
		assert.Equal(t, b, bm.GetUserBucket(id))
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
		seen[b] = true
	}
	assert.Len(t, seen, 16, "1000 users should touch every bucket")
}

func TestZeroBucketsFallBackToOne(t *testing.T) {
	bm := NewBucketingManager(config.BucketingConfig{})

	assert.Equal(t, 0, bm.GetUserBucket("anyone"))
	assert.Equal(t, 0, bm.GetEventBucket("anything"))
	assert.Equal(t, 1, bm.GetUserBuckets())
}
