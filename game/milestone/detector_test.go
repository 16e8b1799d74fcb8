package milestone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() []*Milestone {
	return []*Milestone{
		{ID: "deliveries_10", Category: CategoryDeliveries, Threshold: 10, RewardXP: 50},
		{ID: "deliveries_1", Category: CategoryDeliveries, Threshold: 1, RewardXP: 10},
		{ID: "deliveries_50", Category: CategoryDeliveries, Threshold: 50, RewardXP: 200},
		{ID: "bookings_5", Category: CategoryBookings, Threshold: 5, RewardXP: 25},
	}
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(testCatalog())
	require.NoError(t, err)
	return d
}

func ids(ms []*Milestone) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestNewDetector_Validation(t *testing.T) {
	_, err := NewDetector([]*Milestone{{ID: "", Category: CategoryBookings, Threshold: 1}})
	assert.Error(t, err)
	_, err = NewDetector([]*Milestone{{ID: "x", Category: "photos", Threshold: 1}})
	assert.Error(t, err)
	_, err = NewDetector([]*Milestone{{ID: "x", Category: CategoryBookings, Threshold: 0}})
	assert.Error(t, err)
	_, err = NewDetector([]*Milestone{
		{ID: "x", Category: CategoryBookings, Threshold: 1},
		{ID: "x", Category: CategoryClients, Threshold: 2},
	})
	assert.Error(t, err)
}

func TestCrossed_Single(t *testing.T) {
	d := newDetector(t)
	assert.Equal(t, []string{"deliveries_10"}, ids(d.Crossed(CategoryDeliveries, 9, 10, nil)))
}

func TestCrossed_ExactlyAtBeforeDoesNotFire(t *testing.T) {
	d := newDetector(t)
	assert.Empty(t, d.Crossed(CategoryDeliveries, 10, 11, nil))
}

func TestCrossed_MultipleAscending(t *testing.T) {
	d := newDetector(t)
	got := d.Crossed(CategoryDeliveries, 0, 75, nil)
	assert.Equal(t, []string{"deliveries_1", "deliveries_10", "deliveries_50"}, ids(got))
}

func TestCrossed_JumpOverThreshold(t *testing.T) {
	d := newDetector(t)
	assert.Equal(t, []string{"deliveries_10"}, ids(d.Crossed(CategoryDeliveries, 5, 30, nil)))
}

func TestCrossed_NoMovementOrDecrease(t *testing.T) {
	d := newDetector(t)
	assert.Empty(t, d.Crossed(CategoryDeliveries, 10, 10, nil))
	assert.Empty(t, d.Crossed(CategoryDeliveries, 20, 5, nil))
}

func TestCrossed_OtherCategoryIgnored(t *testing.T) {
	d := newDetector(t)
	assert.Equal(t, []string{"bookings_5"}, ids(d.Crossed(CategoryBookings, 0, 100, nil)))
	assert.Empty(t, d.Crossed(CategoryClients, 0, 100, nil))
}

func TestCrossed_Idempotent(t *testing.T) {
	d := newDetector(t)
	awarded := map[string]bool{}
	for i := 0; i < 3; i++ {
		for _, m := range d.Crossed(CategoryDeliveries, 9, 10, awarded) {
			awarded[m.ID] = true
		}
	}
	assert.Len(t, awarded, 1)
	// value oscillates back under and over the threshold
	assert.Empty(t, d.Crossed(CategoryDeliveries, 9, 10, awarded))
	assert.Empty(t, d.Crossed(CategoryDeliveries, 0, 10, map[string]bool{"deliveries_1": true, "deliveries_10": true}))
}

func TestCategory(t *testing.T) {
	assert.True(t, CategoryDeliveries.Counter())
	assert.False(t, CategoryLevel.Counter())
	assert.True(t, CategoryLevel.Valid())
	assert.False(t, Category("photos").Valid())
}
