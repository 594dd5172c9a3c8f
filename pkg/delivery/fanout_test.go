package delivery

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/model"
)

type fakeStore struct {
	tutors       []*model.TutorProfile
	threshold    float64
	thresholdErr error
	dmInserted   map[string]bool
	broadcasts   map[string]*model.BroadcastMessage
	clicks       map[string]int64
	matchErr     error
	dmErr        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		dmInserted: map[string]bool{},
		broadcasts: map[string]*model.BroadcastMessage{},
		clicks:     map[string]int64{},
	}
}

func (f *fakeStore) MatchingTutors(ctx context.Context, a *model.Assignment, maxDistanceKM float64) ([]*model.TutorProfile, error) {
	return f.tutors, f.matchErr
}

func (f *fakeStore) CalculateTutorRatingThreshold(ctx context.Context, tutorID string, percentile float64) (float64, error) {
	return f.threshold, f.thresholdErr
}

func (f *fakeStore) RecordDMDelivery(ctx context.Context, tutorID, assignmentID string) (bool, error) {
	if f.dmErr != nil {
		return false, f.dmErr
	}
	key := tutorID + ":" + assignmentID
	if f.dmInserted[key] {
		return false, nil
	}
	f.dmInserted[key] = true
	return true, nil
}

func (f *fakeStore) RecordBroadcast(ctx context.Context, msg *model.BroadcastMessage) error {
	cp := *msg
	f.broadcasts[msg.ExternalID] = &cp
	return nil
}

func (f *fakeStore) GetBroadcast(ctx context.Context, externalID string) (*model.BroadcastMessage, error) {
	return f.broadcasts[externalID], nil
}

func (f *fakeStore) GetClicks(ctx context.Context, externalID string) (int64, error) {
	return f.clicks[externalID], nil
}

type fakeTransport struct {
	dmCalls        int
	broadcastCalls int
	lastEditTarget string
}

func (f *fakeTransport) SendDM(ctx context.Context, tutorID, content, idempotencyKey string) (string, error) {
	f.dmCalls++
	return "dm-" + tutorID, nil
}

func (f *fakeTransport) Broadcast(ctx context.Context, channel, content, editTarget string) (string, error) {
	f.broadcastCalls++
	f.lastEditTarget = editTarget
	return "msg-1", nil
}

func testDeliveryConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		BroadcastDuplicateMode: config.BroadcastPrimaryOnly,
		DMSkipDuplicates:       true,
		DMMaxDistanceKMDefault: 10,
		DMRatePerMinute:        1000,
		BroadcastRatePerMinute: 1000,
		ClickBucketBoundaries:  []int64{1, 5, 10},
	}
}

func TestFanout_SkipsNonPrimary(t *testing.T) {
	fs := newFakeStore()
	ft := &fakeTransport{}
	f := New(fs, ft, nil, testDeliveryConfig())

	summary, err := f.Deliver(context.Background(), &model.Assignment{IsPrimaryInGroup: false})
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, 0, ft.dmCalls)
	assert.Equal(t, 0, ft.broadcastCalls)
}

func TestFanout_SendsDMToMatchingTutorAndBroadcasts(t *testing.T) {
	fs := newFakeStore()
	fs.tutors = []*model.TutorProfile{{ID: "tutor-1", Subjects: []string{"math"}, Levels: []string{"sec3"}}}
	ft := &fakeTransport{}
	f := New(fs, ft, nil, testDeliveryConfig())

	a := &model.Assignment{ID: "a-1", ExternalID: "ext-1", IsPrimaryInGroup: true, AcademicDisplayText: "Sec 3 Math"}
	summary, err := f.Deliver(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DMsSent)
	assert.True(t, summary.BroadcastSent)
	assert.Equal(t, 1, ft.dmCalls)
	assert.Equal(t, 1, ft.broadcastCalls)
	assert.Contains(t, fs.broadcasts, "ext-1")
}

func TestFanout_DedupsRepeatDelivery(t *testing.T) {
	fs := newFakeStore()
	fs.tutors = []*model.TutorProfile{{ID: "tutor-1"}}
	ft := &fakeTransport{}
	f := New(fs, ft, nil, testDeliveryConfig())

	a := &model.Assignment{ID: "a-1", ExternalID: "ext-1", IsPrimaryInGroup: true}
	_, err := f.Deliver(context.Background(), a)
	require.NoError(t, err)

	summary, err := f.Deliver(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DMsSent)
	assert.Equal(t, 1, summary.DMsDeduped)
	assert.Equal(t, 1, ft.dmCalls, "second deliver should not have re-sent the dm")
}

func TestFanout_RatingThresholdGatesDM(t *testing.T) {
	fs := newFakeStore()
	fs.tutors = []*model.TutorProfile{{ID: "tutor-1"}}
	fs.threshold = 4.0
	ft := &fakeTransport{}
	f := New(fs, ft, nil, testDeliveryConfig())

	low := 3.0
	a := &model.Assignment{ID: "a-1", ExternalID: "ext-1", IsPrimaryInGroup: true, DuplicateConfidenceScore: &low}
	summary, err := f.Deliver(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DMsSent)
	assert.Equal(t, 0, ft.dmCalls)
}

func TestFanout_BroadcastLimiterDegradesGracefully(t *testing.T) {
	fs := newFakeStore()
	ft := &fakeTransport{}
	cfg := testDeliveryConfig()
	cfg.BroadcastRatePerMinute = 1
	f := New(fs, ft, nil, cfg)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		f.broadcastLimiter.Allow()
	}

	a := &model.Assignment{ID: "a-1", ExternalID: "ext-1", IsPrimaryInGroup: true}
	summary, err := f.Deliver(ctx, a)
	require.NoError(t, err)
	assert.True(t, summary.DegradedMode)
	assert.False(t, summary.BroadcastSent)
	assert.Equal(t, 0, ft.broadcastCalls)
}

func TestFanout_RedisBackedDedupAvoidsStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	fs := newFakeStore()
	fs.tutors = []*model.TutorProfile{{ID: "tutor-1"}}
	ft := &fakeTransport{}
	f := New(fs, ft, rdb, testDeliveryConfig())

	a := &model.Assignment{ID: "a-1", ExternalID: "ext-1", IsPrimaryInGroup: true}
	ctx := context.Background()

	_, err := f.Deliver(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.dmCalls)

	summary, err := f.Deliver(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DMsSent)
	assert.Equal(t, 1, ft.dmCalls)
}

func TestClickBucket(t *testing.T) {
	boundaries := []int64{1, 5, 10}
	assert.Equal(t, 0, ClickBucket(0, boundaries))
	assert.Equal(t, 1, ClickBucket(1, boundaries))
	assert.Equal(t, 2, ClickBucket(7, boundaries))
	assert.Equal(t, 3, ClickBucket(10, boundaries))
}

func TestFanout_MaybeEditOnClick_EditsOnBucketCross(t *testing.T) {
	fs := newFakeStore()
	fs.broadcasts["ext-1"] = &model.BroadcastMessage{ExternalID: "ext-1", Channel: "assignments", TransportMsgID: "msg-1", Content: "hi", LastClickBucket: 0}
	fs.clicks["ext-1"] = 6
	ft := &fakeTransport{}
	f := New(fs, ft, nil, testDeliveryConfig())

	require.NoError(t, f.MaybeEditOnClick(context.Background(), "ext-1"))
	assert.Equal(t, 1, ft.broadcastCalls)
	assert.Equal(t, "msg-1", ft.lastEditTarget)
	assert.Equal(t, 2, fs.broadcasts["ext-1"].LastClickBucket)
}

func TestFanout_MaybeEditOnClick_NoOpWithinSameBucket(t *testing.T) {
	fs := newFakeStore()
	fs.broadcasts["ext-1"] = &model.BroadcastMessage{ExternalID: "ext-1", LastClickBucket: 1}
	fs.clicks["ext-1"] = 2
	ft := &fakeTransport{}
	f := New(fs, ft, nil, testDeliveryConfig())

	require.NoError(t, f.MaybeEditOnClick(context.Background(), "ext-1"))
	assert.Equal(t, 0, ft.broadcastCalls)
}
