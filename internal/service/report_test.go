package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReportCache struct {
	fakeCache
	sets map[string][]string
}

func newFakeReportCache() *fakeReportCache {
	return &fakeReportCache{
		fakeCache: fakeCache{data: make(map[string]string)},
		sets:      make(map[string][]string),
	}
}

func (f *fakeReportCache) SAdd(ctx context.Context, key string, members ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		f.sets[key] = append(f.sets[key], m.(string))
	}
	return nil
}

func (f *fakeReportCache) SMembers(ctx context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets[key], nil
}

func putReportStatus(t *testing.T, cache *fakeReportCache, st ReportStatus) {
	t.Helper()
	data, err := json.Marshal(st)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), st.Key, string(data), time.Minute))
	require.NoError(t, cache.SAdd(context.Background(), reportSetKey, st.Key))
}

func TestListReports_ScopedToOperatorAndSorted(t *testing.T) {
	cache := newFakeReportCache()
	now := time.Now()

	putReportStatus(t, cache, ReportStatus{Key: "reports:a", Type: "loans", OperatorID: 1, Created: now.Add(-2 * time.Hour)})
	putReportStatus(t, cache, ReportStatus{Key: "reports:b", Type: "payments", OperatorID: 1, Created: now})
	putReportStatus(t, cache, ReportStatus{Key: "reports:c", Type: "loans", OperatorID: 2, Created: now})

	svc := NewReportService(nil, nil, cache, nil, nil, zap.NewNop())

	reports, err := svc.ListReports(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "reports:b", reports[0].Key, "newest first")
	assert.Equal(t, "reports:a", reports[1].Key)
}

func TestListReports_SkipsExpiredEntries(t *testing.T) {
	cache := newFakeReportCache()
	putReportStatus(t, cache, ReportStatus{Key: "reports:live", OperatorID: 1, Created: time.Now()})
	// key in the set but the status entry itself has expired
	require.NoError(t, cache.SAdd(context.Background(), reportSetKey, "reports:gone"))

	svc := NewReportService(nil, nil, cache, nil, nil, zap.NewNop())

	reports, err := svc.ListReports(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestGetReport_WrongOperatorIsNotFound(t *testing.T) {
	cache := newFakeReportCache()
	putReportStatus(t, cache, ReportStatus{Key: "reports:a", OperatorID: 1, Created: time.Now()})

	svc := NewReportService(nil, nil, cache, nil, nil, zap.NewNop())

	got, err := svc.GetReport(context.Background(), "reports:a", 1)
	require.NoError(t, err)
	assert.Equal(t, "reports:a", got.Key)

	_, err = svc.GetReport(context.Background(), "reports:a", 2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetReport(context.Background(), "reports:missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHumanizeIDAgo(t *testing.T) {
	now := time.Now()

	assert.Equal(t, "baru saja", HumanizeIDAgo(now))
	assert.Equal(t, "baru saja", HumanizeIDAgo(now.Add(time.Minute)))
	assert.Equal(t, "5 menit yang lalu", HumanizeIDAgo(now.Add(-5*time.Minute)))
	assert.Equal(t, "3 jam yang lalu", HumanizeIDAgo(now.Add(-3*time.Hour)))
	assert.Equal(t, "2 hari yang lalu", HumanizeIDAgo(now.Add(-49*time.Hour)))

	old := now.Add(-40 * 24 * time.Hour)
	assert.Equal(t, old.Format("02-01-2006 15:04"), HumanizeIDAgo(old))
}
