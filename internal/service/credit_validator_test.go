package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/enrollment-engine/internal/models"
	appErrors "github.com/campuskit/enrollment-engine/pkg/errors"
)

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

type mockCreditLoadReader struct {
	load int
}

func (m *mockCreditLoadReader) ActiveCreditLoad(ctx context.Context, studentID, periodID string) (int, error) {
	return m.load, nil
}

type mockProfileReader struct {
	profiles map[string]*models.StudentProfile
	calls    int
}

func (m *mockProfileReader) FindByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	m.calls++
	profile, ok := m.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *profile
	return &copied, nil
}

type mockCacheStore struct {
	values map[string]int
}

func (m *mockCacheStore) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*int)) = v
	return nil
}

func (m *mockCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = map[string]int{}
	}
	m.values[key] = value.(int)
	return nil
}

func TestCanAddCreditsBoundaryInclusive(t *testing.T) {
	v := NewCreditValidator(&mockCreditLoadReader{load: 20}, &mockProfileReader{}, nil, 24, time.Minute, zap.NewNop())

	ok, load, limit, err := v.CanAddCredits(context.Background(), "stu-1", "per-1", 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 20, load)
	assert.Equal(t, 24, limit)
}

func TestCanAddCreditsOverCap(t *testing.T) {
	v := NewCreditValidator(&mockCreditLoadReader{load: 20}, &mockProfileReader{}, nil, 24, time.Minute, zap.NewNop())

	ok, load, limit, err := v.CanAddCredits(context.Background(), "stu-1", "per-1", 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 20, load)
	assert.Equal(t, 24, limit)
}

func TestCanAddCreditsProfileOverrideWins(t *testing.T) {
	profiles := &mockProfileReader{profiles: map[string]*models.StudentProfile{
		"stu-1": {ID: "stu-1", FullName: "Ana Silva", Active: true, MaxCredits: intPtr(30)},
	}}
	v := NewCreditValidator(&mockCreditLoadReader{load: 22}, profiles, nil, 24, time.Minute, zap.NewNop())

	ok, _, limit, err := v.CanAddCredits(context.Background(), "stu-1", "per-1", 6)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30, limit)
}

func TestCanAddCreditsCachedCapSkipsProfileLookup(t *testing.T) {
	profiles := &mockProfileReader{}
	cache := &mockCacheStore{values: map[string]int{"profile:credit-cap:stu-1": 18}}
	v := NewCreditValidator(&mockCreditLoadReader{load: 10}, profiles, cache, 24, time.Minute, zap.NewNop())

	ok, _, limit, err := v.CanAddCredits(context.Background(), "stu-1", "per-1", 9)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 18, limit)
	assert.Zero(t, profiles.calls)
}

func TestCanAddCreditsPopulatesCacheAfterMiss(t *testing.T) {
	profiles := &mockProfileReader{profiles: map[string]*models.StudentProfile{
		"stu-1": {ID: "stu-1", Active: true, MaxCredits: intPtr(28)},
	}}
	cache := &mockCacheStore{}
	v := NewCreditValidator(&mockCreditLoadReader{load: 0}, profiles, cache, 24, time.Minute, zap.NewNop())

	_, _, limit, err := v.CanAddCredits(context.Background(), "stu-1", "per-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 28, limit)
	assert.Equal(t, 28, cache.values["profile:credit-cap:stu-1"])
}

func TestCanAddCreditsUnknownStudentUsesDefault(t *testing.T) {
	v := NewCreditValidator(&mockCreditLoadReader{load: 0}, &mockProfileReader{}, nil, 24, time.Minute, zap.NewNop())

	ok, _, limit, err := v.CanAddCredits(context.Background(), "ghost", "per-1", 24)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 24, limit)
}
