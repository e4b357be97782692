package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-sessions/internal/session/domain"
	"lms-sessions/internal/session/repository"
	"lms-sessions/internal/telemetry"
)

func (f *fixture) existsCreated(t *testing.T, userID, timeCreated int64) bool {
	t.Helper()
	list, err := f.store.SessionsByUserID(f.ctx, userID)
	require.NoError(t, err)
	for _, rec := range list {
		if rec.TimeCreated == timeCreated {
			return true
		}
	}
	return false
}

func TestManager_SessionExists(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "student", "manual")

	ok, err := f.manager.SessionExists(f.ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	f.seed(t, domain.WithSID("hokus"), domain.WithUserID(0))
	ok, err = f.manager.SessionExists(f.ctx, "hokus")
	require.NoError(t, err)
	assert.True(t, ok, "fresh anonymous session")

	rec, err := f.store.SessionBySID(f.ctx, "hokus")
	require.NoError(t, err)
	rec.TimeCreated = f.now - f.store.timeoutSeconds() - 100
	rec.TimeModified = rec.TimeCreated + 10
	_, err = f.store.UpdateSession(f.ctx, rec)
	require.NoError(t, err)

	ok, _ = f.manager.SessionExists(f.ctx, "hokus")
	assert.True(t, ok, "anonymous sessions ignore the timeout")

	rec.UserID = guestID
	_, err = f.store.UpdateSession(f.ctx, rec)
	require.NoError(t, err)
	ok, _ = f.manager.SessionExists(f.ctx, "hokus")
	assert.True(t, ok, "guest sessions ignore the timeout")

	rec.UserID = user
	_, err = f.store.UpdateSession(f.ctx, rec)
	require.NoError(t, err)
	ok, _ = f.manager.SessionExists(f.ctx, "hokus")
	assert.False(t, ok, "real user past the timeout")

	f.store.settings.Timeout += 3000 * time.Second
	ok, _ = f.manager.SessionExists(f.ctx, "hokus")
	assert.True(t, ok, "longer timeout")
}

func TestManager_TouchSession(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.WithSID("hokus"), domain.WithUserID(adminID),
		domain.WithTimeCreated(f.now-60*60), domain.WithTimeModified(f.now-30))

	require.NoError(t, f.manager.TouchSession(f.ctx, "hokus"))
	rec, err := f.store.SessionBySID(f.ctx, "hokus")
	require.NoError(t, err)
	assert.Equal(t, f.now, rec.TimeModified)
	assert.Equal(t, f.now-60*60, rec.TimeCreated)

	assert.NoError(t, f.manager.TouchSession(f.ctx, "missing"))
}

func TestManager_KillSession(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.WithSID("hokus"), domain.WithUserID(adminID))
	f.seed(t, domain.WithSID("pokus"), domain.WithUserID(0))
	require.Equal(t, int64(2), f.count(t))

	require.NoError(t, f.manager.KillSession(f.ctx, "hokus"))
	assert.Equal(t, int64(1), f.count(t))
	rec, _ := f.store.SessionBySID(f.ctx, "hokus")
	assert.Nil(t, rec)

	require.NoError(t, f.manager.KillSession(f.ctx, "hokus"))
	assert.Eventually(t, func() bool {
		return len(f.events.ofType(telemetry.EventSessionKilled)) == 1
	}, time.Second, 10*time.Millisecond)
	ev := f.events.ofType(telemetry.EventSessionKilled)[0]
	assert.Equal(t, adminID, ev.UserID)
	assert.Equal(t, "hokus", ev.SessionID)
	assert.Equal(t, eventSource, ev.Source)
}

func TestManager_KillUserSessions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.WithSID("hokus"), domain.WithUserID(adminID))
	f.seed(t, domain.WithSID("hokus2"), domain.WithUserID(adminID))
	f.seed(t, domain.WithSID("pokus"), domain.WithUserID(0))
	require.Equal(t, int64(3), f.count(t))

	require.NoError(t, f.manager.KillUserSessions(f.ctx, adminID, ""))
	assert.Equal(t, int64(1), f.count(t))
	list, _ := f.store.SessionsByUserID(f.ctx, adminID)
	assert.Empty(t, list)

	for _, sid := range []string{"pokus3", "pokus4", "pokus5"} {
		f.seed(t, domain.WithSID(sid), domain.WithUserID(adminID))
	}
	require.NoError(t, f.manager.KillUserSessions(f.ctx, adminID, "pokus5"))
	list, _ = f.store.SessionsByUserID(f.ctx, adminID)
	require.Len(t, list, 1)
	assert.Equal(t, "pokus5", list[0].SID)
}

func TestManager_KillAllSessions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.WithUserID(adminID))
	f.seed(t, domain.WithUserID(adminID))
	f.seed(t, domain.WithUserID(0))

	require.NoError(t, f.manager.KillAllSessions(f.ctx))
	assert.Zero(t, f.count(t))
	assert.Eventually(t, func() bool {
		return len(f.events.ofType(telemetry.EventSessionsPurged)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestManager_ApplyConcurrentLoginLimit(t *testing.T) {
	f := newFixture(t)
	user1 := f.createUser(t, "user1", "manual")
	user2 := f.createUser(t, "user2", "manual")

	seed := func(sid string, userID, created int64) {
		f.seed(t, domain.WithSID(sid), domain.WithUserID(userID), domain.WithTimeCreated(created),
			domain.WithTimeModified(f.now), domain.WithFirstIP("10.0.0.1"), domain.WithLastIP("10.0.0.1"))
	}
	seed("hokus1", user1, 20)
	seed("hokus2", user1, 10)
	seed("hokus3", user1, 30)
	seed("pokus1", user2, 20)
	seed("pokus2", user2, 10)
	seed("pokus3", user2, 30)
	seed("g1", guestID, 10)
	seed("g2", guestID, 10)
	seed("g3", guestID, 10)
	seed("nl1", 0, 10)
	seed("nl2", 0, 10)
	seed("nl3", 0, 10)

	applyAll := func() {
		for _, id := range []int64{user1, user2, guestID, 0} {
			require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, id, ""))
		}
	}

	f.store.settings.LimitConcurrentLogins = 0
	applyAll()
	assert.Equal(t, int64(12), f.count(t))

	f.store.settings.LimitConcurrentLogins = -1
	applyAll()
	assert.Equal(t, int64(12), f.count(t))

	f.store.settings.LimitConcurrentLogins = 2
	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, user1, ""))
	assert.Equal(t, int64(11), f.count(t))
	assert.True(t, f.existsCreated(t, user1, 20))
	assert.True(t, f.existsCreated(t, user1, 30))
	assert.False(t, f.existsCreated(t, user1, 10))

	assert.True(t, f.existsCreated(t, user2, 20))
	assert.True(t, f.existsCreated(t, user2, 30))
	assert.True(t, f.existsCreated(t, user2, 10))

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, user2, "pokus2"))
	assert.Equal(t, int64(10), f.count(t))
	assert.False(t, f.existsCreated(t, user2, 20))
	assert.True(t, f.existsCreated(t, user2, 30))
	assert.True(t, f.existsCreated(t, user2, 10))

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, guestID, ""))
	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, 0, ""))
	assert.Equal(t, int64(10), f.count(t))

	f.store.settings.LimitConcurrentLogins = 1
	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, user1, "grrr"))
	assert.Equal(t, int64(9), f.count(t))
	assert.False(t, f.existsCreated(t, user1, 20))
	assert.True(t, f.existsCreated(t, user1, 30))
	assert.False(t, f.existsCreated(t, user1, 10))

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, user1, ""))
	assert.Equal(t, int64(9), f.count(t))
	assert.True(t, f.existsCreated(t, user1, 30))

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, user2, "pokus2"))
	assert.Equal(t, int64(8), f.count(t))
	assert.False(t, f.existsCreated(t, user2, 20))
	assert.False(t, f.existsCreated(t, user2, 30))
	assert.True(t, f.existsCreated(t, user2, 10))

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, user2, ""))
	assert.Equal(t, int64(8), f.count(t))
	assert.True(t, f.existsCreated(t, user2, 10))

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, guestID, ""))
	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, 0, ""))
	assert.Equal(t, int64(8), f.count(t))

	assert.Eventually(t, func() bool {
		return len(f.events.ofType(telemetry.EventSessionEvicted)) == 4
	}, time.Second, 10*time.Millisecond)
}

func TestManager_ApplyConcurrentLoginLimitTiesEvictLowerID(t *testing.T) {
	f := newFixture(t, withLimit(1))
	first := f.seed(t, domain.WithUserID(adminID), domain.WithTimeCreated(100), domain.WithTimeModified(200))
	second := f.seed(t, domain.WithUserID(adminID), domain.WithTimeCreated(100), domain.WithTimeModified(200))

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, adminID, ""))
	assert.False(t, f.existsID(t, first))
	assert.True(t, f.existsID(t, second))
}

func TestManager_ApplyConcurrentLoginLimitKeepsProtectedOldest(t *testing.T) {
	f := newFixture(t, withLimit(2))
	oldest := f.seed(t, domain.WithSID("login"), domain.WithUserID(adminID), domain.WithTimeCreated(1), domain.WithTimeModified(1))
	var others []int64
	for created := int64(10); created <= 50; created += 10 {
		others = append(others, f.seed(t, domain.WithUserID(adminID), domain.WithTimeCreated(created), domain.WithTimeModified(created)))
	}

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, adminID, "login"))
	list, err := f.store.SessionsByUserID(f.ctx, adminID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, f.existsID(t, oldest))
	assert.True(t, f.existsID(t, others[len(others)-1]), "newest other session survives")
}

func TestManager_ApplyConcurrentLoginLimitUnderLimitSkipsListing(t *testing.T) {
	repo := &failingRepo{MemoryRepository: repository.NewMemoryRepository()}
	f := newFixture(t, withSessions(repo), withLimit(2))
	f.seed(t, domain.WithUserID(adminID), domain.WithTimeCreated(10), domain.WithTimeModified(10))
	f.seed(t, domain.WithUserID(adminID), domain.WithTimeCreated(20), domain.WithTimeModified(20))
	repo.listByUserIDCalls = 0

	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, adminID, ""))
	assert.Zero(t, repo.listByUserIDCalls, "count at limit needs no listing")
	assert.Equal(t, int64(2), f.count(t))

	f.seed(t, domain.WithUserID(adminID), domain.WithTimeCreated(30), domain.WithTimeModified(30))
	require.NoError(t, f.manager.ApplyConcurrentLoginLimit(f.ctx, adminID, ""))
	assert.Equal(t, 1, repo.listByUserIDCalls)
	assert.Equal(t, int64(2), f.count(t))
	assert.False(t, f.existsCreated(t, adminID, 10))
}

func TestManager_ResumeReadsRecordOnce(t *testing.T) {
	repo := &failingRepo{MemoryRepository: repository.NewMemoryRepository()}
	f := newFixture(t, withSessions(repo))
	f.seed(t, domain.WithSID("edge"), domain.WithUserID(adminID),
		domain.WithTimeCreated(f.now-600), domain.WithTimeModified(f.now-600))
	f.seed(t, domain.WithSID("over"), domain.WithUserID(adminID),
		domain.WithTimeCreated(f.now-601), domain.WithTimeModified(f.now-601))
	repo.getBySIDCalls = 0

	sc, err := f.manager.Resume(f.ctx, "edge", "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, "edge", sc.SID, "modified exactly one timeout ago is still live")
	assert.Equal(t, 1, repo.getBySIDCalls)

	sc, err = f.manager.Resume(f.ctx, "over", "198.51.100.4")
	require.NoError(t, err)
	assert.NotEqual(t, "over", sc.SID)
	rec, _ := f.store.SessionBySID(f.ctx, "over")
	assert.Equal(t, f.now-601, rec.TimeModified, "expired session is not touched")
}

func TestManager_Resume(t *testing.T) {
	f := newFixture(t)
	f.seed(t, domain.WithSID("live"), domain.WithUserID(adminID),
		domain.WithTimeCreated(f.now-100), domain.WithTimeModified(f.now-50))
	f.seed(t, domain.WithSID("stale"), domain.WithUserID(adminID),
		domain.WithTimeCreated(f.now-60*60), domain.WithTimeModified(f.now-60*60))

	sc, err := f.manager.Resume(f.ctx, "live", "198.51.100.4")
	require.NoError(t, err)
	assert.Equal(t, "live", sc.SID)
	assert.Equal(t, adminID, sc.UserID)
	assert.Equal(t, "198.51.100.4", sc.RemoteAddr)
	rec, _ := f.store.SessionBySID(f.ctx, "live")
	assert.Equal(t, f.now, rec.TimeModified, "resume touches the session")

	for _, sid := range []string{"stale", "unknown", ""} {
		sc, err := f.manager.Resume(f.ctx, sid, "198.51.100.4")
		require.NoError(t, err)
		assert.NotEqual(t, sid, sc.SID)
		assert.Len(t, sc.SID, 32)
		assert.False(t, sc.LoggedIn())
	}
}
