package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerd/pagerd/pkg/metrics"
	"github.com/pagerd/pagerd/pkg/models"
)

func newOncallFixture() (*OncallService, *fakeNotifier) {
	notifier := newFakeNotifier()
	m := metrics.NewOncallMetrics(prometheus.NewRegistry())
	svc := NewOncallService(OncallConfig{
		DefaultOverrideHours: 8,
		MinOverrideHours:     1,
		MaxOverrideHours:     168,
		MaxHistorySize:       50,
		MaxEscalationLog:     10,
	}, notifier, m, testLogger(), time.Second)
	return svc, notifier
}

func platformSchedule() *models.CreateScheduleRequest {
	return &models.CreateScheduleRequest{
		Team:         "platform",
		RotationType: models.RotationWeekly,
		Members: []models.Member{
			{Name: "Alice", Email: "alice@example.com", Role: models.RolePrimary},
			{Name: "Bob", Email: "bob@example.com", Role: models.RolePrimary},
			{Name: "Carol", Email: "carol@example.com", Role: models.RoleSecondary},
		},
	}
}

// weekStart returns a UTC instant inside the given ISO week of 2026.
func weekStart(week int) time.Time {
	// 2026-01-05 is Monday of ISO week 2.
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, (week-2)*7)
}

func TestCreateScheduleRequiresPrimary(t *testing.T) {
	svc, _ := newOncallFixture()

	req := platformSchedule()
	req.Members = []models.Member{{Name: "Carol", Email: "c@example.com", Role: models.RoleSecondary}}
	_, err := svc.CreateSchedule(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoPrimary)

	_, err = svc.GetSchedule(context.Background(), "platform")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestRotationAdvancesWeekly(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)

	week := 10
	svc.SetClock(func() time.Time { return weekStart(week) })

	first, err := svc.Current(context.Background(), "platform")
	require.NoError(t, err)

	week = 11
	second, err := svc.Current(context.Background(), "platform")
	require.NoError(t, err)

	assert.NotEqual(t, first.Primary.Name, second.Primary.Name)
	names := []string{first.Primary.Name, second.Primary.Name}
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, names)

	week = 12
	third, err := svc.Current(context.Background(), "platform")
	require.NoError(t, err)
	assert.Equal(t, first.Primary.Name, third.Primary.Name)
}

func TestRotationChangeNotifiesOncePerTransition(t *testing.T) {
	svc, notifier := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)

	week := 10
	svc.SetClock(func() time.Time { return weekStart(week) })

	_, err = svc.Current(context.Background(), "platform")
	require.NoError(t, err)
	_, ok := notifier.wait(time.Second)
	require.True(t, ok, "first observation announces the primary")

	// Repeated lookups within the same week stay quiet.
	_, err = svc.Current(context.Background(), "platform")
	require.NoError(t, err)
	_, ok = notifier.wait(50 * time.Millisecond)
	assert.False(t, ok)

	week = 11
	_, err = svc.Current(context.Background(), "platform")
	require.NoError(t, err)
	notification, ok := notifier.wait(time.Second)
	require.True(t, ok, "week change announces the new primary")
	assert.Contains(t, notification.Message, "on-call for team platform")
}

func TestDailyRotationIndex(t *testing.T) {
	svc, _ := newOncallFixture()
	req := platformSchedule()
	req.RotationType = models.RotationDaily
	_, err := svc.CreateSchedule(context.Background(), req)
	require.NoError(t, err)

	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return day })
	first, err := svc.Current(context.Background(), "platform")
	require.NoError(t, err)

	day = day.AddDate(0, 0, 1)
	second, err := svc.Current(context.Background(), "platform")
	require.NoError(t, err)
	assert.NotEqual(t, first.Primary.Name, second.Primary.Name)
}

func TestOverridePrecedenceAndExpiry(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)

	now := weekStart(10)
	svc.SetClock(func() time.Time { return now })

	hours := 1
	_, err = svc.SetOverride(context.Background(), &models.OverrideRequest{
		Team:          "platform",
		UserName:      "Dan",
		UserEmail:     "dan@example.com",
		Reason:        "covering",
		DurationHours: &hours,
	})
	require.NoError(t, err)

	current, err := svc.Current(context.Background(), "platform")
	require.NoError(t, err)
	assert.Equal(t, "Dan", current.Primary.Name)
	assert.True(t, current.Primary.Override)
	assert.Equal(t, "covering", current.Primary.Reason)
	require.NotNil(t, current.Secondary)
	assert.Equal(t, "Carol", current.Secondary.Name)

	// After expiry the scheduled primary returns and history records it.
	now = now.Add(2 * time.Hour)
	current, err = svc.Current(context.Background(), "platform")
	require.NoError(t, err)
	assert.False(t, current.Primary.Override)
	assert.NotEqual(t, "Dan", current.Primary.Name)

	history := svc.History(context.Background(), "platform", models.HistoryOverrideExpired, 0)
	assert.Len(t, history, 1)

	assert.Empty(t, svc.ListOverrides(context.Background()))
}

func TestOverrideDurationBounds(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)

	for _, hours := range []int{0, -1, 169} {
		h := hours
		_, err := svc.SetOverride(context.Background(), &models.OverrideRequest{
			Team: "platform", UserName: "Dan", UserEmail: "dan@example.com", DurationHours: &h,
		})
		assert.True(t, IsValidation(err), "duration %d", hours)
	}
}

func TestClearOverride(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ClearOverride(context.Background(), "platform"), ErrOverrideNotFound)

	_, err = svc.SetOverride(context.Background(), &models.OverrideRequest{
		Team: "platform", UserName: "Dan", UserEmail: "dan@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ClearOverride(context.Background(), "platform"))
	assert.Empty(t, svc.ListOverrides(context.Background()))
}

func TestEscalateResolvesSecondary(t *testing.T) {
	svc, notifier := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), &models.CreateScheduleRequest{
		Team:         "backend",
		RotationType: models.RotationWeekly,
		Members: []models.Member{
			{Name: "Ella", Email: "ella@example.com", Role: models.RolePrimary},
			{Name: "Frank", Email: "frank@example.com", Role: models.RoleSecondary},
		},
	})
	require.NoError(t, err)

	esc, err := svc.Escalate(context.Background(), &models.EscalateRequest{
		Team:       "backend",
		IncidentID: "inc-42",
	})
	require.NoError(t, err)

	require.NotNil(t, esc.EscalatedTo)
	assert.Equal(t, "Frank", esc.EscalatedTo.Name)

	notification, ok := notifier.wait(time.Second)
	require.True(t, ok)
	assert.Equal(t, "inc-42", notification.IncidentID)
	assert.Equal(t, "frank@example.com", notification.Recipient)

	escalations := svc.ListEscalations(context.Background(), "backend", 0)
	assert.Len(t, escalations, 1)
}

func TestEscalateWithoutSecondary(t *testing.T) {
	svc, notifier := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), &models.CreateScheduleRequest{
		Team:         "solo",
		RotationType: models.RotationDaily,
		Members:      []models.Member{{Name: "Gina", Email: "g@example.com", Role: models.RolePrimary}},
	})
	require.NoError(t, err)

	esc, err := svc.Escalate(context.Background(), &models.EscalateRequest{Team: "solo", IncidentID: "inc-1"})
	require.NoError(t, err)
	assert.Nil(t, esc.EscalatedTo)

	_, ok := notifier.wait(50 * time.Millisecond)
	assert.False(t, ok, "no secondary, no notification")
}

func TestEscalationLogBounded(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		_, err := svc.Escalate(context.Background(), &models.EscalateRequest{
			Team:       "platform",
			IncidentID: fmt.Sprintf("inc-%d", i),
		})
		require.NoError(t, err)
	}
	escalations := svc.ListEscalations(context.Background(), "platform", 0)
	assert.Len(t, escalations, 10)
	// Newest first; the oldest five were evicted.
	assert.Equal(t, "inc-14", escalations[0].IncidentID)
	assert.Equal(t, "inc-5", escalations[9].IncidentID)
}

func TestPatchScheduleCannotRemoveLastPrimary(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)

	_, err = svc.PatchSchedule(context.Background(), "platform", &models.PatchScheduleRequest{
		RemoveMembers: []string{"Alice", "Bob"},
	})
	assert.ErrorIs(t, err, ErrNoPrimary)

	sched, err := svc.GetSchedule(context.Background(), "platform")
	require.NoError(t, err)
	assert.Len(t, sched.Members, 3, "failed patch must not mutate the schedule")
}

func TestPatchScheduleAddAndRemove(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)

	biweekly := models.RotationBiweekly
	sched, err := svc.PatchSchedule(context.Background(), "platform", &models.PatchScheduleRequest{
		RotationType:  &biweekly,
		AddMembers:    []models.Member{{Name: "Dave", Email: "dave@example.com", Role: models.RoleSecondary}},
		RemoveMembers: []string{"Carol"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.RotationBiweekly, sched.RotationType)
	assert.Len(t, sched.Members, 3)
	secondaries := sched.Secondaries()
	require.Len(t, secondaries, 1)
	assert.Equal(t, "Dave", secondaries[0].Name)
}

func TestDeleteScheduleRemovesOverride(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)
	_, err = svc.SetOverride(context.Background(), &models.OverrideRequest{
		Team: "platform", UserName: "Dan", UserEmail: "dan@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSchedule(context.Background(), "platform"))
	assert.Empty(t, svc.ListOverrides(context.Background()))
	assert.ErrorIs(t, svc.DeleteSchedule(context.Background(), "platform"), ErrScheduleNotFound)
}

func TestTeamsAndStats(t *testing.T) {
	svc, _ := newOncallFixture()
	_, err := svc.CreateSchedule(context.Background(), platformSchedule())
	require.NoError(t, err)
	_, err = svc.SetOverride(context.Background(), &models.OverrideRequest{
		Team: "platform", UserName: "Dan", UserEmail: "dan@example.com",
	})
	require.NoError(t, err)

	teams := svc.Teams(context.Background())
	require.Len(t, teams, 1)
	assert.Equal(t, "platform", teams[0].Team)
	assert.True(t, teams[0].HasOverride)
	assert.Equal(t, 3, teams[0].MemberCount)

	stats := svc.Stats(context.Background())
	assert.Equal(t, 1, stats.Schedules)
	assert.Equal(t, 1, stats.ActiveOverrides)
	assert.Equal(t, 1, stats.ByEventType[models.HistoryScheduleCreated])
	assert.Equal(t, 1, stats.ByEventType[models.HistoryOverrideSet])
}

func TestSeedInstallsSchedules(t *testing.T) {
	svc, _ := newOncallFixture()
	svc.Seed(context.Background())
	assert.Len(t, svc.ListSchedules(context.Background()), 2)
}
