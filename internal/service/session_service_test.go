package service

import (
	"errors"
	"testing"
	"time"

	"github.com/0Calories/hibana-sub000/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupServiceTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.User{}, &db.Flame{}, &db.FlameSession{}, &db.DaySchedule{}, &db.SparkWallet{}, &db.SparkTransaction{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func seedFlame(t *testing.T, budgetMinutes int) db.Flame {
	t.Helper()
	flame := db.Flame{UserID: 1, Name: "晨间阅读", Mode: db.ModeTime, BudgetMinutes: budgetMinutes}
	if err := db.DB.Create(&flame).Error; err != nil {
		t.Fatalf("failed to seed flame: %v", err)
	}
	return flame
}

func TestStartSessionRejectsInvalidDate(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewSessionService(db.DB)
	flame := seedFlame(t, 30)

	if _, err := svc.StartSession(flame.ID, "2024-13-40"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	// 校验失败不应产生任何存储变更
	var count int64
	db.DB.Model(&db.FlameSession{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no session rows, got %d", count)
	}
}

func TestPauseResumeFold(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewSessionService(db.DB)
	flame := seedFlame(t, 30)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	clock := base
	svc.now = func() time.Time { return clock }

	const date = "2024-05-01"

	if _, err := svc.StartSession(flame.ID, date); err != nil {
		t.Fatalf("StartSession returned error: %v", err)
	}

	// 运行 30 秒后暂停
	clock = base.Add(30 * time.Second)
	session, err := svc.EndSession(flame.ID, date, time.Time{})
	if err != nil {
		t.Fatalf("EndSession returned error: %v", err)
	}
	if session.DurationSeconds != 30 {
		t.Fatalf("expected 30s folded, got %d", session.DurationSeconds)
	}
	if session.StartedAt != nil {
		t.Fatal("expected started_at cleared after pause")
	}

	// 再运行 20 秒后暂停，应累计为 50 秒
	clock = base.Add(60 * time.Second)
	if _, err := svc.StartSession(flame.ID, date); err != nil {
		t.Fatalf("second StartSession returned error: %v", err)
	}
	clock = base.Add(80 * time.Second)
	session, err = svc.EndSession(flame.ID, date, time.Time{})
	if err != nil {
		t.Fatalf("second EndSession returned error: %v", err)
	}
	if session.DurationSeconds != 50 {
		t.Fatalf("expected 50s folded, got %d", session.DurationSeconds)
	}

	var count int64
	db.DB.Model(&db.FlameSession{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single row per (flame, date), got %d", count)
	}
}

func TestEndSessionCallerSuppliedTimestamp(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewSessionService(db.DB)
	flame := seedFlame(t, 30)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	clock := base
	svc.now = func() time.Time { return clock }

	const date = "2024-05-01"
	if _, err := svc.StartSession(flame.ID, date); err != nil {
		t.Fatalf("StartSession returned error: %v", err)
	}

	// 暂停动作发生在 T0=+45s，但网络调用在 +120s 才完成：落库仍然按 T0 计
	pausedAt := base.Add(45 * time.Second)
	clock = base.Add(120 * time.Second)

	session, err := svc.EndSession(flame.ID, date, pausedAt)
	if err != nil {
		t.Fatalf("EndSession returned error: %v", err)
	}
	if session.DurationSeconds != 45 {
		t.Fatalf("expected 45s from caller timestamp, got %d", session.DurationSeconds)
	}
	if session.EndedAt == nil || !session.EndedAt.Equal(pausedAt) {
		t.Fatalf("expected ended_at %v, got %v", pausedAt, session.EndedAt)
	}
}

func TestEndSessionErrors(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewSessionService(db.DB)
	flame := seedFlame(t, 30)

	if _, err := svc.EndSession(flame.ID, "2024-05-01", time.Time{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	// 行存在但缺 started_at：被破坏的行按不变式失败处理
	broken := db.FlameSession{FlameID: flame.ID, Date: "2024-05-01", DurationSeconds: 10}
	if err := db.DB.Create(&broken).Error; err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	if _, err := svc.EndSession(flame.ID, "2024-05-01", time.Time{}); !errors.Is(err, ErrMissingStartTime) {
		t.Fatalf("expected ErrMissingStartTime, got %v", err)
	}
}

func TestSetCompletionIdempotentAndTerminal(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewSessionService(db.DB)
	flame := seedFlame(t, 30)

	const date = "2024-05-01"
	if _, err := svc.SetCompletion(flame.ID, date, true); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if _, err := svc.StartSession(flame.ID, date); err != nil {
		t.Fatalf("StartSession returned error: %v", err)
	}
	if _, err := svc.EndSession(flame.ID, date, time.Time{}); err != nil {
		t.Fatalf("EndSession returned error: %v", err)
	}

	first, err := svc.SetCompletion(flame.ID, date, true)
	if err != nil {
		t.Fatalf("SetCompletion returned error: %v", err)
	}
	second, err := svc.SetCompletion(flame.ID, date, true)
	if err != nil {
		t.Fatalf("repeated SetCompletion returned error: %v", err)
	}
	if first.DurationSeconds != second.DurationSeconds || !second.Completed {
		t.Fatal("expected same-value SetCompletion to be a no-op")
	}

	// 封印是当天的终态：后续 start/pause 被拒绝
	if _, err := svc.StartSession(flame.ID, date); !errors.Is(err, ErrSessionSealed) {
		t.Fatalf("expected ErrSessionSealed on start, got %v", err)
	}
	if _, err := svc.EndSession(flame.ID, date, time.Time{}); !errors.Is(err, ErrSessionSealed) {
		t.Fatalf("expected ErrSessionSealed on end, got %v", err)
	}
}

func TestElapsedSecondsRecomputedFromTimestamps(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	session := db.FlameSession{DurationSeconds: 100, StartedAt: &start}

	// elapsed(T+k) = D + k，对任意 k 成立，与 tick 抖动无关
	for _, k := range []int{0, 1, 7, 60, 3599} {
		got := ElapsedSeconds(session, start.Add(time.Duration(k)*time.Second))
		if got != 100+k {
			t.Fatalf("elapsed at +%ds: expected %d, got %d", k, 100+k, got)
		}
	}

	// 非运行状态下 elapsed 冻结在已折叠值
	session.StartedAt = nil
	if got := ElapsedSeconds(session, start.Add(time.Hour)); got != 100 {
		t.Fatalf("expected frozen elapsed 100, got %d", got)
	}
}

func TestSealThresholdDefaultsToHalfBudget(t *testing.T) {
	flame := db.Flame{Mode: db.ModeTime, BudgetMinutes: 30}
	if got := SealThresholdSeconds(flame); got != 900 {
		t.Fatalf("expected 900s threshold, got %d", got)
	}

	flame.SealThresholdMinutes = 5
	if got := SealThresholdSeconds(flame); got != 300 {
		t.Fatalf("expected explicit 300s threshold, got %d", got)
	}
}

func TestGetAllSessionsForDateScopedToOwner(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewSessionService(db.DB)
	mine := seedFlame(t, 30)
	theirs := db.Flame{UserID: 2, Name: "夜读", Mode: db.ModeTime, BudgetMinutes: 30}
	if err := db.DB.Create(&theirs).Error; err != nil {
		t.Fatalf("failed to seed flame: %v", err)
	}

	for _, flameID := range []uint{mine.ID, theirs.ID} {
		session := db.FlameSession{FlameID: flameID, Date: "2024-05-01", DurationSeconds: 60}
		if err := db.DB.Create(&session).Error; err != nil {
			t.Fatalf("failed to seed session: %v", err)
		}
	}

	sessions, err := svc.GetAllSessionsForDate(1, "2024-05-01")
	if err != nil {
		t.Fatalf("GetAllSessionsForDate returned error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].FlameID != mine.ID {
		t.Fatalf("expected only own sessions, got %+v", sessions)
	}
}
