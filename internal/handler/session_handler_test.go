package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/0Calories/hibana-sub000/internal/db"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*API, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := gdb.AutoMigrate(&db.User{}, &db.Flame{}, &db.FlameSession{}, &db.DaySchedule{}, &db.SparkWallet{}, &db.SparkTransaction{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return NewAPI(gdb), func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func postJSON(t *testing.T, api func(*gin.Context), path string, id uint, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{gin.Param{Key: "id", Value: strconv.Itoa(int(id))}}

	api(c)
	return w
}

func TestToggleFlameStartAndPause(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	flame := db.Flame{UserID: 1, Name: "晨跑", Mode: db.ModeTime, BudgetMinutes: 30}
	if err := db.DB.Create(&flame).Error; err != nil {
		t.Fatalf("failed to seed flame: %v", err)
	}

	w := postJSON(t, api.ToggleFlame, "/api/flames/1/toggle", flame.ID, map[string]any{"date": "2024-05-01"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on start, got %d: %s", w.Code, w.Body.String())
	}

	var started struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if started.State != "burning" {
		t.Fatalf("expected burning, got %s", started.State)
	}

	// 带客户端捕获时刻的暂停
	pausedAt := time.Now().Add(-time.Minute).Format(time.RFC3339)
	w = postJSON(t, api.ToggleFlame, "/api/flames/1/toggle", flame.ID, map[string]any{"date": "2024-05-01", "paused_at": pausedAt})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on pause, got %d: %s", w.Code, w.Body.String())
	}

	var session db.FlameSession
	if err := db.DB.Where("flame_id = ?", flame.ID).First(&session).Error; err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.StartedAt != nil {
		t.Fatal("expected started_at cleared after pause")
	}
}

func TestToggleFlameRejectsInvalidDate(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	flame := db.Flame{UserID: 1, Name: "晨跑", Mode: db.ModeTime, BudgetMinutes: 30}
	if err := db.DB.Create(&flame).Error; err != nil {
		t.Fatalf("failed to seed flame: %v", err)
	}

	w := postJSON(t, api.ToggleFlame, "/api/flames/1/toggle", flame.ID, map[string]any{"date": "2024-13-40"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid date, got %d", w.Code)
	}

	var count int64
	db.DB.Model(&db.FlameSession{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no session rows, got %d", count)
	}
}

func TestToggleFlameBlockedByActiveFlame(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	flameA := db.Flame{UserID: 1, Name: "晨跑", Mode: db.ModeTime, BudgetMinutes: 30}
	flameB := db.Flame{UserID: 1, Name: "阅读", Mode: db.ModeTime, BudgetMinutes: 30}
	if err := db.DB.Create(&flameA).Error; err != nil {
		t.Fatalf("failed to seed flameA: %v", err)
	}
	if err := db.DB.Create(&flameB).Error; err != nil {
		t.Fatalf("failed to seed flameB: %v", err)
	}

	w := postJSON(t, api.ToggleFlame, "/api/flames/toggle", flameA.ID, map[string]any{"date": "2024-05-01"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = postJSON(t, api.ToggleFlame, "/api/flames/toggle", flameB.ID, map[string]any{"date": "2024-05-01"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while another flame burns, got %d", w.Code)
	}
}

func TestToggleFlameIgnoresOtherUsersSessions(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	mine := db.Flame{UserID: 1, Name: "晨跑", Mode: db.ModeTime, BudgetMinutes: 30}
	theirs := db.Flame{UserID: 2, Name: "夜读", Mode: db.ModeTime, BudgetMinutes: 30}
	if err := db.DB.Create(&mine).Error; err != nil {
		t.Fatalf("failed to seed flame: %v", err)
	}
	if err := db.DB.Create(&theirs).Error; err != nil {
		t.Fatalf("failed to seed flame: %v", err)
	}

	// 别的账号正在燃烧，且已把星期三的 10 分钟预算烧满
	if _, err := api.schedules.SetFuelBudget(3, 10); err != nil {
		t.Fatalf("SetFuelBudget returned error: %v", err)
	}
	startedAt := time.Now()
	session := db.FlameSession{FlameID: theirs.ID, Date: "2024-05-01", StartedAt: &startedAt, DurationSeconds: 600}
	if err := db.DB.Create(&session).Error; err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	// 互斥与燃料守卫都只看本账号的会话
	w := postJSON(t, api.ToggleFlame, "/api/flames/toggle", mine.ID, map[string]any{"date": "2024-05-01"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected other user's session to be invisible, got %d: %s", w.Code, w.Body.String())
	}
}

func TestToggleFlameBlockedWhenFuelDepleted(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	flame := db.Flame{UserID: 1, Name: "晨跑", Mode: db.ModeTime, BudgetMinutes: 30}
	if err := db.DB.Create(&flame).Error; err != nil {
		t.Fatalf("failed to seed flame: %v", err)
	}

	// 2024-05-01 是星期三：预算 10 分钟，已用满
	if _, err := api.schedules.SetFuelBudget(3, 10); err != nil {
		t.Fatalf("SetFuelBudget returned error: %v", err)
	}
	session := db.FlameSession{FlameID: flame.ID, Date: "2024-05-01", DurationSeconds: 600}
	if err := db.DB.Create(&session).Error; err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	w := postJSON(t, api.ToggleFlame, "/api/flames/toggle", flame.ID, map[string]any{"date": "2024-05-01"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 when fuel depleted, got %d: %s", w.Code, w.Body.String())
	}
}
