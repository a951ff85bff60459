package service

import (
	"errors"
	"testing"

	"github.com/0Calories/hibana-sub000/internal/db"
)

func TestFlameServiceCreateAndList(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewFlameService(db.DB)

	flame, err := svc.Create(1, FlameInput{
		Name:          "晨跑",
		Description:   "每天 5 公里",
		Color:         "#ff6b35",
		Mode:          db.ModeTime,
		BudgetMinutes: 30,
		Daily:         true,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if flame.ID == 0 {
		t.Fatal("expected flame to have ID")
	}

	// 不合法配置
	if _, err := svc.Create(1, FlameInput{Name: "阅读", Mode: "weekly"}); !errors.Is(err, ErrFlameInvalidInput) {
		t.Fatal("expected error for unsupported mode")
	}
	if _, err := svc.Create(1, FlameInput{Name: "俯卧撑", Mode: db.ModeCount}); !errors.Is(err, ErrFlameInvalidInput) {
		t.Fatal("expected error for missing count target")
	}
	if _, err := svc.Create(1, FlameInput{Mode: db.ModeTime, BudgetMinutes: 10}); err == nil {
		t.Fatal("expected error for empty name")
	}

	flames, err := svc.List(FlameFilter{UserID: 1})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(flames) != 1 {
		t.Fatalf("expected 1 flame, got %d", len(flames))
	}
}

func TestFlameServiceArchive(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewFlameService(db.DB)
	flame, err := svc.Create(1, FlameInput{Name: "冥想", Mode: db.ModeTime, BudgetMinutes: 15})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := svc.Archive(flame.ID); err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if err := svc.Archive(999); !errors.Is(err, ErrFlameNotFound) {
		t.Fatalf("expected ErrFlameNotFound, got %v", err)
	}

	// 归档后默认列表不可见，带 IncludeArchived 仍可见（软删除）
	visible, _ := svc.List(FlameFilter{UserID: 1})
	if len(visible) != 0 {
		t.Fatalf("expected archived flame hidden, got %d", len(visible))
	}
	all, _ := svc.List(FlameFilter{UserID: 1, IncludeArchived: true})
	if len(all) != 1 {
		t.Fatalf("expected archived flame listed, got %d", len(all))
	}
}

func TestFlameServiceCountMode(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewFlameService(db.DB)
	flame, err := svc.Create(1, FlameInput{
		Name:        "喝水",
		Mode:        db.ModeCount,
		CountTarget: 8,
		CountUnit:   "杯",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if flame.Mode != db.ModeCount || flame.CountTarget != 8 {
		t.Fatalf("unexpected count flame: %+v", flame)
	}
}
