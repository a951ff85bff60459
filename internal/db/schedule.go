package db

import (
	"encoding/json"

	"gorm.io/gorm"
)

// DaySchedule 描述某个星期几的燃料预算与火苗编排
// FlameIDs/MinuteOverrides 以 JSON 文本列存储有序列表
// 不变式：MinuteOverrides 非空时长度必须与 FlameIDs 一致，0 表示回退到火苗自身预算
type DaySchedule struct {
	gorm.Model
	DayOfWeek         int    `gorm:"uniqueIndex"`
	FuelBudgetMinutes int    `gorm:"default:0"`
	FlameIDsJSON      string `gorm:"column:flame_ids"`
	OverridesJSON     string `gorm:"column:minute_overrides"`
}

// FlameIDs 解码有序火苗列表，空列返回 nil
func (d DaySchedule) FlameIDs() []uint {
	return decodeUintList(d.FlameIDsJSON)
}

// MinuteOverrides 解码分钟覆盖列表，空列返回 nil
func (d DaySchedule) MinuteOverrides() []int {
	if d.OverridesJSON == "" {
		return nil
	}
	var out []int
	if err := json.Unmarshal([]byte(d.OverridesJSON), &out); err != nil {
		return nil
	}
	return out
}

// SetAssignments 编码并写入火苗与覆盖列表
func (d *DaySchedule) SetAssignments(flameIDs []uint, overrides []int) error {
	ids, err := json.Marshal(flameIDs)
	if err != nil {
		return err
	}
	d.FlameIDsJSON = string(ids)

	if overrides == nil {
		d.OverridesJSON = ""
		return nil
	}

	raw, err := json.Marshal(overrides)
	if err != nil {
		return err
	}
	d.OverridesJSON = string(raw)
	return nil
}

func decodeUintList(raw string) []uint {
	if raw == "" {
		return nil
	}
	var out []uint
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
