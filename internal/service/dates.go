package service

import (
	"errors"
	"fmt"
	"time"
)

// DateFormat 是全系统统一的日期格式（用户本地历法日）
const DateFormat = "2006-01-02"

// ErrInvalidDate 在日期字符串不是合法的 YYYY-MM-DD 时返回
var ErrInvalidDate = errors.New("invalid date")

// ParseDate 严格校验并解析 YYYY-MM-DD，非法输入直接拒绝而不是截断修正
func ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateFormat, date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// Today 返回本地时区的当前日期串
func Today() string {
	return time.Now().In(time.Local).Format(DateFormat)
}
