package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// rateScale 费率保留小数位（百分比口径）
const rateScale = 4

// Rate 百分比费率（0-100，保留 4 位小数）
type Rate struct {
	decimal.Decimal
}

// NewRate 从 decimal 创建费率
func NewRate(value decimal.Decimal) Rate {
	return Rate{Decimal: value.Round(rateScale)}
}

// NewRateFromString 从字符串创建费率
func NewRateFromString(value string) (Rate, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Rate{}, err
	}
	return NewRate(d), nil
}

// MustRate 从字符串创建费率，解析失败时 panic（仅用于常量与测试）
func MustRate(value string) Rate {
	r, err := NewRateFromString(value)
	if err != nil {
		panic(err)
	}
	return r
}

// InRange 判断是否处于 [0,100]
func (r Rate) InRange() bool {
	return !r.Decimal.IsNegative() && r.Decimal.LessThanOrEqual(decimal.NewFromInt(100))
}

// MarshalJSON 统一输出字符串
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Decimal.Round(rateScale).String())
}

// UnmarshalJSON 解析费率（字符串或数字）
func (r *Rate) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		r.Decimal = d.Round(rateScale)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return err
	}
	r.Decimal = d.Round(rateScale)
	return nil
}

// Value 用于数据库写入
func (r Rate) Value() (driver.Value, error) {
	return r.Decimal.Round(rateScale).Value()
}

// Scan 用于数据库读取
func (r *Rate) Scan(value interface{}) error {
	if err := r.Decimal.Scan(value); err != nil {
		return err
	}
	r.Decimal = r.Decimal.Round(rateScale)
	return nil
}

// String 返回费率字符串
func (r Rate) String() string {
	return r.Decimal.Round(rateScale).String()
}
