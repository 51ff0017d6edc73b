package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents 金额（最小货币单位，整数存储）
type Cents int64

// ParseCents 将 "12.34" 形式的金额解析为最小货币单位，超过 2 位小数视为非法
func ParseCents(raw string) (Cents, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	scaled := d.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than 2 decimal places", value)
	}
	return Cents(scaled.IntPart()), nil
}

// Decimal 转换为主单位 decimal
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String 返回 2 位小数格式
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// MarshalJSON 统一输出 2 位小数的字符串
func (c Cents) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON 解析金额（字符串或数字，均按主单位解释）
func (c *Cents) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseCents(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Rate 佣金比例（小数形式，如 0.50）
type Rate struct {
	decimal.Decimal
}

// NewRate 从字符串创建比例
func NewRate(raw string) (Rate, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Rate{}, err
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return Rate{}, fmt.Errorf("rate %s out of range [0,1]", raw)
	}
	return Rate{Decimal: d.Round(4)}, nil
}

// MustRate 创建比例，非法输入直接 panic，仅用于常量与测试
func MustRate(raw string) Rate {
	r, err := NewRate(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Apply 计算 amount × rate，四舍五入到最小货币单位
func (r Rate) Apply(amount Cents) Cents {
	return Cents(decimal.NewFromInt(int64(amount)).Mul(r.Decimal).Round(0).IntPart())
}

// MarshalJSON 输出 4 位小数字符串
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Decimal.StringFixed(4))
}

// UnmarshalJSON 解析比例
func (r *Rate) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	parsed, err := NewRate(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value 用于数据库写入
func (r Rate) Value() (driver.Value, error) {
	return r.Decimal.Round(4).Value()
}

// Scan 用于数据库读取
func (r *Rate) Scan(value interface{}) error {
	if err := r.Decimal.Scan(value); err != nil {
		return err
	}
	r.Decimal = r.Decimal.Round(4)
	return nil
}
