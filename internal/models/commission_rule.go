package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CommissionRule 租户佣金规则
type CommissionRule struct {
	ID           uint            `gorm:"primarykey" json:"id"`                                               // 主键
	TenantID     string          `gorm:"type:varchar(64);not null;index" json:"tenant_id"`                   // 租户ID
	StoreID      *string         `gorm:"type:varchar(64);index" json:"store_id,omitempty"`                   // 限定店铺
	VendorID     *string         `gorm:"type:varchar(64);index" json:"vendor_id,omitempty"`                  // 限定商家
	CategoryID   *string         `gorm:"type:varchar(64)" json:"category_id,omitempty"`                      // 限定分类
	ProductID    *string         `gorm:"type:varchar(64)" json:"product_id,omitempty"`                       // 限定商品
	CollectionID *string         `gorm:"type:varchar(64)" json:"collection_id,omitempty"`                    // 限定合集
	Name         string          `gorm:"type:varchar(120)" json:"name"`                                      // 规则名称
	Priority     int             `gorm:"not null;default:0" json:"priority"`                                 // 优先级（越大越优先）
	Type         string          `gorm:"type:varchar(32);not null" json:"type"`                              // 规则类型
	Percentage   Rate            `gorm:"type:decimal(10,4);not null;default:0" json:"percentage"`            // 百分比（0-100）
	FlatAmount   int64           `gorm:"not null;default:0" json:"flat_amount"`                              // 固定金额（最小货币单位）
	Tiers        CommissionTiers `gorm:"type:json" json:"tiers"`                                             // 阶梯配置
	TierMode     string          `gorm:"type:varchar(16);not null;default:'marginal'" json:"tier_mode"`      // 阶梯计算方式
	Conditions   RuleConditions  `gorm:"type:json" json:"conditions"`                                        // 附加条件
	ValidFrom    *time.Time      `json:"valid_from,omitempty"`                                               // 生效开始
	ValidTo      *time.Time      `json:"valid_to,omitempty"`                                                 // 生效结束
	Status       string          `gorm:"type:varchar(16);not null;index" json:"status"`                      // 状态
	AppliesTo    string          `gorm:"type:varchar(32);not null;default:'all_products'" json:"applies_to"` // 适用范围
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt    time.Time       `json:"updated_at"`                                                         // 更新时间
}

// TableName 指定表名
func (CommissionRule) TableName() string {
	return "commission_rules"
}

// CommissionTier 单个阶梯档位
type CommissionTier struct {
	Threshold  int64 `json:"threshold"`             // 档位起点（含）
	Rate       Rate  `json:"rate"`                  // 档位百分比（tiered_percentage）
	FlatAmount int64 `json:"flat_amount,omitempty"` // 档位固定金额（tiered_flat）
}

// CommissionTiers 阶梯列表（按 threshold 升序存储）
type CommissionTiers []CommissionTier

// Value 实现 driver.Valuer 接口
func (t CommissionTiers) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan 实现 sql.Scanner 接口
func (t *CommissionTiers) Scan(value interface{}) error {
	raw, ok := jsonColumnBytes(value)
	if !ok {
		*t = nil
		return nil
	}
	return json.Unmarshal(raw, t)
}

// ConditionField 条件字段
type ConditionField string

const (
	ConditionFieldOrderTotal    ConditionField = "order_total"
	ConditionFieldOrderSubtotal ConditionField = "order_subtotal"
	ConditionFieldVendorID      ConditionField = "vendor_id"
	ConditionFieldStoreID       ConditionField = "store_id"
	ConditionFieldCategoryID    ConditionField = "category_id"
	ConditionFieldProductID     ConditionField = "product_id"
	ConditionFieldCollectionID  ConditionField = "collection_id"
	ConditionFieldCurrencyCode  ConditionField = "currency_code"
)

// Numeric 是否为金额类字段
func (f ConditionField) Numeric() bool {
	return f == ConditionFieldOrderTotal || f == ConditionFieldOrderSubtotal
}

// Valid 是否为已知字段
func (f ConditionField) Valid() bool {
	switch f {
	case ConditionFieldOrderTotal, ConditionFieldOrderSubtotal,
		ConditionFieldVendorID, ConditionFieldStoreID,
		ConditionFieldCategoryID, ConditionFieldProductID,
		ConditionFieldCollectionID, ConditionFieldCurrencyCode:
		return true
	default:
		return false
	}
}

// ConditionOperator 条件运算符
type ConditionOperator string

const (
	ConditionOpGT  ConditionOperator = "gt"
	ConditionOpGTE ConditionOperator = "gte"
	ConditionOpLT  ConditionOperator = "lt"
	ConditionOpLTE ConditionOperator = "lte"
	ConditionOpEQ  ConditionOperator = "eq"
	ConditionOpNE  ConditionOperator = "ne"
	ConditionOpIn  ConditionOperator = "in"
)

// Valid 是否为已知运算符
func (o ConditionOperator) Valid() bool {
	switch o {
	case ConditionOpGT, ConditionOpGTE, ConditionOpLT, ConditionOpLTE, ConditionOpEQ, ConditionOpNE, ConditionOpIn:
		return true
	default:
		return false
	}
}

// Ordered 是否为大小比较运算符
func (o ConditionOperator) Ordered() bool {
	return o == ConditionOpGT || o == ConditionOpGTE || o == ConditionOpLT || o == ConditionOpLTE
}

// ConditionValue 条件取值：数字、字符串或其列表，四者互斥
type ConditionValue struct {
	Number  *int64
	Text    *string
	Numbers []int64
	Texts   []string
}

// IsList 是否为列表
func (v ConditionValue) IsList() bool {
	return v.Numbers != nil || v.Texts != nil
}

// MarshalJSON 输出原始 JSON 形态
func (v ConditionValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case v.Text != nil:
		return json.Marshal(*v.Text)
	case v.Numbers != nil:
		return json.Marshal(v.Numbers)
	case v.Texts != nil:
		return json.Marshal(v.Texts)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 按 JSON 形态解析取值
func (v *ConditionValue) UnmarshalJSON(b []byte) error {
	*v = ConditionValue{}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch typed := raw.(type) {
	case json.Number:
		n, err := typed.Int64()
		if err != nil {
			return fmt.Errorf("condition value must be an integer amount: %s", typed.String())
		}
		v.Number = &n
	case string:
		s := strings.TrimSpace(typed)
		v.Text = &s
	case []interface{}:
		return v.unmarshalList(typed)
	default:
		return errors.New("condition value must be a number, string or list")
	}
	return nil
}

func (v *ConditionValue) unmarshalList(items []interface{}) error {
	if len(items) == 0 {
		v.Texts = []string{}
		return nil
	}
	switch items[0].(type) {
	case json.Number:
		numbers := make([]int64, 0, len(items))
		for _, item := range items {
			num, ok := item.(json.Number)
			if !ok {
				return errors.New("condition list mixes numbers and strings")
			}
			n, err := num.Int64()
			if err != nil {
				return fmt.Errorf("condition value must be an integer amount: %s", num.String())
			}
			numbers = append(numbers, n)
		}
		v.Numbers = numbers
	case string:
		texts := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return errors.New("condition list mixes numbers and strings")
			}
			texts = append(texts, strings.TrimSpace(s))
		}
		v.Texts = texts
	default:
		return errors.New("condition list items must be numbers or strings")
	}
	return nil
}

// RuleCondition 规则附加条件
type RuleCondition struct {
	Field    ConditionField    `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    ConditionValue    `json:"value"`
}

// RuleConditions 条件列表（全部满足才命中）
type RuleConditions []RuleCondition

// Value 实现 driver.Valuer 接口
func (c RuleConditions) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan 实现 sql.Scanner 接口
func (c *RuleConditions) Scan(value interface{}) error {
	raw, ok := jsonColumnBytes(value)
	if !ok {
		*c = nil
		return nil
	}
	return json.Unmarshal(raw, c)
}

// jsonColumnBytes 兼容不同驱动返回的 JSON 列类型
func jsonColumnBytes(value interface{}) ([]byte, bool) {
	switch typed := value.(type) {
	case []byte:
		if len(typed) == 0 {
			return nil, false
		}
		return typed, true
	case string:
		if typed == "" {
			return nil, false
		}
		return []byte(typed), true
	default:
		return nil, false
	}
}
