package service

import (
	"fmt"
	"sort"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CommissionAmounts 订单金额（最小货币单位）
type CommissionAmounts struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// CommissionSplit 佣金拆分结果
type CommissionSplit struct {
	CommissionRate    models.Rate `json:"commission_rate"`
	CommissionAmount  int64       `json:"commission_amount"`
	PlatformFeeAmount int64       `json:"platform_fee_amount"`
	NetAmount         int64       `json:"net_amount"`
	// Clamped 为 true 时 RequestedCommission 为截断前的佣金
	Clamped             bool  `json:"clamped"`
	RequestedCommission int64 `json:"requested_commission"`
}

// ComputeCommission 按规则计算佣金、平台服务费与商家净额。
// rule 为 nil 表示未命中规则，佣金为 0。
func ComputeCommission(rule *models.CommissionRule, amounts CommissionAmounts, platformFeeRate models.Rate) (CommissionSplit, error) {
	var split CommissionSplit
	if amounts.Total < 0 || amounts.Subtotal < 0 || amounts.Tax < 0 || amounts.Shipping < 0 {
		return split, fmt.Errorf("%w: order amounts must not be negative", ErrAmountInvalid)
	}
	if !platformFeeRate.InRange() {
		return split, fmt.Errorf("%w: platform fee rate out of range", ErrValidation)
	}
	total := amounts.Total

	commission := int64(0)
	rate := models.NewRate(decimal.Zero)
	if rule != nil {
		if err := validateRuleShape(rule); err != nil {
			return split, err
		}
		commission = ruleCommission(rule, total)
		if rule.Type == constants.CommissionRuleTypePercentage {
			rate = rule.Percentage
		} else {
			rate = effectiveRate(commission, total)
		}
	}

	fee := minInt64(roundHalfUp(percentOf(total, platformFeeRate)), total)
	split.RequestedCommission = commission
	if commission+fee > total {
		commission = total - fee
		split.Clamped = true
		rate = effectiveRate(commission, total)
	}

	split.CommissionRate = rate
	split.CommissionAmount = commission
	split.PlatformFeeAmount = fee
	split.NetAmount = total - commission - fee
	return split, nil
}

func ruleCommission(rule *models.CommissionRule, total int64) int64 {
	switch rule.Type {
	case constants.CommissionRuleTypePercentage:
		return minInt64(roundHalfUp(percentOf(total, rule.Percentage)), total)
	case constants.CommissionRuleTypeFlat:
		return minInt64(rule.FlatAmount, total)
	case constants.CommissionRuleTypeTieredPercentage:
		tiers := sortedTiers(rule.Tiers)
		if rule.TierMode == constants.TierModeBracket {
			tier, ok := bracketTier(tiers, total)
			if !ok {
				return 0
			}
			return minInt64(roundHalfUp(percentOf(total, tier.Rate)), total)
		}
		return minInt64(roundHalfUp(marginalPercentage(tiers, total)), total)
	case constants.CommissionRuleTypeTieredFlat:
		tiers := sortedTiers(rule.Tiers)
		if rule.TierMode == constants.TierModeBracket {
			tier, ok := bracketTier(tiers, total)
			if !ok {
				return 0
			}
			return minInt64(tier.FlatAmount, total)
		}
		sum := int64(0)
		for _, tier := range tiers {
			if total < tier.Threshold {
				break
			}
			sum += tier.FlatAmount
		}
		return minInt64(sum, total)
	case constants.CommissionRuleTypeHybrid:
		flat := minInt64(rule.FlatAmount, total)
		pct := minInt64(roundHalfUp(percentOf(total, rule.Percentage)), total)
		return minInt64(flat+pct, total)
	default:
		return 0
	}
}

// marginalPercentage 分段累进：每段金额按该段费率，汇总后统一取整
func marginalPercentage(tiers models.CommissionTiers, total int64) decimal.Decimal {
	sum := decimal.Zero
	for i, tier := range tiers {
		if total <= tier.Threshold {
			break
		}
		upper := total
		if i+1 < len(tiers) && tiers[i+1].Threshold < upper {
			upper = tiers[i+1].Threshold
		}
		band := upper - tier.Threshold
		if band <= 0 {
			continue
		}
		sum = sum.Add(percentOf(band, tier.Rate))
	}
	return sum
}

// bracketTier 返回订单金额所在的最高档位
func bracketTier(tiers models.CommissionTiers, total int64) (models.CommissionTier, bool) {
	var matched models.CommissionTier
	found := false
	for _, tier := range tiers {
		if tier.Threshold > total {
			break
		}
		matched = tier
		found = true
	}
	return matched, found
}

func sortedTiers(tiers models.CommissionTiers) models.CommissionTiers {
	sorted := make(models.CommissionTiers, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold < sorted[j].Threshold
	})
	return sorted
}

func percentOf(amount int64, rate models.Rate) decimal.Decimal {
	return decimal.NewFromInt(amount).Mul(rate.Decimal).Div(hundred)
}

// roundHalfUp 四舍五入到最小货币单位（金额非负）
func roundHalfUp(value decimal.Decimal) int64 {
	return value.Round(0).IntPart()
}

func effectiveRate(commission, total int64) models.Rate {
	if total <= 0 {
		return models.NewRate(decimal.Zero)
	}
	return models.NewRate(decimal.NewFromInt(commission).Mul(hundred).Div(decimal.NewFromInt(total)))
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
