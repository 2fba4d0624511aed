package queue

import (
	"encoding/json"

	"github.com/vendorledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPayoutBatchRun 租户打款批次任务
	TaskPayoutBatchRun = constants.TaskPayoutBatchRun
	// TaskPayoutSettle 打款结算（含延迟重试）任务
	TaskPayoutSettle = constants.TaskPayoutSettle
	// TaskPayoutNotify 打款结果通知任务
	TaskPayoutNotify = constants.TaskPayoutNotify
)

// PayoutBatchRunPayload 打款批次任务载荷，TenantID 为空表示配置中的全部租户
type PayoutBatchRunPayload struct {
	TenantID string `json:"tenant_id"`
}

// PayoutSettlePayload 打款结算任务载荷
type PayoutSettlePayload struct {
	PayoutID uint `json:"payout_id"`
	Attempt  int  `json:"attempt"`
}

// PayoutNotifyPayload 打款通知任务载荷
type PayoutNotifyPayload struct {
	PayoutID uint   `json:"payout_id"`
	PayoutNo string `json:"payout_no"`
	TenantID string `json:"tenant_id"`
	VendorID string `json:"vendor_id"`
	Event    string `json:"event"`
	Status   string `json:"status"`
}

// NewPayoutBatchRunTask 创建打款批次任务
func NewPayoutBatchRunTask(payload PayoutBatchRunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutBatchRun, body), nil
}

// NewPayoutSettleTask 创建打款结算任务
func NewPayoutSettleTask(payload PayoutSettlePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutSettle, body), nil
}

// NewPayoutNotifyTask 创建打款通知任务
func NewPayoutNotifyTask(payload PayoutNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutNotify, body), nil
}
