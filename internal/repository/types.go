package repository

import "time"

// AffiliateListFilter 查询推广账户列表的过滤条件
type AffiliateListFilter struct {
	Page     int
	PageSize int
	Status   string
	Keyword  string
}

// ReferralListFilter 查询推荐记录列表的过滤条件
type ReferralListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	Status      string
}

// PayoutListFilter 查询结算单列表的过滤条件
type PayoutListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	RunID       uint
	Status      string
	Method      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// PayoutRunListFilter 查询批量结算运行记录的过滤条件
type PayoutRunListFilter struct {
	Page     int
	PageSize int
	Status   string
	Trigger  string
}

// ReferralStatsAggregate 推荐记录聚合统计
type ReferralStatsAggregate struct {
	TotalCount     int64
	ConvertedCount int64
	PendingCount   int64
	UnpaidCount    int64
}
