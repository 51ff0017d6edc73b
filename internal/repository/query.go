package repository

import (
	"errors"

	"gorm.io/gorm"
)

// maxListPageSize 后台列表单页上限，避免一次拉取整张流水表
const maxListPageSize = 200

// clampPage 归一化页码与页大小，pageSize<=0 表示不分页
func clampPage(page, pageSize int) (int, int) {
	if pageSize <= 0 {
		return 0, 0
	}
	if pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}
	if page < 1 {
		page = 1
	}
	return page, pageSize
}

// applyPagination 按归一化后的页码追加 LIMIT/OFFSET
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	page, pageSize = clampPage(page, pageSize)
	if query == nil || pageSize == 0 {
		return query
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}

// firstOrNil 查询单条记录，未命中返回 (nil, nil)
func firstOrNil[T any](query *gorm.DB, conds ...interface{}) (*T, error) {
	var row T
	err := query.First(&row, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
