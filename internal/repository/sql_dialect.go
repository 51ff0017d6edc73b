package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

func likeOperatorByDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return "ILIKE"
	default:
		return "LIKE"
	}
}

// buildKeywordCondition 构建多列模糊匹配条件，postgres 下大小写不敏感。
func buildKeywordCondition(db *gorm.DB, columns []string, keyword string) (string, []interface{}) {
	return buildKeywordConditionByDialect(dbDialectName(db), columns, keyword)
}

func buildKeywordConditionByDialect(dialect string, columns []string, keyword string) (string, []interface{}) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || len(columns) == 0 {
		return "", nil
	}
	operator := likeOperatorByDialect(dialect)
	like := "%" + keyword + "%"
	parts := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, fmt.Sprintf("%s %s ?", column, operator))
		args = append(args, like)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
