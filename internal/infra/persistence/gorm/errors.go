package gormpersistence

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// isDuplicateEntryError 判断是否为唯一约束冲突。
// MySQL 通过错误号 1062 判断，SQLite (测试) 退化为字符串匹配。
func isDuplicateEntryError(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
