package sql

import "strings"

// isSafeIdentifier 判断标识符是否为安全的数据库标识符。
//
// 允许 foo、bar_1 以及 schema.table 形式；每段首字符为 [A-Za-z_]，
// 后续字符为 [A-Za-z0-9_]。
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			if i == 0 && !letter {
				return false
			}
			if i > 0 && !letter && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}

// IsSafeIdentifier 导出校验，供动态表名/列名的调用方（如模型仓储）提前拒绝非法配置
func IsSafeIdentifier(name string) bool {
	return isSafeIdentifier(name)
}

// mustQuote 校验并按方言加引号，非法标识符视为编程错误直接 panic
func mustQuote(builder, kind, name string, quote func(string) string) string {
	if !isSafeIdentifier(name) {
		panic(builder + ": unsafe " + kind + " name " + name)
	}
	return quote(name)
}

// inClause 生成 "col IN (?, ?, ...)"；values 为空时返回恒假条件
func inClause(quotedCol string, n int) string {
	if n == 0 {
		return "1 = 0"
	}
	return quotedCol + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}
