package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Key 根据操作名和参数派生确定性的缓存键
//
// 参数按名称排序后参与哈希，因此参数顺序不影响结果：
//
//	Key("predict", map[string]any{"a": 1, "b": 2})
//	== Key("predict", map[string]any{"b": 2, "a": 1})
//
// 返回形如 "predict:6b86b273ff34fce1" 的键，操作名保留为前缀，
// 便于日志和 Redis 中按操作排查。
func Key(operation string, params map[string]any) string {
	if len(params) == 0 {
		return operation
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(operation)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", params[name])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return operation + ":" + hex.EncodeToString(sum[:8])
}
