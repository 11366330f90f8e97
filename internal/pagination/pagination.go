// Package pagination 所有分页读取共用的不透明游标与页结构，
// 以及"多取一条、弹出多余项"判断是否还有下一页的规则（不做 count 查询）。
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxPageLength 单页上限
const MaxPageLength = 25

// ErrMalformedCursor 游标无法解码
var ErrMalformedCursor = errors.New("malformed cursor")

// Cursor 不透明的续页令牌；零值表示从最新一条开始
type Cursor string

// IsZero 游标是否缺省
func (c Cursor) IsZero() bool { return c == "" }

// Key 游标绑定的全序位置（Score DESC, ID DESC）
type Key struct {
	Score int64
	ID    string
}

// Page 有序结果的一页
type Page[T any] struct {
	Items      []T    `json:"page"`
	NextCursor Cursor `json:"nextToken,omitempty"`
}

// HasMore 是否还有下一页
func (p Page[T]) HasMore() bool { return !p.NextCursor.IsZero() }

// Empty 空页，无游标
func Empty[T any]() Page[T] { return Page[T]{Items: []T{}} }

// Clamp limit 超过 MaxPageLength 时截断；缺省（<= 0）取最大值
func Clamp(limit int) int {
	if limit <= 0 || limit > MaxPageLength {
		return MaxPageLength
	}
	return limit
}

// Encode 键 -> 游标
func Encode(k Key) Cursor {
	raw := strconv.FormatInt(k.Score, 10) + "::" + k.ID
	return Cursor(base64.RawURLEncoding.EncodeToString([]byte(raw)))
}

// Decode 游标 -> 键
func Decode(c Cursor) (Key, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	score, id, ok := strings.Cut(string(raw), "::")
	if !ok || id == "" {
		return Key{}, fmt.Errorf("%w: missing separator", ErrMalformedCursor)
	}
	n, err := strconv.ParseInt(score, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	return Key{Score: n, ID: id}, nil
}

// Trim 对按 limit+1 取回的结果应用多取一条规则：
// 多出的一条被丢弃，游标指向返回的最后一条，续页从它之后严格开始。
func Trim[T any](items []T, limit int, key func(T) Key) Page[T] {
	if items == nil {
		items = []T{}
	}
	if len(items) <= limit {
		return Page[T]{Items: items}
	}
	items = items[:limit]
	return Page[T]{Items: items, NextCursor: Encode(key(items[limit-1]))}
}
