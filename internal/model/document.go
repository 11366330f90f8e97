package model

import "time"

// Document 实体存储中的文档：不可变 ID + 排序键（创建时间，微秒）
type Document interface {
	DocumentID() string
	SortKey() int64
}

// CompositeID 关系边的确定性主键：subject:object
// 同一 (subject, object) 至多一条边，存在性检查无需扫描
func CompositeID(subjectID, objectID string) string {
	return subjectID + ":" + objectID
}

// Stamp 返回写入时使用的创建时间与排序键
func Stamp() (time.Time, int64) {
	now := time.Now().UTC()
	return now, now.UnixMicro()
}
