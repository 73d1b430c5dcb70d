package model

import "time"

// 查询状态
const (
	QueryStatusSuccess = "success"
	QueryStatusFailed  = "failed"
)

// 查询类型
const (
	QueryTypeRoute   = "route"
	QueryTypeSummary = "summary"
)

// QueryLog 查询历史记录
type QueryLog struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	QueryID       string    `json:"query_id" gorm:"size:64;uniqueIndex;not null"`
	QueryType     string    `json:"query_type" gorm:"size:16;index;not null"`
	Server        string    `json:"server" gorm:"size:128;index;not null"`
	Destination   string    `json:"destination" gorm:"size:64"`
	Command       string    `json:"command" gorm:"size:256;not null"`
	Status        string    `json:"status" gorm:"size:16;index;not null"`
	ErrorKind     string    `json:"error_kind,omitempty" gorm:"size:32"`
	ErrorMsg      string    `json:"error_msg,omitempty" gorm:"type:text"`
	ResponseBytes int       `json:"response_bytes"`
	DurationMS    int64     `json:"duration_ms"`
	ArchivePath   string    `json:"archive_path,omitempty" gorm:"size:256"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}

// TableName 指定表名
func (QueryLog) TableName() string {
	return "query_logs"
}
