package model

import (
	"time"
)

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistoryItem 是返回给客户端的对话记录。
type ChatHistoryItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp LocalTime `json:"timestamp"`
}

// historyTimeFormat 是对话记录中时间戳的展示格式，使用服务器本地时区。
const historyTimeFormat = "2006-01-02 15:04:05"

// LocalTime 在 JSON 中以 historyTimeFormat 表示。
type LocalTime time.Time

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Local().Format(historyTimeFormat) + `"`), nil
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	parsed, err := time.ParseInLocation(`"`+historyTimeFormat+`"`, string(data), time.Local)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}
