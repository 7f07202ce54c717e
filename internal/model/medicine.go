// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMissingID 表示药品记录中找不到 _id 或 id 字段。
var ErrMissingID = errors.New("medicine record has no _id")

// MedicineRecord 代表目录中的一条药品记录。除 _id 外字段不做约束。
type MedicineRecord struct {
	ID     string
	Fields map[string]interface{}
}

// RecommendationSet 是按发现顺序排列、_id 不重复的推荐结果。
type RecommendationSet []MedicineRecord

// Name 返回记录的 name 字段，不存在时返回空字符串。
func (r MedicineRecord) Name() string {
	if v, ok := r.Fields["name"].(string); ok {
		return v
	}
	return ""
}

// MarshalJSON 将记录展开为一个扁平对象，_id 与其他字段同级。
// encoding/json 对 map 的键排序，因此同一条记录的序列化结果是确定的。
// 标识一律以 _id 输出，即使源记录使用的是 id 字段。
func (r MedicineRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["_id"] = r.ID
	return json.Marshal(out)
}

// UnmarshalJSON 接受 _id（字符串、数字或 {"$oid": ...}），缺失时回退到 id 字段。
func (r *MedicineRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, key, ok := extractID(raw)
	if !ok {
		return ErrMissingID
	}
	delete(raw, key)
	r.ID = id
	r.Fields = raw
	return nil
}

// Serialize 返回记录的规范文本形式，即紧凑 JSON。
func (r MedicineRecord) Serialize() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("序列化药品记录 %s 失败: %w", r.ID, err)
	}
	return string(b), nil
}

// ParseMedicineRecords 解析 JSON 数组形式的药品目录。缺少 _id 的条目被跳过并计入 skipped。
func ParseMedicineRecords(data []byte) (records []MedicineRecord, skipped int, err error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, fmt.Errorf("解析药品目录失败: %w", err)
	}
	records = make([]MedicineRecord, 0, len(items))
	for _, item := range items {
		var rec MedicineRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func extractID(raw map[string]interface{}) (id string, key string, ok bool) {
	for _, k := range []string{"_id", "id"} {
		v, exists := raw[k]
		if !exists || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val, k, true
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64), k, true
		case map[string]interface{}:
			if oid, ok := val["$oid"].(string); ok && oid != "" {
				return oid, k, true
			}
		}
	}
	return "", "", false
}

// MedicineRow 对应 MySQL 中的 medicines 表，记录以 JSON 文本整体存储。
type MedicineRow struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	Document  string    `gorm:"type:json;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (MedicineRow) TableName() string {
	return "medicines"
}
