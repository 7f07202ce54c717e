// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medimate-go/internal/model"
	"medimate-go/pkg/log"
)

// MedicineRepository 定义了药品目录的读写操作。
type MedicineRepository interface {
	// FindAll 返回目录中的全部记录。
	FindAll(ctx context.Context) ([]model.MedicineRecord, error)
	// FindByID 按 _id 查询，记录不存在时返回 (nil, nil)。
	FindByID(ctx context.Context, id string) (*model.MedicineRecord, error)
	// Upsert 按 _id 插入或覆盖一条记录。
	Upsert(ctx context.Context, record model.MedicineRecord) error
}

type mongoMedicineRepository struct {
	coll *mongo.Collection
}

// NewMongoMedicineRepository 创建一个基于 MongoDB 集合的 MedicineRepository。
func NewMongoMedicineRepository(coll *mongo.Collection) MedicineRepository {
	return &mongoMedicineRepository{coll: coll}
}

func (r *mongoMedicineRepository) FindAll(ctx context.Context) ([]model.MedicineRecord, error) {
	cursor, err := r.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to query medicines: %w", err)
	}
	defer cursor.Close(ctx)

	var records []model.MedicineRecord
	for cursor.Next(ctx) {
		rec, err := recordFromRaw(cursor.Current)
		if err != nil {
			log.Warnf("[MedicineRepository] 跳过无法解析的药品记录: %v", err)
			continue
		}
		records = append(records, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate medicines: %w", err)
	}
	return records, nil
}

func (r *mongoMedicineRepository) FindByID(ctx context.Context, id string) (*model.MedicineRecord, error) {
	raw, err := r.coll.FindOne(ctx, idFilter(id)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find medicine %s: %w", id, err)
	}
	rec, err := recordFromRaw(raw)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *mongoMedicineRepository) Upsert(ctx context.Context, record model.MedicineRecord) error {
	doc := bson.M{}
	for k, v := range record.Fields {
		doc[k] = v
	}
	doc["_id"] = storedID(record.ID)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc["_id"]}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert medicine %s: %w", record.ID, err)
	}
	return nil
}

// idFilter 同时匹配字符串形式的 _id 以及它可能的原始类型：ObjectID 或整数。
// 记录读出时 _id 一律转成了字符串，查询时需要还原。
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		candidates := bson.A{id}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			candidates = append(candidates, int32(n))
		}
		return bson.M{"_id": bson.M{"$in": append(candidates, n)}}
	}
	return bson.M{"_id": id}
}

func storedID(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// recordFromRaw 经由 relaxed Extended JSON 把 BSON 文档转成药品记录，ObjectID 以 {"$oid": ...} 形式出现。
func recordFromRaw(raw bson.Raw) (model.MedicineRecord, error) {
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return model.MedicineRecord{}, fmt.Errorf("failed to convert bson document: %w", err)
	}
	var rec model.MedicineRecord
	if err := json.Unmarshal(ext, &rec); err != nil {
		return model.MedicineRecord{}, err
	}
	return rec, nil
}

type gormMedicineRepository struct {
	db *gorm.DB
}

// NewGormMedicineRepository 创建一个基于 MySQL medicines 表的 MedicineRepository。
func NewGormMedicineRepository(db *gorm.DB) MedicineRepository {
	return &gormMedicineRepository{db: db}
}

func (r *gormMedicineRepository) FindAll(ctx context.Context) ([]model.MedicineRecord, error) {
	var rows []model.MedicineRow
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query medicines: %w", err)
	}
	records := make([]model.MedicineRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := recordFromRow(row)
		if err != nil {
			log.Warnf("[MedicineRepository] 跳过无法解析的药品记录 %s: %v", row.ID, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *gormMedicineRepository) FindByID(ctx context.Context, id string) (*model.MedicineRecord, error) {
	var row model.MedicineRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find medicine %s: %w", id, err)
	}
	rec, err := recordFromRow(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormMedicineRepository) Upsert(ctx context.Context, record model.MedicineRecord) error {
	doc, err := record.Serialize()
	if err != nil {
		return err
	}
	row := model.MedicineRow{ID: record.ID, Document: doc}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert medicine %s: %w", record.ID, err)
	}
	return nil
}

func recordFromRow(row model.MedicineRow) (model.MedicineRecord, error) {
	var rec model.MedicineRecord
	if err := json.Unmarshal([]byte(row.Document), &rec); err != nil {
		return model.MedicineRecord{}, fmt.Errorf("failed to decode medicine document: %w", err)
	}
	// 行主键是权威的 _id
	rec.ID = row.ID
	return rec, nil
}
