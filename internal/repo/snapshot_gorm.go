package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
)

type CartSnapshot struct {
	Key       string    `gorm:"column:snapshot_key;primaryKey;size:191"`
	Payload   []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (CartSnapshot) TableName() string {
	return "cart_snapshots"
}

type GormSnapshots struct {
	DB *gorm.DB
}

func (r *GormSnapshots) Migrate() error {
	return r.DB.AutoMigrate(&CartSnapshot{})
}

func (r *GormSnapshots) Load(ctx context.Context, key string) ([]byte, error) {
	var snap CartSnapshot
	if err := r.DB.WithContext(ctx).Where("snapshot_key = ?", key).First(&snap).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cart.ErrNoSnapshot
		}
		return nil, err
	}
	return snap.Payload, nil
}

// Save replaces the snapshot in a single upsert statement.
func (r *GormSnapshots) Save(ctx context.Context, key string, data []byte) error {
	snap := CartSnapshot{Key: key, Payload: data, UpdatedAt: time.Now().UTC()}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&snap).Error
}

func (r *GormSnapshots) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
