package repo

import (
	"github.com/karmen87/Crypto-Alarm/internal/entity"
	"gorm.io/gorm"
)

func InitTables(db *gorm.DB) error {
	return db.AutoMigrate(&entity.Asset{}, &alarmRow{}, &pricePointRow{})
}
