package model

import "time"

type Update struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	RunID     string    `gorm:"column:run_id;type:varchar(36);not null;uniqueIndex"`
	TimeStamp time.Time `gorm:"column:time_stamp;not null;index"`
}

func (Update) TableName() string {
	return "updates"
}

type Unreachability struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UpdateID         uint64    `gorm:"column:update_id;not null;index"`
	PublicationPoint string    `gorm:"column:publication_point;type:varchar(512);not null;index"`
	TimeStamp        time.Time `gorm:"column:time_stamp;not null"`
}

func (Unreachability) TableName() string {
	return "unreachabilities"
}

type Inconsistency struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UpdateID       uint64    `gorm:"column:update_id;not null;index"`
	OwnerID        string    `gorm:"column:owner_id;type:varchar(255);not null;index"`
	AffectedObject string    `gorm:"column:affected_object;type:text;not null"`
	ObjectType     string    `gorm:"column:object_type;type:varchar(100);not null"`
	Reason         string    `gorm:"column:reason;type:text;not null"`
	TimeStamp      time.Time `gorm:"column:time_stamp;not null"`
}

func (Inconsistency) TableName() string {
	return "inconsistencies"
}

// ObjectError is the "Error" event of a validation report.
type ObjectError struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	UpdateID   uint64    `gorm:"column:update_id;not null;index"`
	OwnerID    string    `gorm:"column:owner_id;type:varchar(255);not null;index"`
	Name       string    `gorm:"column:name;type:text;not null"`
	ObjectType string    `gorm:"column:object_type;type:varchar(100);not null"`
	Reason     string    `gorm:"column:reason;type:text;not null"`
	TimeStamp  time.Time `gorm:"column:time_stamp;not null"`
}

func (ObjectError) TableName() string {
	return "object_errors"
}
