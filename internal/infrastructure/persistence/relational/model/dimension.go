package model

import "time"

// Dimension tables are keyed by their natural identity and shared across
// updates. Rows are only ever created, never rewritten by ingestion.

type Owner struct {
	ID        string    `gorm:"column:id;type:varchar(255);primaryKey"`
	Email     *string   `gorm:"column:email;type:varchar(255)"`
	TimeStamp time.Time `gorm:"column:time_stamp;not null"`
}

func (Owner) TableName() string {
	return "owners"
}

type URL struct {
	URL string `gorm:"column:url;type:varchar(512);primaryKey"`
}

func (URL) TableName() string {
	return "urls"
}

type CommunicationType struct {
	Name string `gorm:"column:name;type:varchar(100);primaryKey"`
}

func (CommunicationType) TableName() string {
	return "communication_types"
}

type PublicationPoint struct {
	Repository string `gorm:"column:repository;type:varchar(512);primaryKey"`
}

func (PublicationPoint) TableName() string {
	return "publication_points"
}

// ErrorMessage is deduplicated on Digest, the sha256 of the exact text.
type ErrorMessage struct {
	ID     uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Digest string `gorm:"column:digest;type:char(64);not null;uniqueIndex"`
	Text   string `gorm:"column:text;type:text;not null"`
}

func (ErrorMessage) TableName() string {
	return "error_messages"
}

type RelyingParty struct {
	Name string `gorm:"column:name;type:varchar(100);primaryKey"`
}

func (RelyingParty) TableName() string {
	return "relying_parties"
}

type VRP struct {
	ID     uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Prefix string `gorm:"column:prefix;type:varchar(100);not null;uniqueIndex:idx_vrps_prefix_asn"`
	ASN    string `gorm:"column:asn;type:varchar(100);not null;uniqueIndex:idx_vrps_prefix_asn"`
}

func (VRP) TableName() string {
	return "vrps"
}
