package model

type PublicationPointURL struct {
	Repository string `gorm:"column:repository;type:varchar(512);not null;primaryKey"`
	URL        string `gorm:"column:url;type:varchar(512);not null;primaryKey"`
}

func (PublicationPointURL) TableName() string {
	return "publication_point_urls"
}

type PublicationPointCommunicationType struct {
	Repository string `gorm:"column:repository;type:varchar(512);not null;primaryKey"`
	Name       string `gorm:"column:name;type:varchar(100);not null;primaryKey"`
}

func (PublicationPointCommunicationType) TableName() string {
	return "publication_point_communication_types"
}

type UnreachabilityErrorMessage struct {
	UnreachabilityID uint64 `gorm:"column:unreachability_id;not null;primaryKey"`
	ErrorMessageID   uint64 `gorm:"column:error_message_id;not null;primaryKey;index"`
}

func (UnreachabilityErrorMessage) TableName() string {
	return "unreachability_error_messages"
}

// InconsistencyRelyingParty links an RP to an inconsistency in one role;
// the same RP may appear once per role.
type InconsistencyRelyingParty struct {
	InconsistencyID uint64 `gorm:"column:inconsistency_id;not null;primaryKey"`
	RelyingParty    string `gorm:"column:relying_party;type:varchar(100);not null;primaryKey"`
	Role            string `gorm:"column:role;type:varchar(16);not null;primaryKey"`
}

func (InconsistencyRelyingParty) TableName() string {
	return "inconsistency_relying_parties"
}

type InconsistencyVRP struct {
	InconsistencyID uint64 `gorm:"column:inconsistency_id;not null;primaryKey"`
	VRPID           uint64 `gorm:"column:vrp_id;not null;primaryKey;index"`
}

func (InconsistencyVRP) TableName() string {
	return "inconsistency_vrps"
}

type ObjectErrorVRP struct {
	ObjectErrorID uint64 `gorm:"column:object_error_id;not null;primaryKey"`
	VRPID         uint64 `gorm:"column:vrp_id;not null;primaryKey;index"`
}

func (ObjectErrorVRP) TableName() string {
	return "object_error_vrps"
}
