package ports

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUpdateNotFound           = errors.New("update not found")
	ErrOwnerNotFound            = errors.New("owner not found")
	ErrPublicationPointNotFound = errors.New("publication point not found")
)

type RelyingPartyRole string

const (
	RoleAccepting RelyingPartyRole = "accepting"
	RoleRejecting RelyingPartyRole = "rejecting"
)

type Update struct {
	ID        uint64
	RunID     string
	TimeStamp time.Time
}

type UpdateSummary struct {
	Update
	Unreachabilities int64
	Inconsistencies  int64
	Errors           int64
}

type Owner struct {
	ID        string
	Email     *string
	TimeStamp time.Time
}

type PublicationPoint struct {
	Repository         string
	URLs               []string
	CommunicationTypes []string
}

type ErrorMessage struct {
	ID   uint64
	Text string
}

type VRP struct {
	ID     uint64
	Prefix string
	ASN    string
}

type UnreachabilityCreate struct {
	UpdateID   uint64
	Repository string
	TimeStamp  time.Time
}

type InconsistencyCreate struct {
	UpdateID       uint64
	OwnerID        string
	AffectedObject string
	ObjectType     string
	Reason         string
	TimeStamp      time.Time
}

type ObjectErrorCreate struct {
	UpdateID   uint64
	OwnerID    string
	Name       string
	ObjectType string
	Reason     string
	TimeStamp  time.Time
}

// EventFilter narrows event listings. Zero values mean "any".
type EventFilter struct {
	UpdateID uint64
	OwnerID  string
	Limit    int
}

type UnreachabilityView struct {
	ID               uint64
	UpdateID         uint64
	TimeStamp        time.Time
	PublicationPoint PublicationPoint
	ErrorMessages    []ErrorMessage
}

type InconsistencyView struct {
	ID             uint64
	UpdateID       uint64
	AffectedObject string
	ObjectType     string
	Reason         string
	TimeStamp      time.Time
	Owner          Owner
	AcceptingRPs   []string
	RejectingRPs   []string
	AffectedVRPs   []VRP
}

type ObjectErrorView struct {
	ID           uint64
	UpdateID     uint64
	Name         string
	ObjectType   string
	Reason       string
	TimeStamp    time.Time
	Owner        Owner
	AffectedVRPs []VRP
}

type RPKIReadRepository interface {
	ListUpdates(ctx context.Context, limit int) ([]UpdateSummary, error)
	GetUpdate(ctx context.Context, updateID uint64) (UpdateSummary, error)
	GetOwner(ctx context.Context, ownerID string) (Owner, error)
	GetPublicationPoint(ctx context.Context, repository string) (PublicationPoint, error)
	ListUnreachabilities(ctx context.Context, filter EventFilter) ([]UnreachabilityView, error)
	ListInconsistencies(ctx context.Context, filter EventFilter) ([]InconsistencyView, error)
	ListObjectErrors(ctx context.Context, filter EventFilter) ([]ObjectErrorView, error)
}

// RPKIRepository is the entity store behind ingestion. Every GetOrCreate*
// method returns the stored row and whether this call created it; when the
// row already exists the supplied defaults are ignored.
type RPKIRepository interface {
	RPKIReadRepository

	CreateUpdate(ctx context.Context, update Update) (Update, error)
	DeleteUpdate(ctx context.Context, updateID uint64) error

	GetOrCreateOwner(ctx context.Context, owner Owner) (Owner, bool, error)
	GetOrCreateURL(ctx context.Context, url string) (bool, error)
	GetOrCreateCommunicationType(ctx context.Context, name string) (bool, error)
	GetOrCreatePublicationPoint(ctx context.Context, repository string) (bool, error)
	GetOrCreateErrorMessage(ctx context.Context, text string) (ErrorMessage, bool, error)
	GetOrCreateRelyingParty(ctx context.Context, name string) (bool, error)
	GetOrCreateVRP(ctx context.Context, prefix string, asn string) (VRP, bool, error)

	AddPublicationPointURL(ctx context.Context, repository string, url string) error
	AddPublicationPointCommunicationType(ctx context.Context, repository string, name string) error

	CreateUnreachability(ctx context.Context, input UnreachabilityCreate) (uint64, error)
	AddUnreachabilityErrorMessage(ctx context.Context, unreachabilityID uint64, errorMessageID uint64) error

	CreateInconsistency(ctx context.Context, input InconsistencyCreate) (uint64, error)
	AddInconsistencyRelyingParty(ctx context.Context, inconsistencyID uint64, name string, role RelyingPartyRole) error
	AddInconsistencyVRP(ctx context.Context, inconsistencyID uint64, vrpID uint64) error

	CreateObjectError(ctx context.Context, input ObjectErrorCreate) (uint64, error)
	AddObjectErrorVRP(ctx context.Context, objectErrorID uint64, vrpID uint64) error
}
