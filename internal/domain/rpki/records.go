package rpki

import "time"

// Section names inside the report documents.
const (
	SectionContacts                     = "Contacts"
	SectionUnreachablePublicationPoints = "UnreachablePublicationPoints"
	SectionInconsistencies              = "Inconsistencies"
	SectionErrors                       = "Errors"
)

// Record kinds, used as log and metric labels.
const (
	KindContact        = "contact"
	KindUnreachability = "unreachability"
	KindInconsistency  = "inconsistency"
	KindObjectError    = "error"
)

// Contact is one ghostbuster record. Email is nil when the record carries a
// null EmailAddress.
type Contact struct {
	Owner string
	Email *string
}

type UnreachablePublicationPoint struct {
	Repository         string
	URLs               []string
	CommunicationTypes []string
	ErrorMessages      []string
}

// VRP is a (prefix, ASN) pair as reported. ASN keeps its textual form.
type VRP struct {
	Prefix string
	ASN    string
}

type Inconsistency struct {
	Owner        string
	ObjectName   string
	ObjectType   string
	Reason       string
	AcceptingRPs []string
	RejectingRPs []string
	AffectedVRPs []VRP
}

type ObjectError struct {
	Owner        string
	ObjectName   string
	ObjectType   string
	Reason       string
	AffectedVRPs []VRP
}

// RecordFailure describes one record skipped as malformed.
type RecordFailure struct {
	Section string
	Index   int
	Reason  string
	Err     error
}

// Batch is a decoded report envelope whose records are still raw, so each
// record can fail on its own.
type Batch struct {
	Time     time.Time
	sections map[string][]rawRecord
}

// Len reports the number of records in section.
func (b Batch) Len(section string) int {
	return len(b.sections[section])
}
