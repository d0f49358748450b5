package httpapi

import (
	"time"

	"rpkimon/internal/ports"
)

// JSON views keep the nested shapes of the reporting API: dimension rows are
// embedded in full, not referenced by id.

type ownerView struct {
	ID        string    `json:"id"`
	Email     *string   `json:"email"`
	TimeStamp time.Time `json:"time_stamp"`
}

type urlView struct {
	URL string `json:"url"`
}

type nameView struct {
	Name string `json:"name"`
}

type publicationPointView struct {
	Repository         string     `json:"repository"`
	URLs               []urlView  `json:"urls"`
	CommunicationTypes []nameView `json:"communication_types"`
}

type errorMessageView struct {
	ID   uint64 `json:"id"`
	Text string `json:"text"`
}

type vrpView struct {
	ID     uint64 `json:"id"`
	Prefix string `json:"prefix"`
	ASN    string `json:"asn"`
}

type updateView struct {
	ID               uint64    `json:"id"`
	RunID            string    `json:"run_id"`
	TimeStamp        time.Time `json:"time_stamp"`
	Unreachabilities int64     `json:"unreachabilities"`
	Inconsistencies  int64     `json:"inconsistencies"`
	Errors           int64     `json:"errors"`
}

type unreachabilityView struct {
	ID               uint64               `json:"id"`
	Update           uint64               `json:"update"`
	PublicationPoint publicationPointView `json:"publication_point"`
	TimeStamp        time.Time            `json:"time_stamp"`
	ErrorMessages    []errorMessageView   `json:"error_messages"`
}

type inconsistencyView struct {
	ID             uint64     `json:"id"`
	Update         uint64     `json:"update"`
	Owner          ownerView  `json:"owner"`
	AcceptingRPs   []nameView `json:"accepting_rps"`
	RejectingRPs   []nameView `json:"rejecting_rps"`
	AffectedVRPs   []vrpView  `json:"affected_vrps"`
	AffectedObject string     `json:"affected_object"`
	ObjectType     string     `json:"object_type"`
	Reason         string     `json:"reason"`
	TimeStamp      time.Time  `json:"time_stamp"`
}

type objectErrorView struct {
	ID           uint64    `json:"id"`
	Update       uint64    `json:"update"`
	Owner        ownerView `json:"owner"`
	AffectedVRPs []vrpView `json:"affected_vrps"`
	Name         string    `json:"name"`
	ObjectType   string    `json:"object_type"`
	Reason       string    `json:"reason"`
	TimeStamp    time.Time `json:"time_stamp"`
}

func toUpdateView(u ports.UpdateSummary) updateView {
	return updateView{
		ID:               u.ID,
		RunID:            u.RunID,
		TimeStamp:        u.TimeStamp,
		Unreachabilities: u.Unreachabilities,
		Inconsistencies:  u.Inconsistencies,
		Errors:           u.Errors,
	}
}

func toOwnerView(o ports.Owner) ownerView {
	return ownerView{ID: o.ID, Email: o.Email, TimeStamp: o.TimeStamp}
}

func toNameViews(names []string) []nameView {
	out := make([]nameView, 0, len(names))
	for _, name := range names {
		out = append(out, nameView{Name: name})
	}
	return out
}

func toVRPViews(vrps []ports.VRP) []vrpView {
	out := make([]vrpView, 0, len(vrps))
	for _, v := range vrps {
		out = append(out, vrpView{ID: v.ID, Prefix: v.Prefix, ASN: v.ASN})
	}
	return out
}

func toUnreachabilityView(u ports.UnreachabilityView) unreachabilityView {
	urls := make([]urlView, 0, len(u.PublicationPoint.URLs))
	for _, url := range u.PublicationPoint.URLs {
		urls = append(urls, urlView{URL: url})
	}
	messages := make([]errorMessageView, 0, len(u.ErrorMessages))
	for _, m := range u.ErrorMessages {
		messages = append(messages, errorMessageView{ID: m.ID, Text: m.Text})
	}
	return unreachabilityView{
		ID:     u.ID,
		Update: u.UpdateID,
		PublicationPoint: publicationPointView{
			Repository:         u.PublicationPoint.Repository,
			URLs:               urls,
			CommunicationTypes: toNameViews(u.PublicationPoint.CommunicationTypes),
		},
		TimeStamp:     u.TimeStamp,
		ErrorMessages: messages,
	}
}

func toInconsistencyView(i ports.InconsistencyView) inconsistencyView {
	return inconsistencyView{
		ID:             i.ID,
		Update:         i.UpdateID,
		Owner:          toOwnerView(i.Owner),
		AcceptingRPs:   toNameViews(i.AcceptingRPs),
		RejectingRPs:   toNameViews(i.RejectingRPs),
		AffectedVRPs:   toVRPViews(i.AffectedVRPs),
		AffectedObject: i.AffectedObject,
		ObjectType:     i.ObjectType,
		Reason:         i.Reason,
		TimeStamp:      i.TimeStamp,
	}
}

func toObjectErrorView(e ports.ObjectErrorView) objectErrorView {
	return objectErrorView{
		ID:           e.ID,
		Update:       e.UpdateID,
		Owner:        toOwnerView(e.Owner),
		AffectedVRPs: toVRPViews(e.AffectedVRPs),
		Name:         e.Name,
		ObjectType:   e.ObjectType,
		Reason:       e.Reason,
		TimeStamp:    e.TimeStamp,
	}
}
