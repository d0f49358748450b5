package rpki

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type rawRecord = json.RawMessage

// DecodeBatch parses a report document. Time is required; every named
// section must be a JSON array when present and is treated as empty when
// absent or null. Records are not validated here.
func DecodeBatch(data []byte, sections ...string) (Batch, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return Batch{}, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	if root == nil {
		return Batch{}, fmt.Errorf("%w: document is null", ErrMalformedBatch)
	}

	ts, err := parseTime(root["Time"])
	if err != nil {
		return Batch{}, err
	}

	batch := Batch{Time: ts, sections: make(map[string][]rawRecord, len(sections))}
	for _, section := range sections {
		raw, ok := root[section]
		if !ok || isNull(raw) {
			continue
		}
		var records []rawRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return Batch{}, fmt.Errorf("%w: %s must be an array", ErrMalformedBatch, section)
		}
		batch.sections[section] = records
	}
	return batch, nil
}

// parseTime accepts an RFC 3339 string or epoch seconds.
func parseTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || isNull(raw) {
		return time.Time{}, ErrTimeRequired
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return time.Time{}, ErrTimeRequired
		}
		ts, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, text)
		}
		return ts.UTC(), nil
	}

	var seconds json.Number
	if err := json.Unmarshal(raw, &seconds); err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, raw)
	}
	f, err := seconds.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, raw)
	}
	whole, frac := math.Modf(f)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// Contacts decodes the ghostbuster records of b. Malformed records are
// reported as failures and left out of the result.
func (b Batch) Contacts() ([]Contact, []RecordFailure) {
	return decodeSection(b, SectionContacts, func(f fields) (Contact, error) {
		owner, err := f.key("Owner")
		if err != nil {
			return Contact{}, err
		}
		email, err := f.nullableString("EmailAddress")
		if err != nil {
			return Contact{}, err
		}
		return Contact{Owner: owner, Email: email}, nil
	})
}

func (b Batch) UnreachablePublicationPoints() ([]UnreachablePublicationPoint, []RecordFailure) {
	return decodeSection(b, SectionUnreachablePublicationPoints, func(f fields) (UnreachablePublicationPoint, error) {
		var out UnreachablePublicationPoint
		var err error
		if out.Repository, err = f.key("Repository"); err != nil {
			return out, err
		}
		if out.URLs, err = f.stringList("URLs"); err != nil {
			return out, err
		}
		if out.CommunicationTypes, err = f.stringList("CommunicationTypes"); err != nil {
			return out, err
		}
		if out.ErrorMessages, err = f.stringList("ErrorMessages"); err != nil {
			return out, err
		}
		return out, nil
	})
}

func (b Batch) Inconsistencies() ([]Inconsistency, []RecordFailure) {
	return decodeSection(b, SectionInconsistencies, func(f fields) (Inconsistency, error) {
		var out Inconsistency
		var err error
		if out.Owner, out.ObjectName, out.ObjectType, out.Reason, err = f.objectHeader(); err != nil {
			return out, err
		}
		if out.AcceptingRPs, err = f.stringList("AcceptingRPs"); err != nil {
			return out, err
		}
		if out.RejectingRPs, err = f.stringList("RejectingRPs"); err != nil {
			return out, err
		}
		if out.AffectedVRPs, err = f.vrpList("AffectedVRPs"); err != nil {
			return out, err
		}
		return out, nil
	})
}

func (b Batch) ObjectErrors() ([]ObjectError, []RecordFailure) {
	return decodeSection(b, SectionErrors, func(f fields) (ObjectError, error) {
		var out ObjectError
		var err error
		if out.Owner, out.ObjectName, out.ObjectType, out.Reason, err = f.objectHeader(); err != nil {
			return out, err
		}
		if out.AffectedVRPs, err = f.vrpList("AffectedVRPs"); err != nil {
			return out, err
		}
		return out, nil
	})
}

func decodeSection[T any](b Batch, section string, decode func(fields) (T, error)) ([]T, []RecordFailure) {
	raws := b.sections[section]
	out := make([]T, 0, len(raws))
	var failures []RecordFailure
	for i, raw := range raws {
		f, err := decodeFields(raw)
		if err == nil {
			var record T
			if record, err = decode(f); err == nil {
				out = append(out, record)
				continue
			}
		}
		failures = append(failures, RecordFailure{Section: section, Index: i, Reason: err.Error(), Err: err})
	}
	return out, failures
}

type fields map[string]json.RawMessage

func decodeFields(raw json.RawMessage) (fields, error) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil, fmt.Errorf("%w: record must be an object", ErrMalformedRecord)
	}
	return f, nil
}

// key returns a required, non-blank string field.
func (f fields) key(name string) (string, error) {
	value, err := f.requiredString(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", fieldError(name, ErrFieldRequired)
	}
	return value, nil
}

func (f fields) requiredString(name string) (string, error) {
	raw, ok := f[name]
	if !ok || isNull(raw) {
		return "", fieldError(name, ErrFieldRequired)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fieldError(name, ErrFieldType)
	}
	return value, nil
}

// nullableString requires the field to be present; null yields nil.
func (f fields) nullableString(name string) (*string, error) {
	raw, ok := f[name]
	if !ok {
		return nil, fieldError(name, ErrFieldRequired)
	}
	if isNull(raw) {
		return nil, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fieldError(name, ErrFieldType)
	}
	return &value, nil
}

func (f fields) stringList(name string) ([]string, error) {
	raw, ok := f[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fieldError(name, ErrFieldType)
	}
	return values, nil
}

func (f fields) vrpList(name string) ([]VRP, error) {
	raw, ok := f[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fieldError(name, ErrFieldType)
	}

	out := make([]VRP, 0, len(items))
	for i, item := range items {
		itemFields, err := decodeFields(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		prefix, err := itemFields.key("Prefix")
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		asn, err := itemFields.asn("ASN")
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out = append(out, VRP{Prefix: prefix, ASN: asn})
	}
	return out, nil
}

// asn accepts a string ("AS13335", "13335") or a non-negative integer.
func (f fields) asn(name string) (string, error) {
	raw, ok := f[name]
	if !ok || isNull(raw) {
		return "", fieldError(name, ErrFieldRequired)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return "", fieldError(name, ErrFieldRequired)
		}
		return text, nil
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return "", fieldError(name, ErrFieldType)
	}
	n, err := strconv.ParseUint(number.String(), 10, 32)
	if err != nil {
		return "", fieldError(name, ErrFieldType)
	}
	return strconv.FormatUint(n, 10), nil
}

func (f fields) objectHeader() (owner, name, objectType, reason string, err error) {
	if owner, err = f.key("Owner"); err != nil {
		return
	}
	if name, err = f.key("ObjectName"); err != nil {
		return
	}
	if objectType, err = f.key("ObjectType"); err != nil {
		return
	}
	reason, err = f.requiredString("Reason")
	return
}

func fieldError(name string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedRecord, name, cause)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
