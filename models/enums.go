package models

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

const (
	FirstRoundNumber = 1
	FinalRoundNumber = 3
)

// A product/day key may be carried by at most this many location rows.
const MaxItemsPerKey = 2

func IsValidRoundNumber(n int) bool {
	return n >= FirstRoundNumber && n <= FinalRoundNumber
}

type CountMode string

const (
	CountModeScheduled CountMode = "Scheduled"
	CountModeAdHoc     CountMode = "AdHoc"
)

func (t CountMode) IsValid() bool {
	return t == CountModeScheduled || t == CountModeAdHoc
}

func (t *CountMode) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("count mode must be string")
	}
	switch str {
	case "", "Scheduled":
		*t = CountModeScheduled
	case "AdHoc":
		*t = CountModeAdHoc
	default:
		return errors.New("invalid count mode")
	}
	return nil
}

func (t CountMode) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(t))))
}

func (t *CountMode) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("count mode must be string")
	}
	mode := CountMode(str)
	if !mode.IsValid() {
		return errors.New("invalid count mode")
	}
	*t = mode
	return nil
}

type RoundStatus string

const (
	RoundStatusActive  RoundStatus = "Active"
	RoundStatusDeleted RoundStatus = "Deleted"
)

func (t RoundStatus) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(t))))
}

func (t *RoundStatus) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("round status must be string")
	}
	switch str {
	case "Active":
		*t = RoundStatusActive
	case "Deleted":
		*t = RoundStatusDeleted
	default:
		return errors.New("invalid round status")
	}
	return nil
}

// RoundState is derived from a round's status and release flag, never stored.
type RoundState string

const (
	RoundStateLocked   RoundState = "Locked"
	RoundStateReleased RoundState = "Released"
	RoundStateDeleted  RoundState = "Deleted"
)

func (t RoundState) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(t))))
}

func (t *RoundState) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("round state must be string")
	}
	switch str {
	case "Locked":
		*t = RoundStateLocked
	case "Released":
		*t = RoundStateReleased
	case "Deleted":
		*t = RoundStateDeleted
	default:
		return errors.New("invalid round state")
	}
	return nil
}

type AuditMovementKind string

const (
	AuditMovementReduce  AuditMovementKind = "REDUCE"
	AuditMovementInclude AuditMovementKind = "INCLUDE"
	AuditMovementCorrect AuditMovementKind = "CORRECT"
)

func (t AuditMovementKind) IsValid() bool {
	switch t {
	case AuditMovementReduce, AuditMovementInclude, AuditMovementCorrect:
		return true
	}
	return false
}

func (t *AuditMovementKind) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("movement kind must be string")
	}
	kind := AuditMovementKind(str)
	if !kind.IsValid() {
		return errors.New("invalid movement kind")
	}
	*t = kind
	return nil
}

func (t AuditMovementKind) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(t))))
}

func (t *AuditMovementKind) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("movement kind must be string")
	}
	kind := AuditMovementKind(str)
	if !kind.IsValid() {
		return errors.New("invalid movement kind")
	}
	*t = kind
	return nil
}

type AuditStatus string

const (
	AuditStatusActive AuditStatus = "Active"
	AuditStatusVoid   AuditStatus = "Void"
)

func (t AuditStatus) MarshalGQL(w io.Writer) {
	w.Write([]byte(strconv.Quote(string(t))))
}

func (t *AuditStatus) UnmarshalGQL(i interface{}) error {
	str, ok := i.(string)
	if !ok {
		return errors.New("audit status must be string")
	}
	switch str {
	case "Active":
		*t = AuditStatusActive
	case "Void":
		*t = AuditStatusVoid
	default:
		return errors.New("invalid audit status")
	}
	return nil
}

type AuditOutboxAction string

const (
	AuditOutboxActionCreate AuditOutboxAction = "C"
	AuditOutboxActionVoid   AuditOutboxAction = "V"
)

// Outbox publish statuses for AuditOutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
