package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrorKind classifies why a lookup or write did not produce a usable entry.
type ErrorKind string

const (
	KindAbsent  ErrorKind = "absent"
	KindExpired ErrorKind = "expired"
	KindDecode  ErrorKind = "decode"
	KindEncode  ErrorKind = "encode"
	KindStore   ErrorKind = "store"
)

// CacheError is the internal failure type. It never crosses the Get/Set boundary.
type CacheError struct {
	Kind ErrorKind
	Key  string
	Err  error
}

func (e *CacheError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cache %s: %s", e.Kind, e.Key)
	}
	return fmt.Sprintf("cache %s: %s: %v", e.Kind, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// result carries either a decoded entry or the reason there is none.
type result[T any] struct {
	value     T
	createdAt time.Time
	err       *CacheError
}

func (r result[T]) ok() bool { return r.err == nil }

// persistedEntry is the on-store shape: {"createdAt": ..., "payload": ...}.
type persistedEntry struct {
	CreatedAt *timestamp      `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

var errMalformedEntry = errors.New("entry is missing createdAt or payload")

func encodeEntry[T any](createdAt time.Time, payload T) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ts := timestamp(createdAt)
	return json.Marshal(persistedEntry{CreatedAt: &ts, Payload: raw})
}

// decodeHeader parses the envelope without touching the payload.
func decodeHeader(data []byte) (persistedEntry, error) {
	var e persistedEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return e, err
	}
	if e.CreatedAt == nil || len(e.Payload) == 0 {
		return e, errMalformedEntry
	}
	return e, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// timestamp accepts epoch milliseconds (number or numeric string) or an ISO-8601
// string, and is written back as epoch milliseconds.
type timestamp time.Time

func (t timestamp) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, time.Time(t).UnixMilli(), 10), nil
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return errMalformedEntry
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*t = timestamp(parsed)
			return nil
		}
		ms, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("unrecognized createdAt %q", s)
		}
		*t = timestamp(time.UnixMilli(int64(ms)))
		return nil
	}

	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("unrecognized createdAt %s", b)
	}
	*t = timestamp(time.UnixMilli(int64(ms)))
	return nil
}
