package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RecordDelimiter separates the expiry timestamp from the owner token in a
// stored lock record. Owner tokens are UUIDs and never contain it.
const RecordDelimiter = "|"

// Record is the decoded value stored under a lock key.
type Record struct {
	ExpireAt time.Time
	Owner    string
}

// Expired reports whether the lease has elapsed at now, an expiry equal to
// now counts as elapsed.
func (r Record) Expired(now time.Time) bool {
	return r.ExpireAt.UnixMilli() <= now.UnixMilli()
}

func (r Record) OwnedBy(owner string) bool {
	return owner != "" && r.Owner == owner
}

func (r Record) String() string {
	return EncodeRecord(r.ExpireAt, r.Owner)
}

// EncodeRecord renders a record as "<expireAtEpochMillis>|<owner>".
func EncodeRecord(expireAt time.Time, owner string) string {
	return strconv.FormatInt(expireAt.UnixMilli(), 10) + RecordDelimiter + owner
}

// DecodeRecord parses a raw store value. Values that do not carry both a
// numeric expiry and a non-empty owner yield ErrMalformedRecord.
func DecodeRecord(raw string) (Record, error) {
	expireAt, owner, found := strings.Cut(raw, RecordDelimiter)
	if !found || owner == "" {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedRecord, raw)
	}
	millis, err := strconv.ParseInt(expireAt, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad expiry %q", ErrMalformedRecord, expireAt)
	}
	return Record{ExpireAt: time.UnixMilli(millis), Owner: owner}, nil
}
