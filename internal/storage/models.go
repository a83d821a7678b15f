package storage

import (
	"strconv"
	"time"
)

// Token is one stored launch announcement. JSON keys are the ones the dashboard reads.
type Token struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ContractAddress string  `json:"ca"`
	Channel         string  `json:"channel"`
	Timestamp       float64 `json:"timestamp"`
	MarketCap       string  `json:"mcap"`
	Mentions        string  `json:"mentions"`
	TimeSinceLaunch string  `json:"time_since_open"`
}

// Time converts the stored epoch seconds back to a time.
func (t Token) Time() time.Time {
	sec := int64(t.Timestamp)
	nsec := int64((t.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// EpochSeconds renders a time the way tokens store it.
func EpochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// MessageID formats a transport message identifier as a token ID.
func MessageID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Outcome reports what a merge did.
type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeAlreadyPresent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeAlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// ArchivedToken is a Token as mirrored into PostgreSQL.
type ArchivedToken struct {
	Token
	Chain      string
	ArchivedAt time.Time
}
