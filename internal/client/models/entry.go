// Package models defines the entry types the CLI stores inside a vault
// record. A record payload is the JSON encoding of an Envelope; the vault
// itself treats it as an opaque string.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EntryType classifies an entry kind.
type EntryType string

const (
	EntryTypeNote       EntryType = "note"
	EntryTypeLogin      EntryType = "login"
	EntryTypeCreditCard EntryType = "credit_card"
)

var (
	ErrIncorrectMetadata = errors.New("metadata item must be name=value")
	ErrNotAnEnvelope     = errors.New("payload is not an entry envelope")
)

// Metadata is a simple key/value pair.
type Metadata struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func MetadataFromString(s []string) ([]Metadata, error) {
	data := make([]Metadata, len(s))
	for n, item := range s {
		parts := strings.Split(item, "=")
		if len(parts) != 2 {
			return nil, ErrIncorrectMetadata
		}
		data[n] = Metadata{Name: parts[0], Value: parts[1]}
	}
	return data, nil
}

type Overview struct {
	Type  EntryType `json:"type"`
	Title string    `json:"title"`
}

type Envelope struct {
	Type     EntryType       `json:"type"`
	Title    string          `json:"title"`
	Metadata []Metadata      `json:"metadata"`
	Details  json.RawMessage `json:"details"`
}

func Wrap[T any](t EntryType, title string, md []Metadata, v T) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Title: title, Metadata: md, Details: b}, nil
}

func (e Envelope) Unwrap() (any, error) {
	switch e.Type {
	case EntryTypeLogin:
		var v Login
		return v, json.Unmarshal(e.Details, &v)
	case EntryTypeNote:
		var v Note
		return v, json.Unmarshal(e.Details, &v)
	case EntryTypeCreditCard:
		var v CreditCard
		return v, json.Unmarshal(e.Details, &v)
	default:
		var m map[string]any
		if err := json.Unmarshal(e.Details, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

func (e Envelope) Overview() Overview {
	return Overview{Type: e.Type, Title: e.Title}
}

// Payload encodes the envelope as a record payload.
func (e Envelope) Payload() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(b), nil
}

// ParsePayload decodes a record payload. Payloads written by other tools
// that are not envelopes come back as ErrNotAnEnvelope so callers can show
// them raw.
func ParsePayload(payload string) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrNotAnEnvelope, err)
	}
	if e.Type == "" {
		return Envelope{}, ErrNotAnEnvelope
	}
	return e, nil
}

type TypedEntry interface {
	GetType() EntryType
}

// Login stores credentials.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
}

func (x Login) GetType() EntryType { return EntryTypeLogin }

// Note stores free-form text.
type Note struct {
	Text string `json:"text"`
}

func (x Note) GetType() EntryType { return EntryTypeNote }

// CreditCard stores payment card details.
type CreditCard struct {
	Number     string `json:"number"`
	Expiration string `json:"expiration"`
	CVV        string `json:"cvv"`
	Holder     string `json:"holder"`
}

func (x CreditCard) GetType() EntryType { return EntryTypeCreditCard }
