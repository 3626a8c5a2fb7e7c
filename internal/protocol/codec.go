package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
)

// Description types.
const (
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

var (
	ErrEmptyPayload    = errors.New("empty payload")
	ErrUnknownDescType = errors.New("unknown description type")
	ErrNotCandidate    = errors.New("payload is not a candidate")
)

// Description is a local or remote session description as it travels over
// the bridge: {"type":"offer"|"answer","sdp":"..."}.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is one connectivity candidate as it travels over the bridge.
// Label is the m-line index and ID the media id it belongs to.
type Candidate struct {
	Type      string `json:"type"`
	Label     uint16 `json:"label"`
	ID        string `json:"id"`
	Candidate string `json:"candidate"`
}

// ---------------------------------------------------------------------------
// Description
// ---------------------------------------------------------------------------

// Encode serializes d to the JSON text carried in an outbound payload.
func (d Description) Encode() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode description: %w", err)
	}
	return string(data), nil
}

// Parse checks that the SDP body is well formed and returns it parsed.
func (d Description) Parse() (*sdp.SessionDescription, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(d.SDP)); err != nil {
		return nil, fmt.Errorf("parse %s sdp: %w", d.Type, err)
	}
	return &parsed, nil
}

// Media returns the media kinds ("audio", "video", ...) of each m-line, in order.
func (d Description) Media() ([]string, error) {
	parsed, err := d.Parse()
	if err != nil {
		return nil, err
	}
	kinds := make([]string, 0, len(parsed.MediaDescriptions))
	for _, m := range parsed.MediaDescriptions {
		kinds = append(kinds, m.MediaName.Media)
	}
	return kinds, nil
}

// DecodeDescription decodes an inbound description payload. The payload may
// be the JSON text of the description (the usual form) or the object itself.
func DecodeDescription(raw json.RawMessage) (Description, error) {
	data, err := unwrapText(raw)
	if err != nil {
		return Description{}, err
	}

	var d Description
	if err := json.Unmarshal(data, &d); err != nil {
		return Description{}, fmt.Errorf("decode description: %w", err)
	}
	if d.Type != TypeOffer && d.Type != TypeAnswer {
		return Description{}, fmt.Errorf("%w: %q", ErrUnknownDescType, d.Type)
	}
	return d, nil
}

// ---------------------------------------------------------------------------
// Candidate
// ---------------------------------------------------------------------------

// Encode serializes c to JSON text, stamping the "candidate" type.
func (c Candidate) Encode() (string, error) {
	c.Type = TypeCandidate
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode candidate: %w", err)
	}
	return string(data), nil
}

// DecodeCandidate decodes an inbound candidate payload, text or object form.
func DecodeCandidate(raw json.RawMessage) (Candidate, error) {
	data, err := unwrapText(raw)
	if err != nil {
		return Candidate{}, err
	}

	var c Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return Candidate{}, fmt.Errorf("decode candidate: %w", err)
	}
	if c.Type != TypeCandidate {
		return Candidate{}, fmt.Errorf("%w: type %q", ErrNotCandidate, c.Type)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// DecodeJSON decodes a structured command payload into v, text or object form.
func DecodeJSON(raw json.RawMessage, v any) error {
	data, err := unwrapText(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// unwrapText returns the JSON document inside raw. If raw is a JSON string,
// its contents are returned; otherwise raw itself.
func unwrapText(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrEmptyPayload
	}
	if raw[0] != '"' {
		return raw, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("decode payload text: %w", err)
	}
	if text == "" {
		return nil, ErrEmptyPayload
	}
	return []byte(text), nil
}
