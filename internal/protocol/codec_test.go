package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

const testOfferSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:1\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

// TestDescriptionRoundTrip verifies that an encoded description, delivered
// either as JSON text or as an object, decodes to an equal value.
func TestDescriptionRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		desc Description
	}{
		{"offer", Description{Type: TypeOffer, SDP: testOfferSDP}},
		{"answer", Description{Type: TypeAnswer, SDP: testOfferSDP}},
		{"sdp with quotes and unicode", Description{Type: TypeOffer, SDP: "v=0\r\ns=\"通話\"\r\n"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			text, err := tc.desc.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			// As the hosting process sends it: a JSON string holding the JSON text.
			wrapped, _ := json.Marshal(text)
			got, err := DecodeDescription(wrapped)
			if err != nil {
				t.Fatalf("DecodeDescription(text) failed: %v", err)
			}
			if got != tc.desc {
				t.Errorf("text form: got %+v, want %+v", got, tc.desc)
			}

			got, err = DecodeDescription(json.RawMessage(text))
			if err != nil {
				t.Fatalf("DecodeDescription(object) failed: %v", err)
			}
			if got != tc.desc {
				t.Errorf("object form: got %+v, want %+v", got, tc.desc)
			}
		})
	}
}

func TestDecodeDescriptionErrors(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", ``, ErrEmptyPayload},
		{"null", `null`, ErrEmptyPayload},
		{"empty text", `""`, ErrEmptyPayload},
		{"unknown type", `{"type":"pranswer","sdp":"v=0"}`, ErrUnknownDescType},
		{"missing type", `{"sdp":"v=0"}`, ErrUnknownDescType},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeDescription(json.RawMessage(tc.raw))
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}

	if _, err := DecodeDescription(json.RawMessage(`"{not json"`)); err == nil {
		t.Error("expected an error for malformed JSON text")
	}
}

func TestDescriptionMedia(t *testing.T) {
	d := Description{Type: TypeOffer, SDP: testOfferSDP}
	kinds, err := d.Media()
	if err != nil {
		t.Fatalf("Media failed: %v", err)
	}
	if want := []string{"audio", "video"}; !reflect.DeepEqual(kinds, want) {
		t.Errorf("got %v, want %v", kinds, want)
	}

	if _, err := (Description{Type: TypeOffer, SDP: "garbage"}).Media(); err == nil {
		t.Error("expected a parse error for a malformed SDP body")
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	c := Candidate{
		Label:     1,
		ID:        "1",
		Candidate: "candidate:1 1 udp 2130706431 192.168.1.2 54321 typ host",
	}

	text, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		t.Fatalf("encoded candidate is not JSON: %v", err)
	}
	for _, key := range []string{"type", "label", "id", "candidate"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("encoded candidate is missing %q: %s", key, text)
		}
	}

	wrapped, _ := json.Marshal(text)
	got, err := DecodeCandidate(wrapped)
	if err != nil {
		t.Fatalf("DecodeCandidate failed: %v", err)
	}
	c.Type = TypeCandidate
	if got != c {
		t.Errorf("got %+v, want %+v", got, c)
	}
}

func TestDecodeCandidateRejectsOtherTypes(t *testing.T) {
	_, err := DecodeCandidate(json.RawMessage(`{"type":"offer","sdp":"v=0"}`))
	if !errors.Is(err, ErrNotCandidate) {
		t.Errorf("got %v, want ErrNotCandidate", err)
	}
}
