package fecwire

import (
	"github.com/francoispqt/gojay"
	"github.com/pkg/errors"
)

// jsonFrame adapts Frame to gojay. Keys follow the original QS1 layout:
// v, sid, len, K, cs, i, r, p, x plus s (scheme), d (degree) and h (hash).
type jsonFrame struct {
	f *Frame
}

func (j *jsonFrame) MarshalJSONObject(enc *gojay.Encoder) {
	f := j.f
	enc.IntKey("v", f.Version)
	enc.IntKeyOmitEmpty("s", int(f.Scheme))
	enc.StringKey("sid", f.SessionID)
	enc.IntKey("len", f.TotalLen)
	enc.IntKey("K", f.K)
	enc.IntKey("cs", f.ChunkSize)
	enc.Uint32Key("i", f.Index)
	enc.Uint32Key("r", f.FECSeed)
	enc.IntKey("d", f.Degree)
	enc.StringKey("p", b64.EncodeToString(f.Payload))
	enc.StringKey("x", b64.EncodeToString(f.Salt))
	if len(f.Hash) > 0 {
		enc.StringKey("h", b64.EncodeToString(f.Hash))
	}
}

func (j *jsonFrame) IsNil() bool { return j.f == nil }

func (j *jsonFrame) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	f := j.f
	switch key {
	case "v":
		return dec.Int(&f.Version)
	case "s":
		var s int
		if err := dec.Int(&s); err != nil {
			return err
		}
		if s < 0 || s > int(SchemeRaptorQ) {
			return errors.Errorf("scheme %d", s)
		}
		f.Scheme = Scheme(s)
	case "sid":
		return dec.String(&f.SessionID)
	case "len":
		return dec.Int(&f.TotalLen)
	case "K":
		return dec.Int(&f.K)
	case "cs":
		return dec.Int(&f.ChunkSize)
	case "i":
		return dec.Uint32(&f.Index)
	case "r":
		return dec.Uint32(&f.FECSeed)
	case "d":
		return dec.Int(&f.Degree)
	case "p":
		return decodeB64(dec, &f.Payload)
	case "x":
		return decodeB64(dec, &f.Salt)
	case "h":
		return decodeB64(dec, &f.Hash)
	}
	return nil
}

// NKeys returns 0 so every key is visited.
func (j *jsonFrame) NKeys() int { return 0 }

func decodeB64(dec *gojay.Decoder, dst *[]byte) error {
	var s string
	if err := dec.String(&s); err != nil {
		return err
	}
	b, err := b64.DecodeString(s)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func marshalJSON(f *Frame) ([]byte, error) {
	return gojay.MarshalJSONObject(&jsonFrame{f: f})
}

func unmarshalJSON(b []byte) (*Frame, error) {
	j := &jsonFrame{f: &Frame{}}
	if err := gojay.UnmarshalJSONObject(b, j); err != nil {
		return nil, err
	}
	return j.f, nil
}
