package fecwire

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the QS2 binary record.
const (
	fieldVersion   protowire.Number = 1
	fieldScheme    protowire.Number = 2
	fieldSessionID protowire.Number = 3
	fieldTotalLen  protowire.Number = 4
	fieldK         protowire.Number = 5
	fieldChunkSize protowire.Number = 6
	fieldIndex     protowire.Number = 7
	fieldFECSeed   protowire.Number = 8
	fieldDegree    protowire.Number = 9
	fieldPayload   protowire.Number = 10
	fieldSalt      protowire.Number = 11
	fieldHash      protowire.Number = 12
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendBinary(b []byte, f *Frame) []byte {
	b = appendVarintField(b, fieldVersion, uint64(f.Version))
	if f.Scheme != SchemeLT {
		b = appendVarintField(b, fieldScheme, uint64(f.Scheme))
	}
	b = protowire.AppendTag(b, fieldSessionID, protowire.BytesType)
	b = protowire.AppendString(b, f.SessionID)
	b = appendVarintField(b, fieldTotalLen, uint64(f.TotalLen))
	b = appendVarintField(b, fieldK, uint64(f.K))
	b = appendVarintField(b, fieldChunkSize, uint64(f.ChunkSize))
	b = appendVarintField(b, fieldIndex, uint64(f.Index))
	b = protowire.AppendTag(b, fieldFECSeed, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, f.FECSeed)
	b = appendVarintField(b, fieldDegree, uint64(f.Degree))
	b = appendBytesField(b, fieldPayload, f.Payload)
	b = appendBytesField(b, fieldSalt, f.Salt)
	if len(f.Hash) > 0 {
		b = appendBytesField(b, fieldHash, f.Hash)
	}
	return b
}

func parseBinary(b []byte) (*Frame, error) {
	f := &Frame{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			if v > 1<<32-1 {
				return nil, errors.Errorf("field %d overflows", num)
			}
			switch num {
			case fieldVersion:
				f.Version = int(v)
			case fieldScheme:
				if v > uint64(SchemeRaptorQ) {
					return nil, errors.Errorf("scheme %d", v)
				}
				f.Scheme = Scheme(v)
			case fieldTotalLen:
				f.TotalLen = int(v)
			case fieldK:
				f.K = int(v)
			case fieldChunkSize:
				f.ChunkSize = int(v)
			case fieldIndex:
				f.Index = uint32(v)
			case fieldDegree:
				f.Degree = int(v)
			}
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldFECSeed {
				f.FECSeed = v
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldSessionID:
				f.SessionID = string(v)
			case fieldPayload:
				f.Payload = append([]byte(nil), v...)
			case fieldSalt:
				f.Salt = append([]byte(nil), v...)
			case fieldHash:
				f.Hash = append([]byte(nil), v...)
			}
		default:
			// unknown fields are skipped for forward compatibility
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return f, nil
}
