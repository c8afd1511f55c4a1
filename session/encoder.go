package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/roleAuth/role"
)

const recordFormatV1 = 1

const maxSubjectLen = 1024

// ErrCorruptRecord is returned when a stored blob cannot be decoded.
var ErrCorruptRecord = errors.New("session: corrupt record")

// Encode serializes r. SessionID is not included.
func Encode(r *Record) ([]byte, error) {
	if len(r.Subject) == 0 || len(r.Subject) > maxSubjectLen {
		return nil, errors.New("session: subject length out of range")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 2 + len(r.Subject) + 1 + 8 + 8 + 8)

	buf.WriteByte(recordFormatV1)

	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(r.Subject)))
	buf.Write(n[:])
	buf.WriteString(r.Subject)

	buf.WriteByte(byte(r.ActiveRole))
	buf.Write(r.GrantedRoles.Encode())

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordFormatV1 {
		return nil, ErrCorruptRecord
	}

	var subjectLen uint16
	if err := binary.Read(reader, binary.BigEndian, &subjectLen); err != nil {
		return nil, ErrCorruptRecord
	}
	if subjectLen == 0 || subjectLen > maxSubjectLen {
		return nil, ErrCorruptRecord
	}
	subject := make([]byte, subjectLen)
	if _, err := io.ReadFull(reader, subject); err != nil {
		return nil, ErrCorruptRecord
	}

	activeByte, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	active := role.Role(activeByte)

	setBytes := make([]byte, 8)
	if _, err := io.ReadFull(reader, setBytes); err != nil {
		return nil, ErrCorruptRecord
	}
	granted, err := role.DecodeSet(setBytes)
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if !granted.Has(active) {
		return nil, ErrCorruptRecord
	}

	var created, expires int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, ErrCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, ErrCorruptRecord
	}
	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}

	return &Record{
		Subject:      string(subject),
		ActiveRole:   active,
		GrantedRoles: granted,
		CreatedAt:    time.UnixMilli(created).UTC(),
		ExpiresAt:    time.UnixMilli(expires).UTC(),
	}, nil
}
