package redisstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/teeline/authcore/store"
)

const (
	kindUser    byte = 'U'
	kindRefresh byte = 'R'
	kindReset   byte = 'C'

	recordFormatV1 byte = 1
)

var errCorruptRecord = errors.New("redisstore: corrupt record")

type recordWriter struct {
	buf bytes.Buffer
	err error
}

func newRecordWriter(kind byte) *recordWriter {
	w := &recordWriter{}
	w.buf.WriteByte(kind)
	w.buf.WriteByte(recordFormatV1)
	return w
}

func (w *recordWriter) str(s string) {
	if w.err != nil {
		return
	}
	if len(s) > 65535 {
		w.err = errors.New("redisstore: field too long")
		return
	}
	w.err = binary.Write(&w.buf, binary.BigEndian, uint16(len(s)))
	w.buf.WriteString(s)
}

func (w *recordWriter) time(t time.Time) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(&w.buf, binary.BigEndian, t.UnixNano())
}

func (w *recordWriter) optTime(t *time.Time) {
	if t == nil {
		w.flag(false)
		return
	}
	w.flag(true)
	w.time(*t)
}

func (w *recordWriter) flag(b bool) {
	if b {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *recordWriter) u32(v uint32) {
	if w.err != nil {
		return
	}
	w.err = binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *recordWriter) bytes() ([]byte, error) {
	return w.buf.Bytes(), w.err
}

type recordReader struct {
	r   *bytes.Reader
	err error
}

func newRecordReader(kind byte, data []byte) *recordReader {
	rd := &recordReader{r: bytes.NewReader(data)}
	got, err := rd.r.ReadByte()
	if err != nil || got != kind {
		rd.err = errCorruptRecord
		return rd
	}
	version, err := rd.r.ReadByte()
	if err != nil || version != recordFormatV1 {
		rd.err = fmt.Errorf("%w: unsupported format version", errCorruptRecord)
	}
	return rd
}

func (rd *recordReader) str() string {
	if rd.err != nil {
		return ""
	}
	var n uint16
	if rd.err = binary.Read(rd.r, binary.BigEndian, &n); rd.err != nil {
		return ""
	}
	raw := make([]byte, n)
	if _, rd.err = io.ReadFull(rd.r, raw); rd.err != nil {
		return ""
	}
	return string(raw)
}

func (rd *recordReader) time() time.Time {
	if rd.err != nil {
		return time.Time{}
	}
	var ns int64
	if rd.err = binary.Read(rd.r, binary.BigEndian, &ns); rd.err != nil {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func (rd *recordReader) optTime() *time.Time {
	if !rd.flag() || rd.err != nil {
		return nil
	}
	t := rd.time()
	if rd.err != nil {
		return nil
	}
	return &t
}

func (rd *recordReader) flag() bool {
	if rd.err != nil {
		return false
	}
	b, err := rd.r.ReadByte()
	if err != nil {
		rd.err = err
		return false
	}
	return b == 1
}

func (rd *recordReader) u32() uint32 {
	if rd.err != nil {
		return 0
	}
	var v uint32
	rd.err = binary.Read(rd.r, binary.BigEndian, &v)
	return v
}

func (rd *recordReader) done() error {
	if rd.err != nil {
		if errors.Is(rd.err, errCorruptRecord) {
			return rd.err
		}
		return fmt.Errorf("%w: %v", errCorruptRecord, rd.err)
	}
	if rd.r.Len() != 0 {
		return fmt.Errorf("%w: trailing bytes", errCorruptRecord)
	}
	return nil
}

func encodeUser(u store.User) ([]byte, error) {
	w := newRecordWriter(kindUser)
	w.str(u.ID)
	w.str(u.Email)
	w.str(u.CredentialHash)
	w.str(u.Nickname)
	w.flag(u.IsActive)
	w.time(u.CreatedAt)
	return w.bytes()
}

func decodeUser(data []byte) (store.User, error) {
	rd := newRecordReader(kindUser, data)
	u := store.User{
		ID:             rd.str(),
		Email:          rd.str(),
		CredentialHash: rd.str(),
		Nickname:       rd.str(),
		IsActive:       rd.flag(),
		CreatedAt:      rd.time(),
	}
	return u, rd.done()
}

func encodeRefresh(r store.RefreshTokenRecord) ([]byte, error) {
	w := newRecordWriter(kindRefresh)
	w.str(r.UserID)
	w.str(r.TokenHash)
	w.time(r.IssuedAt)
	w.time(r.ExpiresAt)
	w.optTime(r.RevokedAt)
	return w.bytes()
}

func decodeRefresh(data []byte) (store.RefreshTokenRecord, error) {
	rd := newRecordReader(kindRefresh, data)
	r := store.RefreshTokenRecord{
		UserID:    rd.str(),
		TokenHash: rd.str(),
		IssuedAt:  rd.time(),
		ExpiresAt: rd.time(),
		RevokedAt: rd.optTime(),
	}
	return r, rd.done()
}

func encodeResetCode(c store.PasswordResetCode) ([]byte, error) {
	w := newRecordWriter(kindReset)
	w.str(c.ID)
	w.str(c.UserID)
	w.str(c.CodeHash)
	w.time(c.CreatedAt)
	w.time(c.ExpiresAt)
	w.flag(c.Consumed)
	w.optTime(c.VerifiedAt)
	w.u32(uint32(c.Attempts))
	return w.bytes()
}

func decodeResetCode(data []byte) (store.PasswordResetCode, error) {
	rd := newRecordReader(kindReset, data)
	c := store.PasswordResetCode{
		ID:         rd.str(),
		UserID:     rd.str(),
		CodeHash:   rd.str(),
		CreatedAt:  rd.time(),
		ExpiresAt:  rd.time(),
		Consumed:   rd.flag(),
		VerifiedAt: rd.optTime(),
		Attempts:   int(rd.u32()),
	}
	return c, rd.done()
}
