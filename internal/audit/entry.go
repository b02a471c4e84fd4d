package audit

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// sealEncoding memakai Core Deterministic Encoding: kunci map terurut dan
// data logis yang sama selalu menghasilkan byte yang sama.
var sealEncoding = mustSealEncoding()

func mustSealEncoding() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("audit: seal encoder: " + err.Error())
	}
	return mode
}

// ErrTampered menandakan seal entri tidak cocok dengan isinya.
var ErrTampered = errors.New("audit: entry seal mismatch")

// Entry mewakili satu catatan audit yang tidak dapat diubah.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	ActorID    string          `json:"actor_id"`
	ActorRoles []string        `json:"actor_roles"`
	Action     string          `json:"action"`
	Module     string          `json:"module"`
	RecordID   string          `json:"record_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	At         time.Time       `json:"at"`
	IP         string          `json:"ip,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Seal       string          `json:"seal"`
}

// Sealed mengisi ID dan waktu bila kosong lalu menghitung seal. Waktu
// dipotong ke presisi penyimpanan lebih dulu.
func (e Entry) Sealed(now time.Time) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = now
	}
	e.At = e.At.UTC().Truncate(time.Microsecond)
	e.ActorRoles = append([]string{}, e.ActorRoles...)
	e.Seal = e.digest()
	return e
}

// Verify menghitung ulang seal dan mengembalikan ErrTampered bila berbeda.
func (e Entry) Verify() error {
	if e.Seal == "" || e.Seal != e.digest() {
		return ErrTampered
	}
	return nil
}

func (e Entry) digest() string {
	var buf bytes.Buffer
	fields := []string{
		e.ID.String(),
		e.ActorID,
		strings.Join(e.ActorRoles, ","),
		e.Action,
		e.Module,
		e.RecordID,
		canonicalJSON(e.Before),
		canonicalJSON(e.After),
		e.At.UTC().Format(time.RFC3339Nano),
		e.IP,
		e.UserAgent,
		e.RequestID,
	}
	var size [8]byte
	for _, field := range fields {
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		buf.Write(size[:])
		buf.WriteString(field)
	}
	sum := blake2b.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// canonicalJSON menyeragamkan snapshot sebelum di-hash sehingga urutan kunci
// dan spasi yang diubah oleh penyimpanan tidak mengubah seal.
func canonicalJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return string(raw)
	}
	encoded, err := sealEncoding.Marshal(value)
	if err != nil {
		return string(raw)
	}
	return string(encoded)
}
