package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"es-maker-bot/internal/market"

	"github.com/vmihailenco/msgpack/v5"
)

// Record is one journaled event. Exactly one of the payload pointers is
// set, discriminated by Kind.
type Record struct {
	Kind  string              `msgpack:"kind"`
	TMS   int64               `msgpack:"tms"`
	Tick  *market.TickEvent   `msgpack:"tick,omitempty"`
	Dom   *market.DomSnapshot `msgpack:"dom,omitempty"`
	Trade *market.TradeEvent  `msgpack:"trade,omitempty"`
}

const (
	KindTick  = "tick"
	KindDom   = "dom"
	KindTrade = "trade"

	maxRecordSize = 1 << 20
)

var errRecordTooLarge = errors.New("journal record too large")

// Writer appends length-prefixed msgpack records to a file. Used for
// offline replay and post-mortems; writes are buffered and best-effort.
type Writer struct {
	file *os.File
	buf  *bufio.Writer
}

func NewWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: file, buf: bufio.NewWriter(file)}, nil
}

func (w *Writer) Append(rec Record) error {
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return err
	}
	if len(payload) > maxRecordSize {
		return errRecordTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.buf.Write(header[:]); err != nil {
		return err
	}
	_, err = w.buf.Write(payload)
	return err
}

func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// Reader streams records back in append order.
type Reader struct {
	file *os.File
	buf  *bufio.Reader
}

func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: file, buf: bufio.NewReader(file)}, nil
}

// Next returns the next record, or io.EOF at the end of the journal.
func (r *Reader) Next() (Record, error) {
	var header [4]byte
	if _, err := io.ReadFull(r.buf, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxRecordSize {
		return Record{}, errRecordTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.buf, payload); err != nil {
		return Record{}, err
	}
	var rec Record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}
