// Package persistence implements optional point-in-time snapshots of the
// keyspace. The format is a flat sequence of typed records; versions and
// access markers are deliberately not persisted, so a restored key starts a
// fresh version history.
package persistence

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/eternalApril/firefly/internal/storage"
	"go.uber.org/zap"
)

// fileMagic identifies the snapshot format version.
const fileMagic = "FIREFLY1"

var errUnknownType = errors.New("snapshot: unknown payload type")

// Snapshotter saves and loads the keyspace at a configured path.
type Snapshotter struct {
	filename string
	logger   *zap.Logger
}

func NewSnapshotter(filename string, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{
		filename: filename,
		logger:   logger,
	}
}

// Save writes a consistent snapshot atomically via a temp file and rename.
func (s *Snapshotter) Save(ks *storage.Keyspace) error {
	start := time.Now()
	tmpFile := s.filename + ".tmp"

	f, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 1<<20)

	if _, err := w.WriteString(fileMagic); err != nil {
		return err
	}

	var writeErr error
	keys := 0
	ks.ForEach(func(key string, t storage.DataType, v any, expireAt int64) bool {
		if writeErr = writeRecord(w, key, t, v, expireAt); writeErr != nil {
			return false
		}
		keys++
		return true
	})
	if writeErr != nil {
		return writeErr
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	f.Close()

	if err := os.Rename(tmpFile, s.filename); err != nil {
		return err
	}

	s.logger.Info("snapshot saved",
		zap.String("file", s.filename),
		zap.Int("keys", keys),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Load restores a snapshot into the keyspace via Put. A missing file is not
// an error; a record the keyspace rejects (for example under a tight memory
// ceiling) is logged and skipped.
func (s *Snapshotter) Load(ks *storage.Keyspace) error {
	f, err := os.Open(s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return err
	}
	if string(magic) != fileMagic {
		s.logger.Warn("snapshot header mismatch, skipping load", zap.ByteString("header", magic))
		return nil
	}

	start := time.Now()
	keys := 0
	for {
		key, t, v, expireAt, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if putErr := ks.Put(key, t, v, expireAt); putErr != nil {
			s.logger.Warn("snapshot record rejected", zap.String("key", key), zap.Error(putErr))
			continue
		}
		keys++
	}

	s.logger.Info("snapshot loaded",
		zap.Int("keys", keys),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Record layout: type byte, key, expireAt int64, then the typed payload.
// All lengths are uint32, all integers little-endian (matching the rest of
// the on-disk formats in this codebase).

func writeRecord(w *bufio.Writer, key string, t storage.DataType, v any, expireAt int64) error {
	if err := w.WriteByte(byte(t)); err != nil {
		return err
	}
	if err := writeString(w, key); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, expireAt); err != nil {
		return err
	}

	switch t {
	case storage.TypeString:
		s, _ := v.(string)
		return writeString(w, s)

	case storage.TypeHash:
		m, _ := v.(map[string]string)
		if err := writeCount(w, len(m)); err != nil {
			return err
		}
		for f, val := range m {
			if err := writeString(w, f); err != nil {
				return err
			}
			if err := writeString(w, val); err != nil {
				return err
			}
		}
		return nil

	case storage.TypeList:
		l, _ := v.([]string)
		if err := writeCount(w, len(l)); err != nil {
			return err
		}
		for _, item := range l {
			if err := writeString(w, item); err != nil {
				return err
			}
		}
		return nil

	case storage.TypeSet:
		m, _ := v.(map[string]struct{})
		if err := writeCount(w, len(m)); err != nil {
			return err
		}
		for member := range m {
			if err := writeString(w, member); err != nil {
				return err
			}
		}
		return nil

	case storage.TypeZSet:
		m, _ := v.(map[string]float64)
		if err := writeCount(w, len(m)); err != nil {
			return err
		}
		for member, score := range m {
			if err := writeString(w, member); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, math.Float64bits(score)); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: %d", errUnknownType, t)
	}
}

func readRecord(r *bufio.Reader) (key string, t storage.DataType, v any, expireAt int64, err error) {
	tb, err := r.ReadByte()
	if err != nil {
		return "", 0, nil, 0, err
	}
	t = storage.DataType(tb)

	if key, err = readString(r); err != nil {
		return "", 0, nil, 0, unexpectedEOF(err)
	}
	if err = binary.Read(r, binary.LittleEndian, &expireAt); err != nil {
		return "", 0, nil, 0, unexpectedEOF(err)
	}

	switch t {
	case storage.TypeString:
		s, err := readString(r)
		if err != nil {
			return "", 0, nil, 0, unexpectedEOF(err)
		}
		v = s

	case storage.TypeHash:
		n, err := readCount(r)
		if err != nil {
			return "", 0, nil, 0, unexpectedEOF(err)
		}
		m := make(map[string]string, n)
		for i := 0; i < n; i++ {
			f, err := readString(r)
			if err != nil {
				return "", 0, nil, 0, unexpectedEOF(err)
			}
			val, err := readString(r)
			if err != nil {
				return "", 0, nil, 0, unexpectedEOF(err)
			}
			m[f] = val
		}
		v = m

	case storage.TypeList:
		n, err := readCount(r)
		if err != nil {
			return "", 0, nil, 0, unexpectedEOF(err)
		}
		l := make([]string, 0, n)
		for i := 0; i < n; i++ {
			item, err := readString(r)
			if err != nil {
				return "", 0, nil, 0, unexpectedEOF(err)
			}
			l = append(l, item)
		}
		v = l

	case storage.TypeSet:
		n, err := readCount(r)
		if err != nil {
			return "", 0, nil, 0, unexpectedEOF(err)
		}
		m := make(map[string]struct{}, n)
		for i := 0; i < n; i++ {
			member, err := readString(r)
			if err != nil {
				return "", 0, nil, 0, unexpectedEOF(err)
			}
			m[member] = struct{}{}
		}
		v = m

	case storage.TypeZSet:
		n, err := readCount(r)
		if err != nil {
			return "", 0, nil, 0, unexpectedEOF(err)
		}
		m := make(map[string]float64, n)
		for i := 0; i < n; i++ {
			member, err := readString(r)
			if err != nil {
				return "", 0, nil, 0, unexpectedEOF(err)
			}
			var bits uint64
			if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
				return "", 0, nil, 0, unexpectedEOF(err)
			}
			m[member] = math.Float64frombits(bits)
		}
		v = m

	default:
		return "", 0, nil, 0, fmt.Errorf("%w: %d", errUnknownType, tb)
	}

	return key, t, v, expireAt, nil
}

func writeString(w *bufio.Writer, s string) error {
	if err := writeCount(w, len(s)); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readCount(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeCount(w *bufio.Writer, n int) error {
	return binary.Write(w, binary.LittleEndian, uint32(n))
}

func readCount(r *bufio.Reader) (int, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// unexpectedEOF maps a mid-record EOF onto ErrUnexpectedEOF so a truncated
// file is distinguishable from a clean end of stream.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
