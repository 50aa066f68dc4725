// Package mysqlserver implements the MySQL 4.1+ wire protocol server
// (spec.md §4.8): packet framing, the mysql_native_password handshake,
// and the COM_QUERY command loop, driving the same internal/sqlparse +
// internal/exec engine internal/pgserver uses. Grounded on the client-
// side packet layout in go-sql-driver/mysql's packets.go
// (other_examples/465b58b8_shogo82148-mysql__packets.go.go), inverted
// for the server-speaks-first handshake direction.
package mysqlserver

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const maxPacketSize = 1<<24 - 1

// packetReader reads length-prefixed MySQL packets off a connection,
// tracking the sequence id the way a client driver's own readPacket
// does (mc.sequence), reassembling packets split across the 16MB
// boundary.
type packetReader struct {
	r   *bufio.Reader
	seq uint8
}

func newPacketReader(r io.Reader) *packetReader {
	return &packetReader{r: bufio.NewReader(r)}
}

func (pr *packetReader) read() ([]byte, error) {
	var payload []byte
	for {
		var hdr [4]byte
		if _, err := io.ReadFull(pr.r, hdr[:]); err != nil {
			return nil, err
		}
		length := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
		seq := hdr[3]
		if seq != pr.seq {
			return nil, fmt.Errorf("mysqlserver: packet sequence mismatch: want %d got %d", pr.seq, seq)
		}
		pr.seq++

		chunk := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(pr.r, chunk); err != nil {
				return nil, err
			}
		}
		payload = append(payload, chunk...)
		if length < maxPacketSize {
			return payload, nil
		}
	}
}

func (pr *packetReader) resetSeq() { pr.seq = 0 }

// packetWriter writes length-prefixed MySQL packets, splitting payloads
// longer than maxPacketSize the way a client driver's own writePacket
// does.
type packetWriter struct {
	w   *bufio.Writer
	seq uint8
}

func newPacketWriter(w io.Writer) *packetWriter {
	return &packetWriter{w: bufio.NewWriter(w)}
}

func (pw *packetWriter) resetSeq() { pw.seq = 0 }

func (pw *packetWriter) write(payload []byte) error {
	for {
		n := len(payload)
		if n > maxPacketSize {
			n = maxPacketSize
		}

		var hdr [4]byte
		hdr[0] = byte(n)
		hdr[1] = byte(n >> 8)
		hdr[2] = byte(n >> 16)
		hdr[3] = pw.seq
		pw.seq++
		if _, err := pw.w.Write(hdr[:]); err != nil {
			return err
		}
		if n > 0 {
			if _, err := pw.w.Write(payload[:n]); err != nil {
				return err
			}
		}
		payload = payload[n:]
		// A payload that is an exact multiple of maxPacketSize needs a
		// trailing zero-length packet so the reader can tell it apart
		// from a truncated one: the loop only stops after a short packet.
		if len(payload) == 0 && n < maxPacketSize {
			return pw.w.Flush()
		}
	}
}

// --- length-encoded integer/string helpers (MySQL client/server protocol basics) ---

func appendLengthEncodedInteger(buf []byte, n uint64) []byte {
	switch {
	case n <= 250:
		return append(buf, byte(n))
	case n <= 0xffff:
		return append(buf, 0xfc, byte(n), byte(n>>8))
	case n <= 0xffffff:
		return append(buf, 0xfd, byte(n), byte(n>>8), byte(n>>16))
	default:
		b := make([]byte, 9)
		b[0] = 0xfe
		binary.LittleEndian.PutUint64(b[1:], n)
		return append(buf, b...)
	}
}

func appendLengthEncodedString(buf []byte, s string) []byte {
	buf = appendLengthEncodedInteger(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendNullTerminatedString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0x00)
}

// readLengthEncodedInteger reads a length-encoded integer starting at
// data[pos], returning the value and the position just past it.
func readLengthEncodedInteger(data []byte, pos int) (n uint64, isNull bool, next int) {
	if pos >= len(data) {
		return 0, true, pos
	}
	switch data[pos] {
	case 0xfb:
		return 0, true, pos + 1
	case 0xfc:
		return uint64(binary.LittleEndian.Uint16(data[pos+1 : pos+3])), false, pos + 3
	case 0xfd:
		b := data[pos+1 : pos+4]
		return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16, false, pos + 4
	case 0xfe:
		return binary.LittleEndian.Uint64(data[pos+1 : pos+9]), false, pos + 9
	default:
		return uint64(data[pos]), false, pos + 1
	}
}

func readNullTerminatedString(data []byte, pos int) (s string, next int) {
	end := pos
	for end < len(data) && data[end] != 0x00 {
		end++
	}
	return string(data[pos:end]), end + 1
}

// --- generic response packets ---

const (
	iOK  byte = 0x00
	iEOF byte = 0xfe
	iERR byte = 0xff
)

func buildOKPacket(affectedRows, lastInsertID uint64, statusFlags uint16) []byte {
	buf := []byte{iOK}
	buf = appendLengthEncodedInteger(buf, affectedRows)
	buf = appendLengthEncodedInteger(buf, lastInsertID)
	buf = append(buf, byte(statusFlags), byte(statusFlags>>8))
	buf = append(buf, 0x00, 0x00) // warning count
	return buf
}

func buildErrPacket(code uint16, sqlState, message string) []byte {
	buf := []byte{iERR}
	buf = append(buf, byte(code), byte(code>>8))
	buf = append(buf, '#')
	buf = append(buf, sqlState...)
	buf = append(buf, message...)
	return buf
}
