package libmemc

import (
	"bytes"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

var (
	_CRLFBytes          = []byte("\r\n")
	_GetBytes           = []byte("get ")
	_ValueBytes         = []byte("VALUE ")
	_EndBytes           = []byte("END")
	_StoredCRLFBytes    = []byte("STORED\r\n")
	_NotStoredCRLFBytes = []byte("NOT_STORED\r\n")
)

// textVerbs carries the storage command words with their trailing space.
var textVerbs = [...][]byte{
	Add:     []byte("add "),
	Set:     []byte("set "),
	Replace: []byte("replace "),
}

// tailLen is the fixed response tail after a fetched payload: the payload
// CRLF plus the END terminator line.
const tailLen = len("\r\nEND\r\n")

// textCodec speaks the ASCII line protocol.
type textCodec struct{}

func (textCodec) store(cn *conn, cmd StoreCommand, item *Item) error {
	hdr := make([]byte, 0, 48)
	hdr = append(hdr, ' ')
	hdr = strconv.AppendUint(hdr, uint64(item.Flags), 10)
	hdr = append(hdr, ' ')
	hdr = strconv.AppendUint(hdr, uint64(item.Expiration), 10)
	hdr = append(hdr, ' ')
	hdr = strconv.AppendUint(hdr, uint64(len(item.Data)), 10)
	hdr = append(hdr, _CRLFBytes...)

	err := cn.sendAll(net.Buffers{textVerbs[cmd], item.Key, hdr, item.Data, _CRLFBytes})
	if err != nil {
		return err
	}

	n, err := cn.receiveLine()
	if err != nil {
		return err
	}
	line, _, err := cn.completeLine(n)
	if err != nil {
		return err
	}
	switch {
	case bytes.Equal(line, _StoredCRLFBytes):
		return nil
	case bytes.Equal(line, _NotStoredCRLFBytes):
		return ErrNotStored
	}
	return cn.fail(errors.Wrapf(ErrMalformedResponse, "%s: unexpected store reply %q", cn.peername, line))
}

func (textCodec) fetch(cn *conn, item *Item) error {
	if err := cn.sendAll(net.Buffers{_GetBytes, item.Key, _CRLFBytes}); err != nil {
		return err
	}

	n, err := cn.receiveLine()
	if err != nil {
		return err
	}
	var line []byte
	line, n, err = cn.completeLine(n)
	if err != nil {
		return err
	}

	switch {
	case bytes.HasPrefix(line, _ValueBytes):
	case bytes.HasPrefix(line, _EndBytes):
		return ErrCacheMiss
	default:
		return cn.fail(errors.Wrapf(ErrMalformedResponse, "%s: unexpected fetch reply %q", cn.peername, line))
	}

	flags, size, perr := parseValueHeader(line[len(_ValueBytes):])
	if perr != nil {
		return cn.fail(errors.Wrapf(ErrMalformedResponse, "%s: value header: %v", cn.peername, perr))
	}

	// The payload follows the header line in the scratch buffer; part of
	// it has usually been read opportunistically along with the line.
	payloadStart := len(line)
	want := size + tailLen
	if payloadStart+want > len(cn.scratch) {
		return cn.fail(errors.Wrapf(ErrMalformedResponse,
			"%s: %d byte value exceeds the receive buffer", cn.peername, size))
	}
	if buffered := n - payloadStart; buffered < want {
		if err := cn.receiveFull(cn.scratch[n : payloadStart+want]); err != nil {
			return err
		}
	}

	if cap(item.Data) < size {
		item.Data = make([]byte, size)
	} else {
		item.Data = item.Data[:size]
	}
	copy(item.Data, cn.scratch[payloadStart:payloadStart+size])
	item.Flags = flags
	return nil
}

// parseValueHeader parses the "<flags> <byte-count>\r\n" remainder of a
// VALUE line. The shape is exact: two decimal fields, one space, CRLF.
func parseValueHeader(rest []byte) (flags uint32, size int, err error) {
	sp := bytes.IndexByte(rest, ' ')
	if sp <= 0 {
		return 0, 0, errors.New("missing field separator")
	}
	f, err := strconv.ParseUint(string(rest[:sp]), 10, 32)
	if err != nil {
		return 0, 0, errors.New("bad flags field")
	}
	rest = rest[sp+1:]
	if len(rest) < len(_CRLFBytes) || !bytes.Equal(rest[len(rest)-len(_CRLFBytes):], _CRLFBytes) {
		return 0, 0, errors.New("missing terminator")
	}
	s, err := strconv.ParseUint(string(rest[:len(rest)-len(_CRLFBytes)]), 10, 31)
	if err != nil {
		return 0, 0, errors.New("bad byte count")
	}
	return uint32(f), int(s), nil
}
