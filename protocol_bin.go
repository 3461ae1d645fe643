package libmemc

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
)

// Binary protocol framing. Every frame starts with a fixed 24-byte
// header; all integer fields are big-endian on the wire:
//
//	offset 0      magic: 0x80 request, 0x81 response
//	offset 1      opcode
//	offset 2-3    key length
//	offset 4      extras length
//	offset 5      data type, always raw
//	offset 6-7    reserved on requests, status on responses
//	offset 8-11   total body length (extras + key + payload)
//	offset 12-15  opaque, echoed back by the server (unused, zero)
//	offset 16-23  cas token
const (
	binHeaderSize  = 24
	binStoreExtras = 8

	binMagicRequest  = 0x80
	binMagicResponse = 0x81

	binOpGet     = 0x00
	binOpSet     = 0x01
	binOpAdd     = 0x02
	binOpReplace = 0x03
)

// Response status codes, per the published binary protocol.
const (
	binStatusOK          = 0x0000
	binStatusKeyNotFound = 0x0001
	binStatusKeyExists   = 0x0002
	binStatusNotStored   = 0x0005
)

// binOpcodes maps the storage commands onto wire opcodes.
var binOpcodes = [...]byte{
	Add:     binOpAdd,
	Set:     binOpSet,
	Replace: binOpReplace,
}

// binCodec speaks the framed binary protocol.
type binCodec struct{}

func (binCodec) store(cn *conn, cmd StoreCommand, item *Item) error {
	// Header and store extras share one contiguous range: flags and
	// expiration sit at offsets 24-31, directly after the header. The
	// flags field is never propagated to binary stores; offsets 24-27
	// stay zero on the wire.
	var hdr [binHeaderSize + binStoreExtras]byte
	hdr[0] = binMagicRequest
	hdr[1] = binOpcodes[cmd]
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(item.Key)))
	hdr[4] = binStoreExtras
	binary.BigEndian.PutUint32(hdr[8:12], uint32(binStoreExtras+len(item.Key)+len(item.Data)))
	binary.BigEndian.PutUint64(hdr[16:24], item.CAS)
	binary.BigEndian.PutUint32(hdr[28:32], item.Expiration)

	if err := cn.sendAll(net.Buffers{hdr[:], item.Key, item.Data}); err != nil {
		return err
	}
	return decodeBinStoreResponse(cn)
}

func decodeBinStoreResponse(cn *conn) error {
	var hdr [binHeaderSize]byte
	if err := cn.receiveFull(hdr[:]); err != nil {
		return err
	}
	if hdr[0] != binMagicResponse {
		return cn.fail(errors.Wrapf(ErrMalformedResponse, "%s: bad magic 0x%02x", cn.peername, hdr[0]))
	}
	status := binary.BigEndian.Uint16(hdr[6:8])
	bodylen := int(binary.BigEndian.Uint32(hdr[8:12]))

	if status == binStatusOK {
		if bodylen != 0 {
			return cn.fail(errors.Wrapf(ErrMalformedResponse,
				"%s: %d unexpected bytes in store response", cn.peername, bodylen))
		}
		return nil
	}

	// Failed stores carry a printable message; it says nothing the status
	// does not, so it is discarded after draining.
	if err := cn.drain(bodylen); err != nil {
		return err
	}
	switch status {
	case binStatusKeyNotFound, binStatusKeyExists, binStatusNotStored:
		return errors.Wrapf(ErrNotStored, "status 0x%04x", status)
	}
	return errors.Wrapf(ErrServerError, "%s: store failed with status 0x%04x", cn.peername, status)
}

func (binCodec) fetch(cn *conn, item *Item) error {
	var hdr [binHeaderSize]byte
	hdr[0] = binMagicRequest
	hdr[1] = binOpGet
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(item.Key)))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(item.Key)))

	if err := cn.sendAll(net.Buffers{hdr[:], item.Key}); err != nil {
		return err
	}
	return decodeBinFetchResponse(cn, item)
}

func decodeBinFetchResponse(cn *conn, item *Item) error {
	var hdr [binHeaderSize]byte
	if err := cn.receiveFull(hdr[:]); err != nil {
		return err
	}
	if hdr[0] != binMagicResponse {
		return cn.fail(errors.Wrapf(ErrMalformedResponse, "%s: bad magic 0x%02x", cn.peername, hdr[0]))
	}
	status := binary.BigEndian.Uint16(hdr[6:8])
	extlen := int(hdr[4])
	bodylen := int(binary.BigEndian.Uint32(hdr[8:12]))

	if status != binStatusOK {
		// The body of a failed fetch is a printable error message.
		if bodylen > len(cn.scratch) {
			return cn.fail(errors.Wrapf(ErrMalformedResponse,
				"%s: oversized error body (%d bytes)", cn.peername, bodylen))
		}
		if err := cn.receiveFull(cn.scratch[:bodylen]); err != nil {
			return err
		}
		if status == binStatusKeyNotFound {
			return ErrCacheMiss
		}
		werr := errors.Wrapf(ErrServerError, "%s: %s", cn.peername, cn.scratch[:bodylen])
		cn.lastErr = werr
		return werr
	}

	if extlen > bodylen || (extlen != 0 && extlen != 4) {
		return cn.fail(errors.Wrapf(ErrMalformedResponse,
			"%s: body of %d cannot carry %d extras", cn.peername, bodylen, extlen))
	}

	// The item is only committed once the whole body has arrived, so a
	// failed fetch leaves it describing its previous contents.
	size := bodylen - extlen
	data := item.Data
	if cap(data) < size {
		data = make([]byte, size)
	} else {
		data = data[:size]
	}
	var extras [4]byte
	if extlen == 4 {
		if err := cn.receiveFull(extras[:]); err != nil {
			return err
		}
	}
	if err := cn.receiveFull(data); err != nil {
		return err
	}
	item.Data = data
	if extlen == 4 {
		item.Flags = binary.BigEndian.Uint32(extras[:])
	}
	item.CAS = binary.BigEndian.Uint64(hdr[16:24])
	return nil
}
