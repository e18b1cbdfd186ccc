// Package wire implements the big-endian, length-prefixed, version-tagged
// binary packet codec used on every outbound WebSocket frame. Every packet
// published by the hub is serialized through this package exactly once; the
// resulting bytes are shared, unchanged, across all current subscribers.
//
// Layout (version 1.0):
//
//	Header:     ver_major(u8) | ver_minor(u8) | media_type(u8) | total_size(u32)
//	PacketBody: pts(i64) | dts(i64) | payload_size(i32) | payload(bytes)
//	          | stream_index(i32) | flags(i32) | side_data_count(i32)
//	          | { side_type(u8) | side_size(i32) | side_bytes }*
//	          | duration(i64) | pos(i64)
//
// All multi-byte integers are big-endian.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

const (
	VerMajor = 1
	VerMinor = 0

	headerSize = 1 + 1 + 1 + 4 // ver_major, ver_minor, media_type, total_size
)

// Encode serializes one packet into a single self-contained byte buffer
// (header + body). The returned buffer's length equals the header's
// total_size field.
func Encode(mediaType media.Type, pkt *media.Packet) ([]byte, error) {
	if pkt == nil {
		return nil, protoerr.NewFramingError("wire.encode", fmt.Errorf("nil packet"))
	}

	var body bytes.Buffer
	var scratch [8]byte

	putI64(&body, &scratch, pkt.PTS)
	putI64(&body, &scratch, pkt.DTS)
	putI32(&body, &scratch, int32(len(pkt.Payload)))
	body.Write(pkt.Payload)
	putI32(&body, &scratch, pkt.StreamIndex)
	putI32(&body, &scratch, int32(pkt.Flags))
	putI32(&body, &scratch, int32(len(pkt.SideData)))
	for _, sd := range pkt.SideData {
		body.WriteByte(byte(sd.Type))
		putI32(&body, &scratch, int32(len(sd.Bytes)))
		body.Write(sd.Bytes)
	}
	putI64(&body, &scratch, pkt.Duration)
	putI64(&body, &scratch, pkt.Pos)

	total := headerSize + body.Len()
	out := make([]byte, total)
	out[0] = VerMajor
	out[1] = VerMinor
	out[2] = byte(mediaType)
	binary.BigEndian.PutUint32(out[3:7], uint32(total))
	copy(out[headerSize:], body.Bytes())
	return out, nil
}

// Decode parses one wire message from buf. It returns the packet, its media
// type, and the number of bytes of buf it consumed (always equal to the
// header's total_size on success).
//
// Decode rejects with a *errors.FramingError (kind "framing") when buf is
// shorter than the declared total_size. A mismatch between total_size and
// the cursor position after parsing the body is treated as a fatal framing
// bug (*errors.FatalError), never silently tolerated.
func Decode(buf []byte) (*media.Packet, media.Type, int, error) {
	if len(buf) < headerSize {
		return nil, 0, 0, protoerr.NewFramingError("wire.decode.header", fmt.Errorf("not_enough: need %d header bytes, have %d", headerSize, len(buf)))
	}

	verMajor := buf[0]
	verMinor := buf[1]
	mediaType := media.Type(buf[2])
	total := int(binary.BigEndian.Uint32(buf[3:7]))

	if verMajor != VerMajor {
		return nil, 0, 0, protoerr.NewFramingError("wire.decode.version", fmt.Errorf("unsupported wire version %d.%d", verMajor, verMinor))
	}
	if total < headerSize {
		return nil, 0, 0, protoerr.NewFramingError("wire.decode.total_size", fmt.Errorf("total_size %d smaller than header", total))
	}
	if len(buf) < total {
		return nil, 0, 0, protoerr.NewFramingError("wire.decode.body", fmt.Errorf("not_enough: need %d bytes, have %d", total, len(buf)))
	}

	cursor := headerSize
	pkt := &media.Packet{}

	var err error
	if pkt.PTS, cursor, err = getI64(buf, cursor); err != nil {
		return nil, 0, 0, err
	}
	if pkt.DTS, cursor, err = getI64(buf, cursor); err != nil {
		return nil, 0, 0, err
	}
	var payloadSize int32
	if payloadSize, cursor, err = getI32(buf, cursor); err != nil {
		return nil, 0, 0, err
	}
	if payloadSize < 0 || cursor+int(payloadSize) > len(buf) {
		return nil, 0, 0, protoerr.NewFramingError("wire.decode.payload", fmt.Errorf("alloc_fail: invalid payload_size %d", payloadSize))
	}
	pkt.Payload = make([]byte, payloadSize)
	copy(pkt.Payload, buf[cursor:cursor+int(payloadSize)])
	cursor += int(payloadSize)

	if pkt.StreamIndex, cursor, err = getI32(buf, cursor); err != nil {
		return nil, 0, 0, err
	}
	var flags int32
	if flags, cursor, err = getI32(buf, cursor); err != nil {
		return nil, 0, 0, err
	}
	pkt.Flags = uint32(flags)

	var sideCount int32
	if sideCount, cursor, err = getI32(buf, cursor); err != nil {
		return nil, 0, 0, err
	}
	if sideCount < 0 || sideCount > 1<<16 {
		return nil, 0, 0, protoerr.NewFramingError("wire.decode.side_data_count", fmt.Errorf("implausible side_data_count %d", sideCount))
	}
	pkt.SideData = make([]media.SideData, 0, sideCount)
	for i := int32(0); i < sideCount; i++ {
		if cursor+1 > len(buf) {
			return nil, 0, 0, protoerr.NewFramingError("wire.decode.side_data", fmt.Errorf("not_enough: truncated side_data[%d]", i))
		}
		sdType := media.SideDataType(buf[cursor])
		cursor++
		var sdSize int32
		if sdSize, cursor, err = getI32(buf, cursor); err != nil {
			return nil, 0, 0, err
		}
		if sdSize < 0 || cursor+int(sdSize) > len(buf) {
			return nil, 0, 0, protoerr.NewFramingError("wire.decode.side_data", fmt.Errorf("alloc_fail: invalid side_data[%d] size %d", i, sdSize))
		}
		sdBytes := make([]byte, sdSize)
		copy(sdBytes, buf[cursor:cursor+int(sdSize)])
		cursor += int(sdSize)
		pkt.SideData = append(pkt.SideData, media.SideData{Type: sdType, Bytes: sdBytes})
	}

	if pkt.Duration, cursor, err = getI64(buf, cursor); err != nil {
		return nil, 0, 0, err
	}
	if pkt.Pos, cursor, err = getI64(buf, cursor); err != nil {
		return nil, 0, 0, err
	}

	if cursor != total {
		return nil, 0, 0, protoerr.NewFatalError("wire.decode.cursor_mismatch", fmt.Errorf("parsed %d bytes, total_size declared %d", cursor, total))
	}

	return pkt, mediaType, total, nil
}

func putI64(b *bytes.Buffer, scratch *[8]byte, v int64) {
	binary.BigEndian.PutUint64(scratch[:], uint64(v))
	b.Write(scratch[:])
}

func putI32(b *bytes.Buffer, scratch *[8]byte, v int32) {
	binary.BigEndian.PutUint32(scratch[:4], uint32(v))
	b.Write(scratch[:4])
}

func getI64(buf []byte, cursor int) (int64, int, error) {
	if cursor+8 > len(buf) {
		return 0, cursor, protoerr.NewFramingError("wire.decode.i64", fmt.Errorf("not_enough: truncated int64 at offset %d", cursor))
	}
	return int64(binary.BigEndian.Uint64(buf[cursor : cursor+8])), cursor + 8, nil
}

func getI32(buf []byte, cursor int) (int32, int, error) {
	if cursor+4 > len(buf) {
		return 0, cursor, protoerr.NewFramingError("wire.decode.i32", fmt.Errorf("not_enough: truncated int32 at offset %d", cursor))
	}
	return int32(binary.BigEndian.Uint32(buf[cursor : cursor+4])), cursor + 4, nil
}
