package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Wire format constants.
const (
	HeaderSize      = 8
	Magic           = 0x4442 // ASCII 'DB'
	ProtocolVersion = 1

	// ContentType is the media type of a stream of frames.
	ContentType = "application/cbor"
)

// MessageType identifies the payload of a frame.
type MessageType uint8

const (
	// MsgBatch carries one committed update batch.
	MsgBatch MessageType = iota + 1
	// MsgCount carries a size change.
	MsgCount
	// MsgAck is sent by the client once it applied an update.
	MsgAck
	// MsgError carries a server side failure.
	MsgError
)

func (t MessageType) String() string {
	switch t {
	case MsgBatch:
		return "batch"
	case MsgCount:
		return "count"
	case MsgAck:
		return "ack"
	case MsgError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Errors returned by the frame functions.
var (
	ErrBufferTooShort  = errors.New("buffer too short for frame header")
	ErrBadMagic        = errors.New("invalid magic bytes in frame header")
	ErrBadVersion      = errors.New("unsupported protocol version")
	ErrPayloadTooShort = errors.New("buffer too short for complete frame")
)

// FrameHeader is the fixed-size prefix of every frame.
type FrameHeader struct {
	Magic   uint16
	Version uint8
	Type    MessageType
	Length  uint32
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// EncodeHeader writes the frame header for msgType and payloadLength.
//
// Wire layout:
//
//	[0:2]  magic   (big-endian uint16, 0x4442)
//	[2]    version (uint8, 1)
//	[3]    type    (uint8, MessageType)
//	[4:8]  length  (little-endian uint32, payload bytes)
func EncodeHeader(msgType MessageType, payloadLength uint32) []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = ProtocolVersion
	buf[3] = byte(msgType)
	binary.LittleEndian.PutUint32(buf[4:8], payloadLength)
	return buf
}

// DecodeHeader parses a frame header from data.
func DecodeHeader(data []byte) (*FrameHeader, error) {
	if len(data) < HeaderSize {
		return nil, ErrBufferTooShort
	}

	magic := binary.BigEndian.Uint16(data[0:2])
	if magic != Magic {
		return nil, ErrBadMagic
	}
	if data[2] != ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, data[2])
	}

	return &FrameHeader{
		Magic:   magic,
		Version: data[2],
		Type:    MessageType(data[3]),
		Length:  binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// EncodeFrame encodes v as a CBOR payload behind a header of type msgType.
func EncodeFrame(msgType MessageType, v any) ([]byte, error) {
	payload, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode %s: %w", msgType, err)
	}

	frame := make([]byte, HeaderSize+len(payload))
	copy(frame[0:HeaderSize], EncodeHeader(msgType, uint32(len(payload))))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// DecodeFrame splits a complete frame into its header and payload.
func DecodeFrame(data []byte) (*FrameHeader, []byte, error) {
	header, err := DecodeHeader(data)
	if err != nil {
		return nil, nil, err
	}

	totalSize := HeaderSize + int(header.Length)
	if len(data) < totalSize {
		return nil, nil, ErrPayloadTooShort
	}
	return header, data[HeaderSize:totalSize], nil
}

// Unmarshal decodes a CBOR payload into v.
func Unmarshal(payload []byte, v any) error {
	if err := cbor.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("cbor unmarshal: %w", err)
	}
	return nil
}

// Frame holds a decoded frame header and its raw payload bytes.
type Frame struct {
	Header  *FrameHeader
	Payload []byte
}

// FrameReader buffers incoming bytes and extracts complete frames.
type FrameReader struct {
	buffer []byte
}

// NewFrameReader creates a streaming frame reader.
func NewFrameReader() *FrameReader {
	return &FrameReader{
		buffer: make([]byte, 0, 4096),
	}
}

// Feed appends data and returns the frames completed by it. Partial data
// stays buffered. Bytes that do not start a frame are skipped.
func (fr *FrameReader) Feed(data []byte) ([]Frame, error) {
	fr.buffer = append(fr.buffer, data...)

	var frames []Frame
	for len(fr.buffer) >= HeaderSize {
		header, err := DecodeHeader(fr.buffer)
		if err != nil {
			if errors.Is(err, ErrBadMagic) {
				fr.buffer = fr.buffer[1:]
				continue
			}
			return frames, err
		}

		totalSize := HeaderSize + int(header.Length)
		if len(fr.buffer) < totalSize {
			break
		}

		payload := make([]byte, header.Length)
		copy(payload, fr.buffer[HeaderSize:totalSize])
		frames = append(frames, Frame{Header: header, Payload: payload})
		fr.buffer = fr.buffer[totalSize:]
	}
	return frames, nil
}

// PendingBytes returns the number of buffered bytes not yet forming a frame.
func (fr *FrameReader) PendingBytes() int {
	return len(fr.buffer)
}
