// Package wire encodes reconciliation updates for transports.
//
// Every message is a frame: an 8-byte header followed by a CBOR payload.
//
//	[0:2]  magic   0x4442 ('DB', big-endian)
//	[2]    version 1
//	[3]    type    (MsgBatch, MsgCount, MsgAck, MsgError)
//	[4:8]  payload length (little-endian)
//
// Buffer implements reconcile.Sink and keeps committed batches until the
// transport drains them; EncodeBatches turns them into frames. FrameReader
// parses a byte stream that may split frames at arbitrary points.
package wire
