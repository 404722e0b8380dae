// Package linkframe is the flatbuffers encoding of one HM30 datagram,
// used to mirror link traffic on the ZeroMQ publish socket.
//
// Schema:
//
//	table LinkFrame {
//	  id:string;
//	  timestamp_ns:long;
//	  direction:byte;
//	  format:byte;
//	  payload:[ubyte];
//	  bytes_transferred:uint;
//	  source_ip:string;
//	  source_port:ushort;
//	}
package linkframe

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

const linkFrameFields = 8

// LinkFrame is a read-only view over an encoded frame.
type LinkFrame struct {
	_tab flatbuffers.Table
}

// GetRootAsLinkFrame returns the frame rooted at offset in buf.
func GetRootAsLinkFrame(buf []byte, offset flatbuffers.UOffsetT) *LinkFrame {
	n := flatbuffers.GetUOffsetT(buf[offset:])
	x := &LinkFrame{}
	x.Init(buf, n+offset)
	return x
}

func (rcv *LinkFrame) Init(buf []byte, i flatbuffers.UOffsetT) {
	rcv._tab.Bytes = buf
	rcv._tab.Pos = i
}

func (rcv *LinkFrame) Id() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(4))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *LinkFrame) TimestampNs() int64 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(6))
	if o != 0 {
		return rcv._tab.GetInt64(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *LinkFrame) Direction() int8 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(8))
	if o != 0 {
		return rcv._tab.GetInt8(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *LinkFrame) Format() int8 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(10))
	if o != 0 {
		return rcv._tab.GetInt8(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *LinkFrame) PayloadBytes() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(12))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *LinkFrame) BytesTransferred() uint32 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(14))
	if o != 0 {
		return rcv._tab.GetUint32(o + rcv._tab.Pos)
	}
	return 0
}

func (rcv *LinkFrame) SourceIp() []byte {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(16))
	if o != 0 {
		return rcv._tab.ByteVector(o + rcv._tab.Pos)
	}
	return nil
}

func (rcv *LinkFrame) SourcePort() uint16 {
	o := flatbuffers.UOffsetT(rcv._tab.Offset(18))
	if o != 0 {
		return rcv._tab.GetUint16(o + rcv._tab.Pos)
	}
	return 0
}

func LinkFrameStart(builder *flatbuffers.Builder) {
	builder.StartObject(linkFrameFields)
}
func LinkFrameAddId(builder *flatbuffers.Builder, id flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(0, id, 0)
}
func LinkFrameAddTimestampNs(builder *flatbuffers.Builder, timestampNs int64) {
	builder.PrependInt64Slot(1, timestampNs, 0)
}
func LinkFrameAddDirection(builder *flatbuffers.Builder, direction int8) {
	builder.PrependInt8Slot(2, direction, 0)
}
func LinkFrameAddFormat(builder *flatbuffers.Builder, format int8) {
	builder.PrependInt8Slot(3, format, 0)
}
func LinkFrameAddPayload(builder *flatbuffers.Builder, payload flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(4, payload, 0)
}
func LinkFrameAddBytesTransferred(builder *flatbuffers.Builder, n uint32) {
	builder.PrependUint32Slot(5, n, 0)
}
func LinkFrameAddSourceIp(builder *flatbuffers.Builder, sourceIp flatbuffers.UOffsetT) {
	builder.PrependUOffsetTSlot(6, sourceIp, 0)
}
func LinkFrameAddSourcePort(builder *flatbuffers.Builder, port uint16) {
	builder.PrependUint16Slot(7, port, 0)
}
func LinkFrameEnd(builder *flatbuffers.Builder) flatbuffers.UOffsetT {
	return builder.EndObject()
}
