package linkframe

import (
	"encoding/hex"
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/open-teleop/groundstation/pkg/state"
)

// Wire values for direction and format.
const (
	directionGroundToAir int8 = 0
	directionAirToGround int8 = 1

	formatText int8 = 0
	formatHex  int8 = 1
)

// Frame is one datagram crossing the HM30 link.
type Frame struct {
	ID               string
	Timestamp        time.Time
	Direction        state.Direction
	Format           state.Format
	Payload          []byte
	BytesTransferred int
	SourceIP         string
	SourcePort       int
}

// Encode serializes f as a LinkFrame flatbuffer.
func Encode(f Frame) []byte {
	builder := flatbuffers.NewBuilder(64 + len(f.Payload))

	idOffset := builder.CreateString(f.ID)
	payloadOffset := builder.CreateByteVector(f.Payload)
	var ipOffset flatbuffers.UOffsetT
	if f.SourceIP != "" {
		ipOffset = builder.CreateString(f.SourceIP)
	}

	LinkFrameStart(builder)
	LinkFrameAddId(builder, idOffset)
	LinkFrameAddTimestampNs(builder, f.Timestamp.UnixNano())
	LinkFrameAddDirection(builder, encodeDirection(f.Direction))
	LinkFrameAddFormat(builder, encodeFormat(f.Format))
	LinkFrameAddPayload(builder, payloadOffset)
	LinkFrameAddBytesTransferred(builder, uint32(f.BytesTransferred))
	if f.SourceIP != "" {
		LinkFrameAddSourceIp(builder, ipOffset)
	}
	LinkFrameAddSourcePort(builder, uint16(f.SourcePort))
	builder.Finish(LinkFrameEnd(builder))

	return builder.FinishedBytes()
}

// Decode parses a LinkFrame flatbuffer. Malformed input yields an error.
func Decode(buf []byte) (f Frame, err error) {
	if len(buf) < flatbuffers.SizeUOffsetT*2 {
		return Frame{}, fmt.Errorf("link frame too short: %d bytes", len(buf))
	}
	defer func() {
		if r := recover(); r != nil {
			f = Frame{}
			err = fmt.Errorf("malformed link frame: %v", r)
		}
	}()

	fb := GetRootAsLinkFrame(buf, 0)
	payload := fb.PayloadBytes()
	f = Frame{
		ID:               string(fb.Id()),
		Timestamp:        time.Unix(0, fb.TimestampNs()),
		Direction:        decodeDirection(fb.Direction()),
		Format:           decodeFormat(fb.Format()),
		Payload:          append([]byte(nil), payload...),
		BytesTransferred: int(fb.BytesTransferred()),
		SourceIP:         string(fb.SourceIp()),
		SourcePort:       int(fb.SourcePort()),
	}
	return f, nil
}

// Message renders the frame as a transcript entry.
func (f Frame) Message() state.Message {
	msg := state.Message{
		ID:               f.ID,
		Timestamp:        f.Timestamp,
		Direction:        f.Direction,
		BytesTransferred: f.BytesTransferred,
		Format:           f.Format,
		RawData:          hex.EncodeToString(f.Payload),
	}
	if f.Format == state.FormatHex {
		msg.Data = msg.RawData
	} else {
		msg.Data = string(f.Payload)
	}
	return msg
}

func encodeDirection(d state.Direction) int8 {
	if d == state.AirToGround {
		return directionAirToGround
	}
	return directionGroundToAir
}

func decodeDirection(v int8) state.Direction {
	if v == directionAirToGround {
		return state.AirToGround
	}
	return state.GroundToAir
}

func encodeFormat(f state.Format) int8 {
	if f == state.FormatHex {
		return formatHex
	}
	return formatText
}

func decodeFormat(v int8) state.Format {
	if v == formatHex {
		return state.FormatHex
	}
	return state.FormatText
}
