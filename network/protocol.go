package network

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	MsgTypeHeartbeat   = 1
	MsgTypeSubscribe   = 101
	MsgTypeUnsubscribe = 102
	MsgTypeSubscribed  = 103
	MsgTypeEvent       = 301
	MsgTypeError       = 500
)

// HeaderSize is the fixed packet header: 2-byte msg id + 2-byte length.
const HeaderSize = 4

var ErrPacketTooLarge = errors.New("packet data exceeds 65535 bytes")

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// EncodePacket 封包: 2字节消息ID + 2字节数据长度 + 数据
func EncodePacket(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPacketTooLarge
	}
	packet := make([]byte, HeaderSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[HeaderSize:], data)
	return packet, nil
}

// DecodePacket parses one frame. Bytes past the declared length are ignored.
func DecodePacket(frame []byte) (*Packet, error) {
	if len(frame) < HeaderSize {
		return nil, io.ErrShortBuffer
	}

	msgID := binary.BigEndian.Uint16(frame[0:2])
	length := binary.BigEndian.Uint16(frame[2:4])

	if len(frame) < HeaderSize+int(length) {
		return nil, io.ErrShortBuffer
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   frame[HeaderSize : HeaderSize+int(length)],
	}, nil
}

// SubscribeRequest is the payload of MsgTypeSubscribe. An empty Player
// subscribes to every event.
type SubscribeRequest struct {
	Player string `json:"player,omitempty"`
}

// SubscribedReply acknowledges a subscription.
type SubscribedReply struct {
	SessionID string `json:"session_id"`
	Player    string `json:"player,omitempty"`
}

type ErrorReply struct {
	Error string `json:"error"`
}
