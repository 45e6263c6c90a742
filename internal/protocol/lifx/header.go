package lifx

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	HeaderSize = 36

	DefaultPort = 56700

	ProtocolVersion = 1024

	addressableBit  = 0x1000
	taggedBit       = 0x2000
	originBits      = 0xC000
	protocolBits    = 0x0FFF
	ackRequiredBit  = 0x01
	resRequiredBit  = 0x02
	SequenceMax     = 255
	NoTarget        = "000000000000"
	NoSource        = "00000000"
	sourceHexLength = 8
	targetHexLength = 12
)

// Header 36 字节帧头
// 布局（小端）：
// size(2) | frameDesc(2: protocol12|addressable1|tagged1|origin2) | source(4)
// | target(6) | reserved(2) | site(6) | flags(1: ack|res) | sequence(1)
// | time(8) | type(2) | reserved(2)
type Header struct {
	Size            uint16
	Addressable     bool
	Tagged          bool
	Origin          uint8 // 0-3
	ProtocolVersion uint16
	Source          string // 8 位十六进制
	Target          string // 12 位十六进制，NoTarget 表示未寻址
	Site            string
	AckRequired     bool
	ResRequired     bool
	Sequence        uint8
	Time            uint64
	Type            uint16
}

// DecodeHeader 解析帧头（严格校验：最小长度、size 字段等于整个报文长度）
func DecodeHeader(raw []byte) (Header, error) {
	var h Header
	if len(raw) < HeaderSize {
		return h, &DecodeError{Len: len(raw), Err: ErrShortPacket}
	}
	h.Size = binary.LittleEndian.Uint16(raw[0:2])
	if int(h.Size) != len(raw) {
		return h, &DecodeError{Len: len(raw), Err: fmt.Errorf("%w: size=%d", ErrBadLength, h.Size)}
	}

	desc := binary.LittleEndian.Uint16(raw[2:4])
	h.ProtocolVersion = desc & protocolBits
	h.Addressable = desc&addressableBit != 0
	h.Tagged = desc&taggedBit != 0
	h.Origin = uint8((desc & originBits) >> 14)

	h.Source = hex.EncodeToString(raw[4:8])
	h.Target = hex.EncodeToString(raw[8:14])
	// raw[14:16] reserved
	h.Site = string(bytes.TrimRight(raw[16:22], "\x00"))

	flags := raw[22]
	h.AckRequired = flags&ackRequiredBit != 0
	h.ResRequired = flags&resRequiredBit != 0
	h.Sequence = raw[23]

	h.Time = binary.LittleEndian.Uint64(raw[24:32])
	h.Type = binary.LittleEndian.Uint16(raw[32:34])
	// raw[34:36] reserved
	return h, nil
}

// EncodeHeader 构造帧头字节（与 DecodeHeader 对应）
// source/target 须为小写十六进制，site 不含 NUL，保证解码结果与输入一致
func EncodeHeader(h Header) ([]byte, error) {
	buf := make([]byte, HeaderSize)
	if err := h.put(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (h Header) put(buf []byte) error {
	if h.ProtocolVersion > protocolBits {
		return rangeError("header", "protocolVersion", "%d > %d", h.ProtocolVersion, protocolBits)
	}
	if h.Origin > 3 {
		return rangeError("header", "origin", "%d > 3", h.Origin)
	}
	if len(h.Site) > 6 {
		return rangeError("header", "site", "%d bytes > 6", len(h.Site))
	}
	if strings.IndexByte(h.Site, 0) >= 0 {
		return rangeError("header", "site", "%q contains NUL", h.Site)
	}

	binary.LittleEndian.PutUint16(buf[0:2], h.Size)

	desc := h.ProtocolVersion
	if h.Addressable {
		desc |= addressableBit
	}
	if h.Tagged {
		desc |= taggedBit
	}
	desc |= uint16(h.Origin) << 14
	binary.LittleEndian.PutUint16(buf[2:4], desc)

	if err := putHex(buf[4:8], h.Source, sourceHexLength); err != nil {
		return &EncodeError{Type: "header", Field: "source", Err: err}
	}
	if err := putHex(buf[8:14], h.Target, targetHexLength); err != nil {
		return &EncodeError{Type: "header", Field: "target", Err: err}
	}
	copy(buf[16:22], h.Site)

	var flags byte
	if h.AckRequired {
		flags |= ackRequiredBit
	}
	if h.ResRequired {
		flags |= resRequiredBit
	}
	buf[22] = flags
	buf[23] = h.Sequence

	binary.LittleEndian.PutUint64(buf[24:32], h.Time)
	binary.LittleEndian.PutUint16(buf[32:34], h.Type)
	return nil
}

// putHex 将小写十六进制字符串写入定长区域
func putHex(dst []byte, s string, want int) error {
	if len(s) != want {
		return fmt.Errorf("%w: %q must be %d hex chars", ErrBadHexString, s, want)
	}
	if s != strings.ToLower(s) {
		return fmt.Errorf("%w: %q must be lowercase", ErrBadHexString, s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadHexString, s)
	}
	copy(dst, b)
	return nil
}

// ValidSource 判断是否为合法的 8 位十六进制 source（不区分大小写，Create 会转小写）
func ValidSource(s string) bool {
	if len(s) != sourceHexLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ValidTarget 判断是否为合法的 12 位十六进制 target
func ValidTarget(s string) bool {
	if len(s) != targetHexLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// SameSource 不区分大小写比较两个 source
func SameSource(a, b string) bool {
	return strings.EqualFold(a, b)
}
