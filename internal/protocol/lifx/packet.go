package lifx

import (
	"fmt"
	"reflect"
	"strings"
)

// Packet 逻辑报文：帧头 + 类型载荷
// 未登记类型解码后 Payload 为 nil，Known() 为 false
type Packet struct {
	Header
	Payload Payload

	// Address 单播目标地址，不参与编码；为空时走广播
	Address string
}

// Name 类型名称，未知类型返回空串
func (p *Packet) Name() string { return TypeName(p.Type) }

// Known 类型是否已登记
func (p *Packet) Known() bool { return KnownType(p.Type) }

// Decode 解析完整报文：帧头 + 按类型分发的载荷
// 未登记类型只返回帧头字段，不视为错误
func Decode(raw []byte) (*Packet, error) {
	h, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	p := &Packet{Header: h}
	k, ok := kindByID[h.Type]
	if !ok || k.payload == nil {
		return p, nil
	}
	body := raw[HeaderSize:]
	if (!k.variable && len(body) != k.size) || (k.variable && len(body) < k.size) {
		return nil, &DecodeError{Type: h.Type, Len: len(raw), Err: fmt.Errorf("%w: %s want %d got %d", ErrBadPayload, k.name, k.size, len(body))}
	}
	pl := k.payload()
	if err := pl.unmarshal(body); err != nil {
		return nil, &DecodeError{Type: h.Type, Len: len(raw), Err: err}
	}
	p.Payload = pl
	return p, nil
}

// Encode 构造报文字节：先写帧头，再写类型载荷；size 字段按实际长度回填
func Encode(p *Packet) ([]byte, error) {
	if p == nil {
		return nil, &EncodeError{Type: "packet", Err: fmt.Errorf("%w: nil packet", ErrUnknownType)}
	}
	k, ok := kindByID[p.Type]
	if !ok {
		return nil, &EncodeError{Type: fmt.Sprintf("type(%d)", p.Type), Err: ErrUnknownType}
	}

	pl := p.Payload
	if k.payload == nil {
		if pl != nil && pl.Len() > 0 {
			return nil, &EncodeError{Type: k.name, Err: fmt.Errorf("%w: %s carries no payload", ErrBadPayload, k.name)}
		}
		pl = nil
	} else {
		if pl == nil {
			pl = k.payload()
		} else if want := reflect.TypeOf(k.payload()); reflect.TypeOf(pl) != want {
			return nil, &EncodeError{Type: k.name, Err: fmt.Errorf("%w: payload %T, want %v", ErrBadPayload, pl, want)}
		}
	}

	bodyLen := 0
	if pl != nil {
		bodyLen = pl.Len()
	}
	buf := make([]byte, HeaderSize+bodyLen)
	p.Size = uint16(len(buf))
	if p.Source == "" {
		p.Source = NoSource
	}
	if p.Target == "" {
		p.Target = NoTarget
	}
	if err := p.Header.put(buf[:HeaderSize]); err != nil {
		return nil, err
	}
	if pl != nil {
		if err := pl.marshal(k.name, buf[HeaderSize:]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Create 按类型名称构造报文描述（不编码），调用方可继续修改 target/sequence 等字段
func Create(name string, payload Payload, source, target string) (*Packet, error) {
	k, ok := kindByName[name]
	if !ok {
		return nil, &EncodeError{Type: name, Err: ErrUnknownType}
	}
	return create(k, payload, source, target)
}

// CreateByID 按类型码构造报文描述
func CreateByID(id uint16, payload Payload, source, target string) (*Packet, error) {
	k, ok := kindByID[id]
	if !ok {
		return nil, &EncodeError{Type: fmt.Sprintf("type(%d)", id), Err: ErrUnknownType}
	}
	return create(k, payload, source, target)
}

func create(k *kind, payload Payload, source, target string) (*Packet, error) {
	source, target = strings.ToLower(source), strings.ToLower(target)
	if source != "" && !ValidSource(source) {
		return nil, &EncodeError{Type: k.name, Field: "source", Err: fmt.Errorf("%w: %q", ErrBadHexString, source)}
	}
	if target != "" && !ValidTarget(target) {
		return nil, &EncodeError{Type: k.name, Field: "target", Err: fmt.Errorf("%w: %q", ErrBadHexString, target)}
	}
	size := HeaderSize + k.size
	if payload != nil {
		size = HeaderSize + payload.Len()
	}
	p := &Packet{
		Header: Header{
			Size:            uint16(size),
			ProtocolVersion: ProtocolVersion,
			Addressable:     source != "" && source != NoSource,
			Tagged:          k.tagged,
			Source:          source,
			Target:          target,
			Type:            k.id,
		},
		Payload: payload,
	}
	return p, nil
}
