package lifx

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

const (
	labelSize      = 32
	collectionSize = 56
	echoSize       = 64

	ServiceUDP = 1

	PowerOff uint16 = 0
	PowerOn  uint16 = 65535
)

// Waveform 取值
const (
	WaveformSaw uint8 = iota
	WaveformSine
	WaveformHalfSine
	WaveformTriangle
	WaveformPulse
)

// Payload 报文载荷（封闭集合，仅本包内类型实现）
type Payload interface {
	// Len 编码后的载荷长度
	Len() int
	marshal(typ string, b []byte) error
	unmarshal(b []byte) error
}

// StateService 设备服务应答
type StateService struct {
	Service uint8  `json:"service"`
	Port    uint32 `json:"port"`
}

func (p *StateService) Len() int { return 5 }

// ServiceName udp / reserved / unknown
func (p *StateService) ServiceName() string {
	switch {
	case p.Service == ServiceUDP:
		return "udp"
	case p.Service >= 2 && p.Service <= 4:
		return "reserved"
	default:
		return "unknown"
	}
}

func (p *StateService) marshal(_ string, b []byte) error {
	b[0] = p.Service
	binary.LittleEndian.PutUint32(b[1:5], p.Port)
	return nil
}

func (p *StateService) unmarshal(b []byte) error {
	p.Service = b[0]
	p.Port = binary.LittleEndian.Uint32(b[1:5])
	return nil
}

// NetworkInfo stateHostInfo / stateWifiInfo 共用布局
type NetworkInfo struct {
	Signal         float32 `json:"signal"`
	Tx             uint32  `json:"tx"`
	Rx             uint32  `json:"rx"`
	MCUTemperature uint16  `json:"mcuTemperature"`
}

func (p *NetworkInfo) Len() int { return 14 }

func (p *NetworkInfo) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(p.Signal))
	binary.LittleEndian.PutUint32(b[4:8], p.Tx)
	binary.LittleEndian.PutUint32(b[8:12], p.Rx)
	binary.LittleEndian.PutUint16(b[12:14], p.MCUTemperature)
	return nil
}

func (p *NetworkInfo) unmarshal(b []byte) error {
	p.Signal = math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	p.Tx = binary.LittleEndian.Uint32(b[4:8])
	p.Rx = binary.LittleEndian.Uint32(b[8:12])
	p.MCUTemperature = binary.LittleEndian.Uint16(b[12:14])
	return nil
}

// Firmware stateHostFirmware / stateWifiFirmware 共用布局
type Firmware struct {
	Build   uint64 `json:"build"`
	Install uint64 `json:"install"`
	Version uint32 `json:"version"`
}

func (p *Firmware) Len() int { return 20 }

func (p *Firmware) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint64(b[0:8], p.Build)
	binary.LittleEndian.PutUint64(b[8:16], p.Install)
	binary.LittleEndian.PutUint32(b[16:20], p.Version)
	return nil
}

func (p *Firmware) unmarshal(b []byte) error {
	p.Build = binary.LittleEndian.Uint64(b[0:8])
	p.Install = binary.LittleEndian.Uint64(b[8:16])
	p.Version = binary.LittleEndian.Uint32(b[16:20])
	return nil
}

// Label setLabel / stateLabel，UTF-8 定长 32 字节，尾部补零
type Label struct {
	Label string `json:"label"`
}

func (p *Label) Len() int { return labelSize }

func (p *Label) marshal(typ string, b []byte) error {
	return putString(typ, "label", b, p.Label)
}

func (p *Label) unmarshal(b []byte) error {
	p.Label = readString(b)
	return nil
}

// StateVersion 厂商/产品/版本
type StateVersion struct {
	Vendor  uint32 `json:"vendor"`
	Product uint32 `json:"product"`
	Version uint32 `json:"version"`
}

func (p *StateVersion) Len() int { return 12 }

func (p *StateVersion) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint32(b[0:4], p.Vendor)
	binary.LittleEndian.PutUint32(b[4:8], p.Product)
	binary.LittleEndian.PutUint32(b[8:12], p.Version)
	return nil
}

func (p *StateVersion) unmarshal(b []byte) error {
	p.Vendor = binary.LittleEndian.Uint32(b[0:4])
	p.Product = binary.LittleEndian.Uint32(b[4:8])
	p.Version = binary.LittleEndian.Uint32(b[8:12])
	return nil
}

// StateInfo 设备时间/运行时长/停机时长（纳秒）
type StateInfo struct {
	Time     uint64 `json:"time"`
	Uptime   uint64 `json:"uptime"`
	Downtime uint64 `json:"downtime"`
}

func (p *StateInfo) Len() int { return 24 }

func (p *StateInfo) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint64(b[0:8], p.Time)
	binary.LittleEndian.PutUint64(b[8:16], p.Uptime)
	binary.LittleEndian.PutUint64(b[16:24], p.Downtime)
	return nil
}

func (p *StateInfo) unmarshal(b []byte) error {
	p.Time = binary.LittleEndian.Uint64(b[0:8])
	p.Uptime = binary.LittleEndian.Uint64(b[8:16])
	p.Downtime = binary.LittleEndian.Uint64(b[16:24])
	return nil
}

// Collection stateLocation / stateGroup / stateOwner 共用布局
type Collection struct {
	ID        string `json:"id"` // 32 位十六进制
	Label     string `json:"label"`
	UpdatedAt uint64 `json:"updatedAt"`
}

func (p *Collection) Len() int { return collectionSize }

func (p *Collection) marshal(typ string, b []byte) error {
	if p.ID != "" {
		id, err := hex.DecodeString(p.ID)
		if err != nil || len(id) != 16 {
			return &EncodeError{Type: typ, Field: "id", Err: fmt.Errorf("%w: %q", ErrBadHexString, p.ID)}
		}
		copy(b[0:16], id)
	}
	if err := putString(typ, "label", b[16:48], p.Label); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b[48:56], p.UpdatedAt)
	return nil
}

func (p *Collection) unmarshal(b []byte) error {
	p.ID = hex.EncodeToString(b[0:16])
	p.Label = readString(b[16:48])
	p.UpdatedAt = binary.LittleEndian.Uint64(b[48:56])
	return nil
}

// Echo echoRequest / echoResponse，64 字节任意数据
type Echo struct {
	Payload []byte `json:"payload"`
}

func (p *Echo) Len() int { return echoSize }

func (p *Echo) marshal(typ string, b []byte) error {
	if len(p.Payload) > echoSize {
		return rangeError(typ, "payload", "%d bytes > %d", len(p.Payload), echoSize)
	}
	copy(b, p.Payload)
	return nil
}

func (p *Echo) unmarshal(b []byte) error {
	p.Payload = append([]byte(nil), bytes.TrimRight(b, "\x00")...)
	return nil
}

// SetColor 设置颜色
type SetColor struct {
	Stream   uint8  `json:"stream"`
	Color    HSBK   `json:"color"`
	Duration uint32 `json:"duration"` // 毫秒
}

func (p *SetColor) Len() int { return 13 }

func (p *SetColor) marshal(typ string, b []byte) error {
	c := p.Color.withDefaultKelvin()
	if err := c.validate(typ); err != nil {
		return err
	}
	b[0] = p.Stream
	c.put(b[1:9])
	binary.LittleEndian.PutUint32(b[9:13], p.Duration)
	return nil
}

func (p *SetColor) unmarshal(b []byte) error {
	p.Stream = b[0]
	p.Color = readHSBK(b[1:9])
	p.Duration = binary.LittleEndian.Uint32(b[9:13])
	return nil
}

// SetWaveform 波形效果
type SetWaveform struct {
	Stream    uint8   `json:"stream"`
	Transient bool    `json:"isTransient"`
	Color     HSBK    `json:"color"`
	Period    uint32  `json:"period"`
	Cycles    float32 `json:"cycles"`
	SkewRatio int16   `json:"skewRatio"`
	Waveform  uint8   `json:"waveform"`
}

func (p *SetWaveform) Len() int { return 21 }

func (p *SetWaveform) marshal(typ string, b []byte) error {
	c := p.Color.withDefaultKelvin()
	if err := c.validate(typ); err != nil {
		return err
	}
	if p.Waveform > WaveformPulse {
		return rangeError(typ, "waveform", "%d > %d", p.Waveform, WaveformPulse)
	}
	b[0] = p.Stream
	if p.Transient {
		b[1] = 1
	}
	c.put(b[2:10])
	binary.LittleEndian.PutUint32(b[10:14], p.Period)
	binary.LittleEndian.PutUint32(b[14:18], math.Float32bits(p.Cycles))
	binary.LittleEndian.PutUint16(b[18:20], uint16(p.SkewRatio))
	b[20] = p.Waveform
	return nil
}

func (p *SetWaveform) unmarshal(b []byte) error {
	p.Stream = b[0]
	p.Transient = b[1] != 0
	p.Color = readHSBK(b[2:10])
	p.Period = binary.LittleEndian.Uint32(b[10:14])
	p.Cycles = math.Float32frombits(binary.LittleEndian.Uint32(b[14:18]))
	p.SkewRatio = int16(binary.LittleEndian.Uint16(b[18:20]))
	p.Waveform = b[20]
	return nil
}

// StateLight 灯状态
type StateLight struct {
	Color HSBK   `json:"color"`
	Dim   uint16 `json:"dim"`
	Power uint16 `json:"power"`
	Label string `json:"label"`
	Tags  uint64 `json:"tags"`
}

func (p *StateLight) Len() int { return 52 }

func (p *StateLight) marshal(typ string, b []byte) error {
	p.Color.put(b[0:8])
	binary.LittleEndian.PutUint16(b[8:10], p.Dim)
	binary.LittleEndian.PutUint16(b[10:12], p.Power)
	if err := putString(typ, "label", b[12:44], p.Label); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b[44:52], p.Tags)
	return nil
}

func (p *StateLight) unmarshal(b []byte) error {
	p.Color = readHSBK(b[0:8])
	p.Dim = binary.LittleEndian.Uint16(b[8:10])
	p.Power = binary.LittleEndian.Uint16(b[10:12])
	p.Label = readString(b[12:44])
	p.Tags = binary.LittleEndian.Uint64(b[44:52])
	return nil
}

// Temperature stateTemperature
type Temperature struct {
	Temperature uint16 `json:"temperature"`
}

func (p *Temperature) Len() int { return 2 }

func (p *Temperature) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint16(b, p.Temperature)
	return nil
}

func (p *Temperature) unmarshal(b []byte) error {
	p.Temperature = binary.LittleEndian.Uint16(b)
	return nil
}

// SetPower 电源开关，level 只能是 0 或 65535
type SetPower struct {
	Level    uint16 `json:"level"`
	Duration uint32 `json:"duration"`
}

func (p *SetPower) Len() int { return 6 }

func (p *SetPower) marshal(typ string, b []byte) error {
	if p.Level != PowerOff && p.Level != PowerOn {
		return rangeError(typ, "level", "%d must be %d or %d", p.Level, PowerOff, PowerOn)
	}
	binary.LittleEndian.PutUint16(b[0:2], p.Level)
	binary.LittleEndian.PutUint32(b[2:6], p.Duration)
	return nil
}

func (p *SetPower) unmarshal(b []byte) error {
	p.Level = binary.LittleEndian.Uint16(b[0:2])
	p.Duration = binary.LittleEndian.Uint32(b[2:6])
	return nil
}

// StatePower 电源状态
type StatePower struct {
	Level uint16 `json:"level"`
}

func (p *StatePower) Len() int { return 2 }

func (p *StatePower) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint16(b, p.Level)
	return nil
}

func (p *StatePower) unmarshal(b []byte) error {
	p.Level = binary.LittleEndian.Uint16(b)
	return nil
}

// Infrared 红外亮度 setInfrared / stateInfrared
type Infrared struct {
	Brightness uint16 `json:"brightness"`
}

func (p *Infrared) Len() int { return 2 }

func (p *Infrared) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint16(b, p.Brightness)
	return nil
}

func (p *Infrared) unmarshal(b []byte) error {
	p.Brightness = binary.LittleEndian.Uint16(b)
	return nil
}

// AmbientLight 环境光照度（lux）
type AmbientLight struct {
	Flux float32 `json:"flux"`
}

func (p *AmbientLight) Len() int { return 4 }

func (p *AmbientLight) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint32(b, math.Float32bits(p.Flux))
	return nil
}

func (p *AmbientLight) unmarshal(b []byte) error {
	p.Flux = math.Float32frombits(binary.LittleEndian.Uint32(b))
	return nil
}

// SetColorZones 多区灯设置区间颜色
type SetColorZones struct {
	StartIndex uint8  `json:"startIndex"`
	EndIndex   uint8  `json:"endIndex"`
	Color      HSBK   `json:"color"`
	Duration   uint32 `json:"duration"`
	Apply      uint8  `json:"apply"` // 0 不应用 / 1 应用 / 2 仅应用
}

func (p *SetColorZones) Len() int { return 15 }

func (p *SetColorZones) marshal(typ string, b []byte) error {
	c := p.Color.withDefaultKelvin()
	if err := c.validate(typ); err != nil {
		return err
	}
	if p.Apply > 2 {
		return rangeError(typ, "apply", "%d > 2", p.Apply)
	}
	b[0] = p.StartIndex
	b[1] = p.EndIndex
	c.put(b[2:10])
	binary.LittleEndian.PutUint32(b[10:14], p.Duration)
	b[14] = p.Apply
	return nil
}

func (p *SetColorZones) unmarshal(b []byte) error {
	p.StartIndex = b[0]
	p.EndIndex = b[1]
	p.Color = readHSBK(b[2:10])
	p.Duration = binary.LittleEndian.Uint32(b[10:14])
	p.Apply = b[14]
	return nil
}

// GetColorZones 查询区间颜色
type GetColorZones struct {
	StartIndex uint8 `json:"startIndex"`
	EndIndex   uint8 `json:"endIndex"`
}

func (p *GetColorZones) Len() int { return 2 }

func (p *GetColorZones) marshal(_ string, b []byte) error {
	b[0] = p.StartIndex
	b[1] = p.EndIndex
	return nil
}

func (p *GetColorZones) unmarshal(b []byte) error {
	p.StartIndex = b[0]
	p.EndIndex = b[1]
	return nil
}

// StateZone 单区颜色
type StateZone struct {
	Count uint8 `json:"count"`
	Index uint8 `json:"index"`
	Color HSBK  `json:"color"`
}

func (p *StateZone) Len() int { return 10 }

func (p *StateZone) marshal(typ string, b []byte) error {
	c := p.Color.withDefaultKelvin()
	if err := c.validate(typ); err != nil {
		return err
	}
	b[0] = p.Count
	b[1] = p.Index
	c.put(b[2:10])
	return nil
}

func (p *StateZone) unmarshal(b []byte) error {
	p.Count = b[0]
	p.Index = b[1]
	p.Color = readHSBK(b[2:10])
	return nil
}

// GetCountZone 查询区数
type GetCountZone struct {
	Scan bool `json:"scan"`
}

func (p *GetCountZone) Len() int { return 1 }

func (p *GetCountZone) marshal(_ string, b []byte) error {
	if p.Scan {
		b[0] = 1
	}
	return nil
}

func (p *GetCountZone) unmarshal(b []byte) error {
	p.Scan = b[0] != 0
	return nil
}

// StateCountZone 区数应答
type StateCountZone struct {
	Time  uint64 `json:"time"`
	Count uint8  `json:"count"`
}

func (p *StateCountZone) Len() int { return 9 }

func (p *StateCountZone) marshal(_ string, b []byte) error {
	binary.LittleEndian.PutUint64(b[0:8], p.Time)
	b[8] = p.Count
	return nil
}

func (p *StateCountZone) unmarshal(b []byte) error {
	p.Time = binary.LittleEndian.Uint64(b[0:8])
	p.Count = b[8]
	return nil
}

// StateMultiZone 多区颜色应答：count + index + 最多 8 组 HSBK
type StateMultiZone struct {
	Count  uint8  `json:"count"`
	Index  uint8  `json:"index"`
	Colors []HSBK `json:"color"`
}

const maxMultiZoneColors = 8

func (p *StateMultiZone) Len() int { return 2 + hsbkSize*len(p.Colors) }

func (p *StateMultiZone) marshal(typ string, b []byte) error {
	if len(p.Colors) < 1 || len(p.Colors) > maxMultiZoneColors {
		return rangeError(typ, "color", "%d colors not in [1,%d]", len(p.Colors), maxMultiZoneColors)
	}
	b[0] = p.Count
	b[1] = p.Index
	off := 2
	for i, c := range p.Colors {
		c = c.withDefaultKelvin()
		if err := c.validate(typ); err != nil {
			return fmt.Errorf("color[%d]: %w", i, err)
		}
		c.put(b[off : off+hsbkSize])
		off += hsbkSize
	}
	return nil
}

func (p *StateMultiZone) unmarshal(b []byte) error {
	p.Count = b[0]
	p.Index = b[1]
	p.Colors = p.Colors[:0]
	for off := 2; len(b)-off >= hsbkSize; off += hsbkSize {
		p.Colors = append(p.Colors, readHSBK(b[off:off+hsbkSize]))
	}
	return nil
}

// putString 写入定长 UTF-8 字符串，超长视为越界
func putString(typ, field string, dst []byte, s string) error {
	if len(s) > len(dst) {
		return rangeError(typ, field, "%d bytes > %d", len(s), len(dst))
	}
	copy(dst, s)
	return nil
}

// readString 去掉所有 NUL（不只是尾部填充）
func readString(b []byte) string {
	return string(bytes.ReplaceAll(b, []byte{0}, nil))
}
