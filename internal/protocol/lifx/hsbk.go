package lifx

import (
	"encoding/binary"
	"math"
)

const (
	MaxHue        = 360
	MaxSaturation = 100
	MaxBrightness = 100

	MinKelvin     = 2500
	MaxKelvin     = 9000
	DefaultKelvin = 3500

	hsbkSize = 8
)

// HSBK 线上颜色表示：色相/饱和度/亮度为 0-65535，色温为开尔文
type HSBK struct {
	Hue        uint16 `json:"hue"`
	Saturation uint16 `json:"saturation"`
	Brightness uint16 `json:"brightness"`
	Kelvin     uint16 `json:"kelvin"`
}

// Color 调用方使用的颜色单位：色相 0-360 度，饱和度/亮度 0-100%
type Color struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Brightness float64 `json:"brightness"`
	Kelvin     uint16  `json:"kelvin"`
}

// ToHSBK 人类单位转线上单位（四舍五入）；Kelvin 为 0 时取默认值
func (c Color) ToHSBK() (HSBK, error) {
	const typ = "color"
	if c.Hue < 0 || c.Hue > MaxHue || math.IsNaN(c.Hue) {
		return HSBK{}, rangeError(typ, "hue", "%v not in [0,%d]", c.Hue, MaxHue)
	}
	if c.Saturation < 0 || c.Saturation > MaxSaturation || math.IsNaN(c.Saturation) {
		return HSBK{}, rangeError(typ, "saturation", "%v not in [0,%d]", c.Saturation, MaxSaturation)
	}
	if c.Brightness < 0 || c.Brightness > MaxBrightness || math.IsNaN(c.Brightness) {
		return HSBK{}, rangeError(typ, "brightness", "%v not in [0,%d]", c.Brightness, MaxBrightness)
	}
	k := c.Kelvin
	if k == 0 {
		k = DefaultKelvin
	}
	if k < MinKelvin || k > MaxKelvin {
		return HSBK{}, rangeError(typ, "kelvin", "%d not in [%d,%d]", k, MinKelvin, MaxKelvin)
	}
	return HSBK{
		Hue:        scaleToWire(c.Hue, MaxHue),
		Saturation: scaleToWire(c.Saturation, MaxSaturation),
		Brightness: scaleToWire(c.Brightness, MaxBrightness),
		Kelvin:     k,
	}, nil
}

// Color 线上单位转人类单位（四舍五入到整数）
func (h HSBK) Color() Color {
	return Color{
		Hue:        scaleFromWire(h.Hue, MaxHue),
		Saturation: scaleFromWire(h.Saturation, MaxSaturation),
		Brightness: scaleFromWire(h.Brightness, MaxBrightness),
		Kelvin:     h.Kelvin,
	}
}

func scaleToWire(v float64, max float64) uint16 {
	return uint16(math.Round(v / max * math.MaxUint16))
}

func scaleFromWire(v uint16, max float64) float64 {
	return math.Round(float64(v) * max / math.MaxUint16)
}

func (h HSBK) validate(typ string) error {
	if h.Kelvin < MinKelvin || h.Kelvin > MaxKelvin {
		return rangeError(typ, "kelvin", "%d not in [%d,%d]", h.Kelvin, MinKelvin, MaxKelvin)
	}
	return nil
}

func (h HSBK) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.Hue)
	binary.LittleEndian.PutUint16(b[2:4], h.Saturation)
	binary.LittleEndian.PutUint16(b[4:6], h.Brightness)
	binary.LittleEndian.PutUint16(b[6:8], h.Kelvin)
}

func readHSBK(b []byte) HSBK {
	return HSBK{
		Hue:        binary.LittleEndian.Uint16(b[0:2]),
		Saturation: binary.LittleEndian.Uint16(b[2:4]),
		Brightness: binary.LittleEndian.Uint16(b[4:6]),
		Kelvin:     binary.LittleEndian.Uint16(b[6:8]),
	}
}

// withDefaultKelvin 未指定色温时补默认值
func (h HSBK) withDefaultKelvin() HSBK {
	if h.Kelvin == 0 {
		h.Kelvin = DefaultKelvin
	}
	return h
}
