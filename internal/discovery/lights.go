package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidAddress 非 IPv4 点分地址
var ErrInvalidAddress = errors.New("discovery: invalid ipv4 address")

// KnownLights 已知灯具地址文件
//
//	lights:
//	  - 192.168.0.50
//	  - 192.168.0.51
type KnownLights struct {
	Lights []string `yaml:"lights"`
}

// LoadKnownLights 读取并校验 YAML 地址列表，重复地址只保留第一次出现
func LoadKnownLights(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read known lights: %w", err)
	}
	var kl KnownLights
	if err := yaml.Unmarshal(b, &kl); err != nil {
		return nil, fmt.Errorf("unmarshal known lights: %w", err)
	}
	return NormalizeLights(kl.Lights)
}

// NormalizeLights 去空白、去重并校验每个地址
func NormalizeLights(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		addr := strings.TrimSpace(raw)
		if !ValidIPv4(addr) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}

// ValidIPv4 是否为点分十进制 IPv4 地址
func ValidIPv4(addr string) bool {
	if strings.Count(addr, ".") != 3 || strings.Contains(addr, ":") {
		return false
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() != nil
}
