package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	// RequestTimeout 同步等待确认/应答的上限
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

// LANConfig 局域网协议引擎配置
type LANConfig struct {
	Address    string   `mapstructure:"address"`  // 本地绑定地址
	Port       int      `mapstructure:"port"`     // 本地绑定端口，0 为随机
	SendPort   int      `mapstructure:"sendPort"` // 设备端口
	Broadcast  string   `mapstructure:"broadcast"`
	Source     string   `mapstructure:"source"` // 8 位十六进制，留空随机生成
	Lights     []string `mapstructure:"lights"`
	LightsFile string   `mapstructure:"lightsFile"`

	StartDiscovery        bool          `mapstructure:"startDiscovery"`
	DiscoveryInterval     time.Duration `mapstructure:"discoveryInterval"`
	OfflineTolerance      int           `mapstructure:"offlineTolerance"`
	MessageHandlerTimeout time.Duration `mapstructure:"messageHandlerTimeout"`
	SendInterval          time.Duration `mapstructure:"sendInterval"`
	ResendPacketDelay     time.Duration `mapstructure:"resendPacketDelay"`
	ResendMaxTimes        int           `mapstructure:"resendMaxTimes"`

	// 入站数据报限流（每秒/突发），0 表示不限
	InboundRate  float64 `mapstructure:"inboundRate"`
	InboundBurst int     `mapstructure:"inboundBurst"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// HealthConfig 就绪判定
type HealthConfig struct {
	// RequireDevices 为 true 时至少一个在线设备才算就绪
	RequireDevices bool `mapstructure:"requireDevices"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	LAN     LANConfig     `mapstructure:"lan"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// ConfigurationError 配置项非法，在绑定 socket 之前返回
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 LIFX_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 LIFX_，并将点号替换为下划线
	v.SetEnvPrefix("LIFX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 默认配置（不读文件与环境变量）
func Default() *Config {
	return &Config{
		App:  AppConfig{Name: "lifxd", Env: "dev"},
		HTTP: HTTPConfig{Addr: ":8080", ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second, RequestTimeout: 5 * time.Second},
		LAN:  DefaultLAN(),
		Logging: LoggingConfig{Level: "info", Format: "json", File: LumberjackConfig{
			Filename: "logs/lifxd.log", MaxSizeMB: 100, MaxBackups: 7, MaxAgeDays: 30, Compress: true,
		}},
		Metrics: MetricsConfig{Enable: true, Path: "/metrics"},
	}
}

// DefaultLAN 引擎默认参数
func DefaultLAN() LANConfig {
	return LANConfig{
		Address:               "0.0.0.0",
		Port:                  0,
		SendPort:              lifx.DefaultPort,
		Broadcast:             "255.255.255.255",
		StartDiscovery:        true,
		DiscoveryInterval:     5000 * time.Millisecond,
		OfflineTolerance:      3,
		MessageHandlerTimeout: 45000 * time.Millisecond,
		SendInterval:          50 * time.Millisecond,
		ResendPacketDelay:     150 * time.Millisecond,
		ResendMaxTimes:        3,
		InboundRate:           200,
		InboundBurst:          400,
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.env", d.App.Env)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.requestTimeout", "5s")

	v.SetDefault("lan.address", d.LAN.Address)
	v.SetDefault("lan.port", d.LAN.Port)
	v.SetDefault("lan.sendPort", d.LAN.SendPort)
	v.SetDefault("lan.broadcast", d.LAN.Broadcast)
	v.SetDefault("lan.source", "")
	v.SetDefault("lan.lights", []string{})
	v.SetDefault("lan.lightsFile", "")
	v.SetDefault("lan.startDiscovery", d.LAN.StartDiscovery)
	v.SetDefault("lan.discoveryInterval", "5s")
	v.SetDefault("lan.offlineTolerance", d.LAN.OfflineTolerance)
	v.SetDefault("lan.messageHandlerTimeout", "45s")
	v.SetDefault("lan.sendInterval", "50ms")
	v.SetDefault("lan.resendPacketDelay", "150ms")
	v.SetDefault("lan.resendMaxTimes", d.LAN.ResendMaxTimes)
	v.SetDefault("lan.inboundRate", d.LAN.InboundRate)
	v.SetDefault("lan.inboundBurst", d.LAN.InboundBurst)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.filename", d.Logging.File.Filename)
	v.SetDefault("logging.file.maxSize", d.Logging.File.MaxSizeMB)
	v.SetDefault("logging.file.maxBackups", d.Logging.File.MaxBackups)
	v.SetDefault("logging.file.maxAge", d.Logging.File.MaxAgeDays)
	v.SetDefault("logging.file.compress", d.Logging.File.Compress)

	v.SetDefault("metrics.enable", d.Metrics.Enable)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("health.requireDevices", false)
}

// Validate 校验全部配置
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "must not be empty")
	}
	return c.LAN.Validate()
}

// Validate 校验引擎参数
func (c *LANConfig) Validate() error {
	if !isIPv4(c.Address) {
		return invalid("lan.address", "%q is not an ipv4 address", c.Address)
	}
	if c.Port < 0 || c.Port > 65535 {
		return invalid("lan.port", "%d out of range 0-65535", c.Port)
	}
	if c.SendPort < 1 || c.SendPort > 65535 {
		return invalid("lan.sendPort", "%d out of range 1-65535", c.SendPort)
	}
	if !isIPv4(c.Broadcast) {
		return invalid("lan.broadcast", "%q is not an ipv4 address", c.Broadcast)
	}
	if c.Source != "" && !lifx.ValidSource(c.Source) {
		return invalid("lan.source", "%q must be 8 hex characters", c.Source)
	}
	for _, addr := range c.Lights {
		if !isIPv4(addr) {
			return invalid("lan.lights", "%q is not an ipv4 address", addr)
		}
	}
	if c.DiscoveryInterval <= 0 {
		return invalid("lan.discoveryInterval", "must be positive")
	}
	if c.OfflineTolerance < 1 {
		return invalid("lan.offlineTolerance", "must be at least 1")
	}
	if c.MessageHandlerTimeout <= 0 {
		return invalid("lan.messageHandlerTimeout", "must be positive")
	}
	if c.SendInterval <= 0 {
		return invalid("lan.sendInterval", "must be positive")
	}
	if c.ResendPacketDelay <= 0 {
		return invalid("lan.resendPacketDelay", "must be positive")
	}
	if c.ResendMaxTimes < 1 {
		return invalid("lan.resendMaxTimes", "must be at least 1")
	}
	if c.InboundRate < 0 || c.InboundBurst < 0 {
		return invalid("lan.inboundRate", "must not be negative")
	}
	return nil
}

func isIPv4(s string) bool {
	if strings.Contains(s, ":") {
		return false
	}
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
