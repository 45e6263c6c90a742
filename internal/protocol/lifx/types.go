package lifx

// 报文类型码
const (
	TypeGetService        uint16 = 2
	TypeStateService      uint16 = 3
	TypeGetHostInfo       uint16 = 12
	TypeStateHostInfo     uint16 = 13
	TypeGetHostFirmware   uint16 = 14
	TypeStateHostFirmware uint16 = 15
	TypeGetWifiInfo       uint16 = 16
	TypeStateWifiInfo     uint16 = 17
	TypeGetWifiFirmware   uint16 = 18
	TypeStateWifiFirmware uint16 = 19
	TypeGetLabel          uint16 = 23
	TypeSetLabel          uint16 = 24
	TypeStateLabel        uint16 = 25
	TypeGetVersion        uint16 = 32
	TypeStateVersion      uint16 = 33
	TypeGetInfo           uint16 = 34
	TypeStateInfo         uint16 = 35
	TypeAcknowledgement   uint16 = 45
	TypeGetLocation       uint16 = 48
	TypeStateLocation     uint16 = 50
	TypeGetGroup          uint16 = 51
	TypeStateGroup        uint16 = 53
	TypeGetOwner          uint16 = 54
	TypeStateOwner        uint16 = 56
	TypeEchoRequest       uint16 = 58
	TypeEchoResponse      uint16 = 59
	TypeGetLight          uint16 = 101
	TypeSetColor          uint16 = 102
	TypeSetWaveform       uint16 = 103
	TypeStateLight        uint16 = 107
	TypeGetTemperature    uint16 = 110
	TypeStateTemperature  uint16 = 111
	TypeGetPower          uint16 = 116
	TypeSetPower          uint16 = 117
	TypeStatePower        uint16 = 118
	TypeGetInfrared       uint16 = 120
	TypeStateInfrared     uint16 = 121
	TypeSetInfrared       uint16 = 122
	TypeGetAmbientLight   uint16 = 401
	TypeStateAmbientLight uint16 = 402
	TypeSetColorZones     uint16 = 501
	TypeGetColorZones     uint16 = 502
	TypeStateZone         uint16 = 503
	TypeGetCountZone      uint16 = 504
	TypeStateCountZone    uint16 = 505
	TypeStateMultiZone    uint16 = 506
)

// kind 报文类型登记项：类型码、名称、载荷长度与编解码构造器
type kind struct {
	id       uint16
	name     string
	size     int  // 定长载荷长度；variable 时为最小长度
	variable bool // 载荷变长
	tagged   bool
	payload  func() Payload // 无载荷的类型为 nil
}

var kinds = []kind{
	{id: TypeGetService, name: "getService", tagged: true},
	{id: TypeStateService, name: "stateService", size: 5, payload: func() Payload { return &StateService{} }},
	{id: TypeGetHostInfo, name: "getHostInfo"},
	{id: TypeStateHostInfo, name: "stateHostInfo", size: 14, payload: func() Payload { return &NetworkInfo{} }},
	{id: TypeGetHostFirmware, name: "getHostFirmware"},
	{id: TypeStateHostFirmware, name: "stateHostFirmware", size: 20, payload: func() Payload { return &Firmware{} }},
	{id: TypeGetWifiInfo, name: "getWifiInfo"},
	{id: TypeStateWifiInfo, name: "stateWifiInfo", size: 14, payload: func() Payload { return &NetworkInfo{} }},
	{id: TypeGetWifiFirmware, name: "getWifiFirmware"},
	{id: TypeStateWifiFirmware, name: "stateWifiFirmware", size: 20, payload: func() Payload { return &Firmware{} }},
	{id: TypeGetLabel, name: "getLabel"},
	{id: TypeSetLabel, name: "setLabel", size: labelSize, payload: func() Payload { return &Label{} }},
	{id: TypeStateLabel, name: "stateLabel", size: labelSize, payload: func() Payload { return &Label{} }},
	{id: TypeGetVersion, name: "getVersion"},
	{id: TypeStateVersion, name: "stateVersion", size: 12, payload: func() Payload { return &StateVersion{} }},
	{id: TypeGetInfo, name: "getInfo"},
	{id: TypeStateInfo, name: "stateInfo", size: 24, payload: func() Payload { return &StateInfo{} }},
	{id: TypeAcknowledgement, name: "acknowledgement"},
	{id: TypeGetLocation, name: "getLocation"},
	{id: TypeStateLocation, name: "stateLocation", size: collectionSize, payload: func() Payload { return &Collection{} }},
	{id: TypeGetGroup, name: "getGroup"},
	{id: TypeStateGroup, name: "stateGroup", size: collectionSize, payload: func() Payload { return &Collection{} }},
	{id: TypeGetOwner, name: "getOwner"},
	{id: TypeStateOwner, name: "stateOwner", size: collectionSize, payload: func() Payload { return &Collection{} }},
	{id: TypeEchoRequest, name: "echoRequest", size: echoSize, payload: func() Payload { return &Echo{} }},
	{id: TypeEchoResponse, name: "echoResponse", size: echoSize, payload: func() Payload { return &Echo{} }},
	{id: TypeGetLight, name: "getLight"},
	{id: TypeSetColor, name: "setColor", size: 13, payload: func() Payload { return &SetColor{} }},
	{id: TypeSetWaveform, name: "setWaveform", size: 21, payload: func() Payload { return &SetWaveform{} }},
	{id: TypeStateLight, name: "stateLight", size: 52, payload: func() Payload { return &StateLight{} }},
	{id: TypeGetTemperature, name: "getTemperature"},
	{id: TypeStateTemperature, name: "stateTemperature", size: 2, payload: func() Payload { return &Temperature{} }},
	{id: TypeGetPower, name: "getPower"},
	{id: TypeSetPower, name: "setPower", size: 6, payload: func() Payload { return &SetPower{} }},
	{id: TypeStatePower, name: "statePower", size: 2, payload: func() Payload { return &StatePower{} }},
	{id: TypeGetInfrared, name: "getInfrared"},
	{id: TypeStateInfrared, name: "stateInfrared", size: 2, payload: func() Payload { return &Infrared{} }},
	{id: TypeSetInfrared, name: "setInfrared", size: 2, payload: func() Payload { return &Infrared{} }},
	{id: TypeGetAmbientLight, name: "getAmbientLight"},
	{id: TypeStateAmbientLight, name: "stateAmbientLight", size: 4, payload: func() Payload { return &AmbientLight{} }},
	{id: TypeSetColorZones, name: "setColorZones", size: 15, payload: func() Payload { return &SetColorZones{} }},
	{id: TypeGetColorZones, name: "getColorZones", size: 2, payload: func() Payload { return &GetColorZones{} }},
	{id: TypeStateZone, name: "stateZone", size: 10, payload: func() Payload { return &StateZone{} }},
	{id: TypeGetCountZone, name: "getCountZone", size: 1, payload: func() Payload { return &GetCountZone{} }},
	{id: TypeStateCountZone, name: "stateCountZone", size: 9, payload: func() Payload { return &StateCountZone{} }},
	{id: TypeStateMultiZone, name: "stateMultiZone", size: 2, variable: true, payload: func() Payload { return &StateMultiZone{} }},
}

var (
	kindByID   = make(map[uint16]*kind, len(kinds))
	kindByName = make(map[string]*kind, len(kinds))
)

func init() {
	for i := range kinds {
		k := &kinds[i]
		kindByID[k.id] = k
		kindByName[k.name] = k
	}
}

// TypeName 返回类型码对应的名称，未知类型返回空串
func TypeName(id uint16) string {
	if k, ok := kindByID[id]; ok {
		return k.name
	}
	return ""
}

// LookupType 按名称查找类型码
func LookupType(name string) (uint16, bool) {
	if k, ok := kindByName[name]; ok {
		return k.id, true
	}
	return 0, false
}

// KnownType 类型码是否已登记
func KnownType(id uint16) bool {
	_, ok := kindByID[id]
	return ok
}

// TypeNames 按登记顺序返回全部类型名称
func TypeNames() []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.name)
	}
	return out
}

// NewPayload 为类型构造空载荷，无载荷或未知类型返回 nil
func NewPayload(id uint16) Payload {
	if k, ok := kindByID[id]; ok && k.payload != nil {
		return k.payload()
	}
	return nil
}
