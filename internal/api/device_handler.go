package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/lifx-lan/internal/client"
	"github.com/taoyao-code/lifx-lan/internal/device"
	"github.com/taoyao-code/lifx-lan/internal/dispatch"
	"github.com/taoyao-code/lifx-lan/internal/protocol/lifx"
)

// Engine HTTP 层依赖的引擎能力（*client.Client 实现）
type Engine interface {
	Source() string
	ListDevices(filter device.StatusFilter) []device.Device
	FindDevice(identifier string) (device.Device, bool)
	Send(pkt *lifx.Packet, cb client.Handler) (uint8, error)
	SendAndWait(ctx context.Context, pkt *lifx.Packet) error
	Request(ctx context.Context, pkt *lifx.Packet, respType uint16) (*lifx.Packet, error)
}

// DeviceHandler 设备查询与报文下发
type DeviceHandler struct {
	engine  Engine
	timeout time.Duration
	logger  *zap.Logger
}

// NewDeviceHandler 创建设备处理器；timeout 为同步等待确认/应答的上限
func NewDeviceHandler(engine Engine, timeout time.Duration, logger *zap.Logger) *DeviceHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceHandler{engine: engine, timeout: timeout, logger: logger}
}

// ListDevices 设备列表
// GET /api/devices?status=on|off|all
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	filter, ok := device.ParseFilter(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be on, off or all"})
		return
	}
	list := h.engine.ListDevices(filter)
	c.JSON(http.StatusOK, gin.H{"devices": list, "count": len(list)})
}

// GetDevice 按地址、id 或标签查找
// GET /api/devices/:id
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	d, ok := h.engine.FindDevice(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

// PacketRequest 下发报文请求体
type PacketRequest struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload"`
	// Color 人类单位颜色，覆盖 setColor/setWaveform/setColorZones 载荷中的 color
	Color    *lifx.Color `json:"color"`
	Ack      bool        `json:"ack"`
	Response string      `json:"response"`
}

// SendPacket 向设备下发报文
// POST /api/devices/:id/packets
// ack=true 等待确认；response=<type> 等待指定类型应答；否则入队即返回 202
func (h *DeviceHandler) SendPacket(c *gin.Context) {
	d, ok := h.engine.FindDevice(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	var req PacketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pkt, err := h.buildPacket(&req, d.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var respType uint16
	if req.Response != "" {
		id, ok := lifx.LookupType(req.Response)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown response type " + req.Response})
			return
		}
		respType = id
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	switch {
	case respType != 0:
		resp, err := h.engine.Request(ctx, pkt, respType)
		if err != nil {
			h.fail(c, d, req.Type, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"device":   d.ID,
			"sequence": resp.Sequence,
			"type":     resp.Name(),
			"payload":  resp.Payload,
		})
	case req.Ack:
		if err := h.engine.SendAndWait(ctx, pkt); err != nil {
			h.fail(c, d, req.Type, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"device": d.ID, "sequence": pkt.Sequence, "acknowledged": true})
	default:
		seq, err := h.engine.Send(pkt, nil)
		if err != nil {
			h.fail(c, d, req.Type, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"device": d.ID, "sequence": seq})
	}
}

func (h *DeviceHandler) buildPacket(req *PacketRequest, target string) (*lifx.Packet, error) {
	id, ok := lifx.LookupType(req.Type)
	if !ok {
		return nil, &lifx.EncodeError{Type: req.Type, Err: lifx.ErrUnknownType}
	}
	payload := lifx.NewPayload(id)
	if payload != nil && len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, payload); err != nil {
			return nil, &lifx.EncodeError{Type: req.Type, Field: "payload", Err: err}
		}
	}
	if req.Color != nil {
		hsbk, err := req.Color.ToHSBK()
		if err != nil {
			return nil, err
		}
		switch p := payload.(type) {
		case *lifx.SetColor:
			p.Color = hsbk
		case *lifx.SetWaveform:
			p.Color = hsbk
		case *lifx.SetColorZones:
			p.Color = hsbk
		default:
			return nil, &lifx.EncodeError{Type: req.Type, Field: "color", Err: lifx.ErrBadPayload}
		}
	}
	return lifx.CreateByID(id, payload, h.engine.Source(), target)
}

func (h *DeviceHandler) fail(c *gin.Context, d device.Device, typ string, err error) {
	var encErr *lifx.EncodeError
	switch {
	case errors.As(err, &encErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, client.ErrAckTimeout),
		errors.Is(err, dispatch.ErrHandlerTimeout),
		errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("device did not answer",
			zap.String("device", d.ID),
			zap.String("type", typ),
			zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case errors.Is(err, client.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("send packet failed", zap.String("device", d.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
