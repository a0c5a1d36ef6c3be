package feed

import (
	"encoding/json"
	"fmt"

	"github.com/fwpanel/fwctl/pkg/api"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// 推送事件名称
const (
	EventStatusUpdate     = "status_update"
	EventConnectionUpdate = "connection_update"
)

// Frame 推送消息
// 文本帧为JSON，二进制帧为google.protobuf.Struct，结构相同
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeFrame 解析一帧推送消息
func DecodeFrame(messageType int, payload []byte) (*Frame, error) {
	var frame Frame
	switch messageType {
	case websocket.TextMessage:
		if err := json.Unmarshal(payload, &frame); err != nil {
			return nil, fmt.Errorf("解析JSON消息失败: %w", err)
		}
	case websocket.BinaryMessage:
		var st structpb.Struct
		if err := proto.Unmarshal(payload, &st); err != nil {
			return nil, fmt.Errorf("解析protobuf消息失败: %w", err)
		}
		data, err := protojson.Marshal(&st)
		if err != nil {
			return nil, fmt.Errorf("转换protobuf消息失败: %w", err)
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("解析protobuf消息失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的消息类型: %d", messageType)
	}

	if frame.Event == "" {
		return nil, fmt.Errorf("消息缺少event字段")
	}
	return &frame, nil
}

// EncodeFrame 把事件编码为二进制帧
func EncodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(map[string]interface{}{"event": event, "data": data})
	if err != nil {
		return nil, err
	}
	var st structpb.Struct
	if err := protojson.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return proto.Marshal(&st)
}

// StatusUpdate 解析status_update事件，只包含变化的服务
func (f *Frame) StatusUpdate() (api.ServiceStatus, error) {
	status := api.ServiceStatus{}
	if err := json.Unmarshal(f.Data, &status); err != nil {
		return nil, fmt.Errorf("解析状态更新失败: %w", err)
	}
	return status, nil
}

// ConnectionUpdate 解析connection_update事件
func (f *Frame) ConnectionUpdate() (api.ConnectionStat, error) {
	var stat api.ConnectionStat
	if err := json.Unmarshal(f.Data, &stat); err != nil {
		return api.ConnectionStat{}, fmt.Errorf("解析连接统计失败: %w", err)
	}
	return stat, nil
}
