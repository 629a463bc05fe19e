package crdt

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// FrameKind 文档同步连接上的消息类型
type FrameKind uint64

const (
	// FrameSyncStep1 携带发送方的状态向量，请求对方缺失的部分
	FrameSyncStep1 FrameKind = iota
	// FrameSyncStep2 回应 step1，携带对方缺失的增量
	FrameSyncStep2
	// FrameUpdate 实时增量
	FrameUpdate
	// FrameAwareness 客户端自定义的感知信息 (光标等)，服务端只转发
	FrameAwareness
	// FrameStatus 服务端发给客户端的状态通知，负载是 UTF-8 文本
	FrameStatus
)

func (k FrameKind) String() string {
	switch k {
	case FrameSyncStep1:
		return "sync-step-1"
	case FrameSyncStep2:
		return "sync-step-2"
	case FrameUpdate:
		return "update"
	case FrameAwareness:
		return "awareness"
	case FrameStatus:
		return "status"
	}
	return fmt.Sprintf("frame(%d)", uint64(k))
}

// Frame 一条二进制消息
//
//	message Frame { uint64 kind = 1; bytes payload = 2; }
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

const (
	frameKind    protowire.Number = 1
	framePayload protowire.Number = 2
)

// EncodeFrame 编码一条消息
func EncodeFrame(f Frame) []byte {
	b := make([]byte, 0, len(f.Payload)+8)
	b = protowire.AppendTag(b, frameKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Kind))
	b = protowire.AppendTag(b, framePayload, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Payload)
	return b
}

// DecodeFrame 解码一条消息，未知类型视为格式错误
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	seenKind := false
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == frameKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			f.Kind = FrameKind(v)
			seenKind = true
			return n, nil
		case num == framePayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n >= 0 {
				f.Payload = append([]byte(nil), v...)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err != nil {
		return Frame{}, err
	}
	if !seenKind || f.Kind > FrameStatus {
		return Frame{}, fmt.Errorf("%w: unknown frame kind %d", ErrMalformed, uint64(f.Kind))
	}
	return f, nil
}

// StatusFrame 构造一条状态通知
func StatusFrame(message string) []byte {
	return EncodeFrame(Frame{Kind: FrameStatus, Payload: []byte(message)})
}

// UpdateFrame 把增量包装成 update 消息
func UpdateFrame(u Update) []byte {
	return EncodeFrame(Frame{Kind: FrameUpdate, Payload: EncodeUpdate(u)})
}
