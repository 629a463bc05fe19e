package crdt

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed 表示无法解码或语义非法的二进制数据
var ErrMalformed = errors.New("crdt: malformed payload")

// Update 的线格式 (protobuf wire format):
//
//	message Update   { repeated Item items = 1; repeated ID deletes = 2; }
//	message Item     { uint64 client = 1; uint64 seq = 2; uint64 lamport = 3; ID origin = 4; uint32 value = 5; }
//	message ID       { uint64 client = 1; uint64 seq = 2; }
//	message StateVec { repeated ID clocks = 1; }
const (
	updateItems   protowire.Number = 1
	updateDeletes protowire.Number = 2

	itemClient  protowire.Number = 1
	itemSeq     protowire.Number = 2
	itemLamport protowire.Number = 3
	itemOrigin  protowire.Number = 4
	itemValue   protowire.Number = 5

	idClient protowire.Number = 1
	idSeq    protowire.Number = 2

	stateVectorClocks protowire.Number = 1
)

// EncodeUpdate 编码增量
func EncodeUpdate(u Update) []byte {
	var b []byte
	for _, it := range u.Items {
		b = protowire.AppendTag(b, updateItems, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeItem(it))
	}
	for _, id := range u.Deletes {
		b = protowire.AppendTag(b, updateDeletes, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeID(id))
	}
	return b
}

// DecodeUpdate 解码增量
func DecodeUpdate(b []byte) (Update, error) {
	var u Update
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == updateItems && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			it, err := decodeItem(v)
			if err != nil {
				return 0, err
			}
			u.Items = append(u.Items, it)
			return n, nil
		case num == updateDeletes && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			id, err := decodeID(v)
			if err != nil {
				return 0, err
			}
			u.Deletes = append(u.Deletes, id)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	return u, err
}

// EncodeStateVector 编码状态向量
func EncodeStateVector(sv map[uint64]uint64) []byte {
	var b []byte
	for client, seq := range sv {
		b = protowire.AppendTag(b, stateVectorClocks, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeID(ID{Client: client, Seq: seq}))
	}
	return b
}

// DecodeStateVector 解码状态向量
func DecodeStateVector(b []byte) (map[uint64]uint64, error) {
	sv := make(map[uint64]uint64)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		if num == stateVectorClocks && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			id, err := decodeID(v)
			if err != nil {
				return 0, err
			}
			sv[id.Client] = id.Seq
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	return sv, err
}

func encodeItem(it Item) []byte {
	var b []byte
	b = protowire.AppendTag(b, itemClient, protowire.VarintType)
	b = protowire.AppendVarint(b, it.ID.Client)
	b = protowire.AppendTag(b, itemSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, it.ID.Seq)
	b = protowire.AppendTag(b, itemLamport, protowire.VarintType)
	b = protowire.AppendVarint(b, it.Lamport)
	if it.Origin != nil {
		b = protowire.AppendTag(b, itemOrigin, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeID(*it.Origin))
	}
	b = protowire.AppendTag(b, itemValue, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(it.Value))
	return b
}

func decodeItem(b []byte) (Item, error) {
	var it Item
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(field)
			switch num {
			case itemClient:
				it.ID.Client = v
			case itemSeq:
				it.ID.Seq = v
			case itemLamport:
				it.Lamport = v
			case itemValue:
				if v > uint64(maxRune) {
					return 0, fmt.Errorf("%w: rune value %d out of range", ErrMalformed, v)
				}
				it.Value = rune(v)
			}
			return n, nil
		}
		if num == itemOrigin && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			origin, err := decodeID(v)
			if err != nil {
				return 0, err
			}
			it.Origin = &origin
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err != nil {
		return Item{}, err
	}
	return it, validateItem(it)
}

func encodeID(id ID) []byte {
	var b []byte
	b = protowire.AppendTag(b, idClient, protowire.VarintType)
	b = protowire.AppendVarint(b, id.Client)
	b = protowire.AppendTag(b, idSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, id.Seq)
	return b
}

func decodeID(b []byte) (ID, error) {
	var id ID
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(field)
			switch num {
			case idClient:
				id.Client = v
			case idSeq:
				id.Seq = v
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err == nil && id.Seq == 0 {
		err = fmt.Errorf("%w: id with zero sequence", ErrMalformed)
	}
	return id, err
}

const maxRune = '\U0010FFFF'

// walkFields 逐个字段回调 fn；fn 返回消耗的字节数，负数表示解析失败
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, field []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
