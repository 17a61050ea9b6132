package codec

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"
)

// sharedEncoder/sharedDecoder are process-wide zstd codecs used for optional
// frame compression (spec-full domain stack: klauspost/compress). One-shot
// EncodeAll/DecodeAll calls on a shared *zstd.Encoder/*zstd.Decoder are safe
// for concurrent use per the library's own documentation, so every
// Encode/DecodeObservation call reuses them instead of spinning up a fresh
// stream per frame.
var (
	sharedEncoderOnce sync.Once
	sharedEncoder     *zstd.Encoder
	sharedDecoderOnce sync.Once
	sharedDecoder     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	sharedEncoderOnce.Do(func() {
		sharedEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	})
	return sharedEncoder
}

func zstdDecoder() *zstd.Decoder {
	sharedDecoderOnce.Do(func() {
		sharedDecoder, _ = zstd.NewReader(nil)
	})
	return sharedDecoder
}

// EncodeObservation serializes an ObservationPacket. When compress is true
// and a frame is present, Frame is zstd-compressed and frame_compression is
// stamped so decode can recognize it without an out-of-band hint.
func EncodeObservation(pkt *ObservationPacket, compress bool) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)

	frame := pkt.Frame
	frameCompression := FrameCompressionNone
	if compress && len(frame) > 0 {
		frame = zstdEncoder().EncodeAll(pkt.Frame, nil)
		frameCompression = FrameCompressionZstd
	}

	frameType := pkt.FrameType
	if frameType == "" {
		frameType = defaultFrameType
	}

	fields := []string{
		"version", "sequence", "last_action_sequence", "mode",
		"frame", "frame_compression", "frame_width", "frame_height", "frame_type",
		"cursor_mode", "cursor_pos", "player_pos", "player_pitch", "player_yaw",
		"health",
	}
	if len(pkt.InventoryMain) > 0 {
		fields = append(fields, "inventory_main")
	}
	if len(pkt.InventoryArmor) > 0 {
		fields = append(fields, "inventory_armor")
	}
	if len(pkt.InventoryOffhand) > 0 {
		fields = append(fields, "inventory_offhand")
	}
	if pkt.Message != "" {
		fields = append(fields, "message")
	}

	if err := w.WriteMapHeader(uint32(len(fields))); err != nil {
		return nil, err
	}

	for _, key := range fields {
		if err := w.WriteString(key); err != nil {
			return nil, err
		}
		var err error
		switch key {
		case "version":
			err = w.WriteUint32(pkt.ProtocolVersion)
		case "sequence":
			err = w.WriteUint64(pkt.Sequence)
		case "last_action_sequence":
			err = w.WriteUint64(pkt.LastActionSequence)
		case "mode":
			err = w.WriteString(string(pkt.Mode))
		case "frame":
			err = w.WriteBytes(frame)
		case "frame_compression":
			err = w.WriteInt32(int32(frameCompression))
		case "frame_width":
			err = w.WriteInt32(pkt.FrameWidth)
		case "frame_height":
			err = w.WriteInt32(pkt.FrameHeight)
		case "frame_type":
			err = w.WriteString(frameType)
		case "cursor_mode":
			err = w.WriteInt32(int32(pkt.CursorMode))
		case "cursor_pos":
			err = writeVec2I(w, pkt.CursorPos)
		case "player_pos":
			err = writeVec3F(w, pkt.PlayerPos)
		case "player_pitch":
			err = w.WriteFloat64(pkt.PlayerPitch)
		case "player_yaw":
			err = w.WriteFloat64(pkt.PlayerYaw)
		case "health":
			err = w.WriteFloat64(pkt.Health)
		case "inventory_main":
			err = writeInventory(w, pkt.InventoryMain)
		case "inventory_armor":
			err = writeInventory(w, pkt.InventoryArmor)
		case "inventory_offhand":
			err = writeInventory(w, pkt.InventoryOffhand)
		case "message":
			err = w.WriteString(pkt.Message)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeVec2I(w *msgp.Writer, v Vec2I) error {
	if err := w.WriteMapHeader(2); err != nil {
		return err
	}
	if err := w.WriteString("x"); err != nil {
		return err
	}
	if err := w.WriteInt32(v.X); err != nil {
		return err
	}
	if err := w.WriteString("y"); err != nil {
		return err
	}
	return w.WriteInt32(v.Y)
}

func writeVec3F(w *msgp.Writer, v Vec3F) error {
	if err := w.WriteMapHeader(3); err != nil {
		return err
	}
	for _, kv := range []struct {
		key string
		val float64
	}{{"x", v.X}, {"y", v.Y}, {"z", v.Z}} {
		if err := w.WriteString(kv.key); err != nil {
			return err
		}
		if err := w.WriteFloat64(kv.val); err != nil {
			return err
		}
	}
	return nil
}

func writeInventory(w *msgp.Writer, slots []InventorySlot) error {
	if err := w.WriteArrayHeader(uint32(len(slots))); err != nil {
		return err
	}
	for _, s := range slots {
		if err := w.WriteMapHeader(3); err != nil {
			return err
		}
		if err := w.WriteString("slot_index"); err != nil {
			return err
		}
		if err := w.WriteInt32(s.SlotIndex); err != nil {
			return err
		}
		if err := w.WriteString("item_id"); err != nil {
			return err
		}
		if err := w.WriteString(s.ItemID); err != nil {
			return err
		}
		if err := w.WriteString("count"); err != nil {
			return err
		}
		if err := w.WriteInt32(s.Count); err != nil {
			return err
		}
	}
	return nil
}

// DecodeObservation parses a wire-format ObservationPacket, transparently
// inflating a zstd-compressed frame. As with DecodeAction, protocol_version
// mismatches are fatal and unknown top-level keys are skipped.
func DecodeObservation(data []byte, wantVersion uint32) (*ObservationPacket, error) {
	r := msgp.NewReader(bytes.NewReader(data))

	sz, err := r.ReadMapHeader()
	if err != nil {
		return nil, newMalformedError("observation: reading map header: %v", err)
	}

	pkt := &ObservationPacket{FrameType: defaultFrameType}
	seenVersion := false
	frameCompression := FrameCompressionNone

	for i := uint32(0); i < sz; i++ {
		key, err := r.ReadString()
		if err != nil {
			return nil, newMalformedError("observation: reading key %d: %v", i, err)
		}
		switch key {
		case "version":
			v, err := r.ReadUint32()
			if err != nil {
				return nil, newMalformedError("observation.version: %v", err)
			}
			pkt.ProtocolVersion = v
			seenVersion = true
		case "sequence":
			v, err := r.ReadUint64()
			if err != nil {
				return nil, newMalformedError("observation.sequence: %v", err)
			}
			pkt.Sequence = v
		case "last_action_sequence":
			v, err := r.ReadUint64()
			if err != nil {
				return nil, newMalformedError("observation.last_action_sequence: %v", err)
			}
			pkt.LastActionSequence = v
		case "mode":
			v, err := r.ReadString()
			if err != nil {
				return nil, newMalformedError("observation.mode: %v", err)
			}
			switch ObservationMode(v) {
			case ModeSync, ModeAsync:
				pkt.Mode = ObservationMode(v)
			default:
				return nil, newSchemaError("observation.mode unrecognized: %q", v)
			}
		case "frame":
			v, err := r.ReadBytes(nil)
			if err != nil {
				return nil, newMalformedError("observation.frame: %v", err)
			}
			pkt.Frame = v
		case "frame_compression":
			v, err := r.ReadInt64()
			if err != nil {
				return nil, newMalformedError("observation.frame_compression: %v", err)
			}
			switch FrameCompression(v) {
			case FrameCompressionNone, FrameCompressionZstd:
				frameCompression = FrameCompression(v)
			default:
				return nil, newSchemaError("observation.frame_compression out of range: %d", v)
			}
		case "frame_width":
			v, err := r.ReadInt32()
			if err != nil {
				return nil, newMalformedError("observation.frame_width: %v", err)
			}
			pkt.FrameWidth = v
		case "frame_height":
			v, err := r.ReadInt32()
			if err != nil {
				return nil, newMalformedError("observation.frame_height: %v", err)
			}
			pkt.FrameHeight = v
		case "frame_type":
			v, err := r.ReadString()
			if err != nil {
				return nil, newMalformedError("observation.frame_type: %v", err)
			}
			pkt.FrameType = v
		case "cursor_mode":
			v, err := r.ReadInt64()
			if err != nil {
				return nil, newMalformedError("observation.cursor_mode: %v", err)
			}
			cm, err := cursorModeFromInt(v)
			if err != nil {
				return nil, err
			}
			pkt.CursorMode = cm
		case "cursor_pos":
			v, err := readVec2I(r)
			if err != nil {
				return nil, err
			}
			pkt.CursorPos = v
		case "player_pos":
			v, err := readVec3F(r)
			if err != nil {
				return nil, err
			}
			pkt.PlayerPos = v
		case "player_pitch":
			v, err := r.ReadFloat64()
			if err != nil {
				return nil, newMalformedError("observation.player_pitch: %v", err)
			}
			pkt.PlayerPitch = v
		case "player_yaw":
			v, err := r.ReadFloat64()
			if err != nil {
				return nil, newMalformedError("observation.player_yaw: %v", err)
			}
			pkt.PlayerYaw = v
		case "health":
			v, err := r.ReadFloat64()
			if err != nil {
				return nil, newMalformedError("observation.health: %v", err)
			}
			pkt.Health = v
		case "inventory_main":
			v, err := readInventory(r, key)
			if err != nil {
				return nil, err
			}
			pkt.InventoryMain = v
		case "inventory_armor":
			v, err := readInventory(r, key)
			if err != nil {
				return nil, err
			}
			pkt.InventoryArmor = v
		case "inventory_offhand":
			v, err := readInventory(r, key)
			if err != nil {
				return nil, err
			}
			pkt.InventoryOffhand = v
		case "message":
			v, err := r.ReadString()
			if err != nil {
				return nil, newMalformedError("observation.message: %v", err)
			}
			pkt.Message = v
		default:
			if err := r.Skip(); err != nil {
				return nil, newMalformedError("observation: skipping unknown key %q: %v", key, err)
			}
		}
	}

	if !seenVersion {
		return nil, newMalformedError("observation: missing version field")
	}
	if pkt.ProtocolVersion != wantVersion {
		return nil, newVersionError(pkt.ProtocolVersion, wantVersion)
	}

	if frameCompression == FrameCompressionZstd && len(pkt.Frame) > 0 {
		inflated, err := zstdDecoder().DecodeAll(pkt.Frame, nil)
		if err != nil {
			return nil, newMalformedError("observation.frame: zstd inflate: %v", err)
		}
		pkt.Frame = inflated
	}
	pkt.FrameCompression = FrameCompressionNone

	return pkt, nil
}

func readVec2I(r *msgp.Reader) (Vec2I, error) {
	var v Vec2I
	n, err := r.ReadMapHeader()
	if err != nil {
		return v, newMalformedError("cursor_pos: %v", err)
	}
	for i := uint32(0); i < n; i++ {
		key, err := r.ReadString()
		if err != nil {
			return v, newMalformedError("cursor_pos: %v", err)
		}
		switch key {
		case "x":
			x, err := r.ReadInt32()
			if err != nil {
				return v, newMalformedError("cursor_pos.x: %v", err)
			}
			v.X = x
		case "y":
			y, err := r.ReadInt32()
			if err != nil {
				return v, newMalformedError("cursor_pos.y: %v", err)
			}
			v.Y = y
		default:
			if err := r.Skip(); err != nil {
				return v, newMalformedError("cursor_pos: skipping %q: %v", key, err)
			}
		}
	}
	return v, nil
}

func readVec3F(r *msgp.Reader) (Vec3F, error) {
	var v Vec3F
	n, err := r.ReadMapHeader()
	if err != nil {
		return v, newMalformedError("player_pos: %v", err)
	}
	for i := uint32(0); i < n; i++ {
		key, err := r.ReadString()
		if err != nil {
			return v, newMalformedError("player_pos: %v", err)
		}
		var f float64
		if key == "x" || key == "y" || key == "z" {
			f, err = r.ReadFloat64()
			if err != nil {
				return v, newMalformedError("player_pos.%s: %v", key, err)
			}
		}
		switch key {
		case "x":
			v.X = f
		case "y":
			v.Y = f
		case "z":
			v.Z = f
		default:
			if err := r.Skip(); err != nil {
				return v, newMalformedError("player_pos: skipping %q: %v", key, err)
			}
		}
	}
	return v, nil
}

func readInventory(r *msgp.Reader, fieldName string) ([]InventorySlot, error) {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, newMalformedError("%s: %v", fieldName, err)
	}
	out := make([]InventorySlot, 0, n)
	for i := uint32(0); i < n; i++ {
		fieldCount, err := r.ReadMapHeader()
		if err != nil {
			return nil, newMalformedError("%s[%d]: %v", fieldName, i, err)
		}
		var slot InventorySlot
		for f := uint32(0); f < fieldCount; f++ {
			key, err := r.ReadString()
			if err != nil {
				return nil, newMalformedError("%s[%d]: %v", fieldName, i, err)
			}
			switch key {
			case "slot_index":
				v, err := r.ReadInt32()
				if err != nil {
					return nil, newMalformedError("%s[%d].slot_index: %v", fieldName, i, err)
				}
				slot.SlotIndex = v
			case "item_id":
				v, err := r.ReadString()
				if err != nil {
					return nil, newMalformedError("%s[%d].item_id: %v", fieldName, i, err)
				}
				slot.ItemID = v
			case "count":
				v, err := r.ReadInt32()
				if err != nil {
					return nil, newMalformedError("%s[%d].count: %v", fieldName, i, err)
				}
				slot.Count = v
			default:
				if err := r.Skip(); err != nil {
					return nil, newMalformedError("%s[%d]: skipping %q: %v", fieldName, i, key, err)
				}
			}
		}
		out = append(out, slot)
	}
	return out, nil
}
