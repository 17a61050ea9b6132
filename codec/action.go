package codec

import (
	"bytes"

	"github.com/tinylib/msgp/msgp"
)

// EncodeAction serializes an ActionPacket into the self-describing map
// encoding used on the action channel. Field order is fixed so two encodes
// of equal packets always produce byte-identical wire output, which keeps
// replay captures and test fixtures diffable.
func EncodeAction(pkt *ActionPacket) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)

	fields := []string{"version", "sequence", "commands", "stop", "clear_input"}
	if len(pkt.Inputs) > 0 {
		fields = append(fields, "inputs")
	}
	if len(pkt.CursorPos) > 0 {
		fields = append(fields, "cursor_pos")
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
		case "commands":
			err = writeStringArray(w, pkt.Commands)
		case "stop":
			err = w.WriteBool(pkt.Stop)
		case "clear_input":
			err = w.WriteBool(pkt.ClearInput)
		case "inputs":
			err = writeInputs(w, pkt.Inputs)
		case "cursor_pos":
			err = writeCursorPath(w, pkt.CursorPos)
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

func writeStringArray(w *msgp.Writer, values []string) error {
	if err := w.WriteArrayHeader(uint32(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		if err := w.WriteString(v); err != nil {
			return err
		}
	}
	return nil
}

func writeInputs(w *msgp.Writer, inputs []InputEvent) error {
	if err := w.WriteArrayHeader(uint32(len(inputs))); err != nil {
		return err
	}
	for _, in := range inputs {
		if err := w.WriteMapHeader(3); err != nil {
			return err
		}
		if err := w.WriteString("type"); err != nil {
			return err
		}
		if err := w.WriteInt32(int32(in.Type)); err != nil {
			return err
		}
		if err := w.WriteString("code"); err != nil {
			return err
		}
		if err := w.WriteInt32(in.Code); err != nil {
			return err
		}
		if err := w.WriteString("action"); err != nil {
			return err
		}
		if err := w.WriteInt32(int32(in.Action)); err != nil {
			return err
		}
	}
	return nil
}

func writeCursorPath(w *msgp.Writer, points []CursorPoint) error {
	if err := w.WriteArrayHeader(uint32(len(points))); err != nil {
		return err
	}
	for _, p := range points {
		if err := w.WriteMapHeader(2); err != nil {
			return err
		}
		if err := w.WriteString("x"); err != nil {
			return err
		}
		if err := w.WriteFloat64(p.X); err != nil {
			return err
		}
		if err := w.WriteString("y"); err != nil {
			return err
		}
		if err := w.WriteFloat64(p.Y); err != nil {
			return err
		}
	}
	return nil
}

// DecodeAction parses a wire-format ActionPacket, rejecting it with
// ErrVersionMismatch if protocol_version does not equal wantVersion.
// Unknown top-level keys are skipped for forward compatibility (spec §4.A).
func DecodeAction(data []byte, wantVersion uint32) (*ActionPacket, error) {
	r := msgp.NewReader(bytes.NewReader(data))

	sz, err := r.ReadMapHeader()
	if err != nil {
		return nil, newMalformedError("action: reading map header: %v", err)
	}

	pkt := &ActionPacket{}
	seenVersion := false

	for i := uint32(0); i < sz; i++ {
		key, err := r.ReadString()
		if err != nil {
			return nil, newMalformedError("action: reading key %d: %v", i, err)
		}
		switch key {
		case "version":
			v, err := r.ReadUint32()
			if err != nil {
				return nil, newMalformedError("action.version: %v", err)
			}
			pkt.ProtocolVersion = v
			seenVersion = true
		case "sequence":
			v, err := r.ReadUint64()
			if err != nil {
				return nil, newMalformedError("action.sequence: %v", err)
			}
			pkt.Sequence = v
		case "commands":
			v, err := readStringArray(r)
			if err != nil {
				return nil, newMalformedError("action.commands: %v", err)
			}
			pkt.Commands = v
		case "stop":
			v, err := r.ReadBool()
			if err != nil {
				return nil, newMalformedError("action.stop: %v", err)
			}
			pkt.Stop = v
		case "clear_input":
			v, err := r.ReadBool()
			if err != nil {
				return nil, newMalformedError("action.clear_input: %v", err)
			}
			pkt.ClearInput = v
		case "inputs":
			v, err := readInputs(r)
			if err != nil {
				return nil, err
			}
			pkt.Inputs = v
		case "cursor_pos":
			v, err := readCursorPath(r)
			if err != nil {
				return nil, err
			}
			pkt.CursorPos = v
		default:
			if err := r.Skip(); err != nil {
				return nil, newMalformedError("action: skipping unknown key %q: %v", key, err)
			}
		}
	}

	if !seenVersion {
		return nil, newMalformedError("action: missing version field")
	}
	if pkt.ProtocolVersion != wantVersion {
		return nil, newVersionError(pkt.ProtocolVersion, wantVersion)
	}
	return pkt, nil
}

func readStringArray(r *msgp.Reader) ([]string, error) {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func readInputs(r *msgp.Reader) ([]InputEvent, error) {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, newMalformedError("inputs: %v", err)
	}
	out := make([]InputEvent, 0, n)
	for i := uint32(0); i < n; i++ {
		fieldCount, err := r.ReadMapHeader()
		if err != nil {
			return nil, newMalformedError("inputs[%d]: %v", i, err)
		}
		var ev InputEvent
		for f := uint32(0); f < fieldCount; f++ {
			key, err := r.ReadString()
			if err != nil {
				return nil, newMalformedError("inputs[%d]: %v", i, err)
			}
			switch key {
			case "type":
				v, err := r.ReadInt64()
				if err != nil {
					return nil, newMalformedError("inputs[%d].type: %v", i, err)
				}
				t, err := inputTypeFromInt(v)
				if err != nil {
					return nil, err
				}
				ev.Type = t
			case "code":
				v, err := r.ReadInt32()
				if err != nil {
					return nil, newMalformedError("inputs[%d].code: %v", i, err)
				}
				ev.Code = v
			case "action":
				v, err := r.ReadInt64()
				if err != nil {
					return nil, newMalformedError("inputs[%d].action: %v", i, err)
				}
				a, err := glfwActionFromInt(v)
				if err != nil {
					return nil, err
				}
				ev.Action = a
			default:
				if err := r.Skip(); err != nil {
					return nil, newMalformedError("inputs[%d]: skipping %q: %v", i, key, err)
				}
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func readCursorPath(r *msgp.Reader) ([]CursorPoint, error) {
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, newMalformedError("cursor_pos: %v", err)
	}
	out := make([]CursorPoint, 0, n)
	for i := uint32(0); i < n; i++ {
		fieldCount, err := r.ReadMapHeader()
		if err != nil {
			return nil, newMalformedError("cursor_pos[%d]: %v", i, err)
		}
		var p CursorPoint
		for f := uint32(0); f < fieldCount; f++ {
			key, err := r.ReadString()
			if err != nil {
				return nil, newMalformedError("cursor_pos[%d]: %v", i, err)
			}
			switch key {
			case "x":
				v, err := r.ReadFloat64()
				if err != nil {
					return nil, newMalformedError("cursor_pos[%d].x: %v", i, err)
				}
				p.X = v
			case "y":
				v, err := r.ReadFloat64()
				if err != nil {
					return nil, newMalformedError("cursor_pos[%d].y: %v", i, err)
				}
				p.Y = v
			default:
				if err := r.Skip(); err != nil {
					return nil, newMalformedError("cursor_pos[%d]: skipping %q: %v", i, key, err)
				}
			}
		}
		out = append(out, p)
	}
	return out, nil
}
