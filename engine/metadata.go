package engine

import (
	"encoding/binary"

	"github.com/ulala-x/zlink/zlerr"
)

// encodeMetadata renders the HELLO/READY property dictionary (spec section
// 4.5): repeated (1-byte key length, key, 4-byte big-endian value length,
// value) tuples with no trailing terminator — the caller already knows the
// frame's total length from the ZMP header.
func encodeMetadata(props map[string]string) []byte {
	var out []byte
	for k, v := range props {
		out = append(out, byte(len(k)))
		out = append(out, k...)
		var vlen [4]byte
		binary.BigEndian.PutUint32(vlen[:], uint32(len(v)))
		out = append(out, vlen[:]...)
		out = append(out, v...)
	}
	return out
}

func decodeMetadata(body []byte) (map[string]string, error) {
	props := make(map[string]string)
	for len(body) > 0 {
		klen := int(body[0])
		body = body[1:]
		if len(body) < klen+4 {
			return nil, zlerr.New(zlerr.ProtocolError, "metadata: truncated key/length")
		}
		key := string(body[:klen])
		body = body[klen:]
		vlen := int(binary.BigEndian.Uint32(body[:4]))
		body = body[4:]
		if len(body) < vlen {
			return nil, zlerr.New(zlerr.ProtocolError, "metadata: truncated value")
		}
		props[key] = string(body[:vlen])
		body = body[vlen:]
	}
	return props, nil
}
