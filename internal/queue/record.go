package queue

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
)

// Message record: headerLen(4B BE) | header JSON | body | crc32c(header|body)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var errCorruptRecord = errors.New("corrupt message record")

// msgHeader is the JSON header stored alongside the body.
type msgHeader struct {
	Attrs    map[string]Attribute `json:"attrs,omitempty"`
	Group    string               `json:"group,omitempty"`
	DedupKey string               `json:"dedupKey,omitempty"`
}

func encodeRecord(h msgHeader, body []byte) ([]byte, error) {
	header, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 4+len(header)+len(body)+4)
	var hb [4]byte
	binary.BigEndian.PutUint32(hb[:], uint32(len(header)))
	out = append(out, hb[:]...)
	out = append(out, header...)
	out = append(out, body...)
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, body)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc)
	out = append(out, cb[:]...)
	return out, nil
}

func decodeRecord(b []byte) (msgHeader, []byte, error) {
	if len(b) < 8 {
		return msgHeader{}, nil, errCorruptRecord
	}
	hlen := binary.BigEndian.Uint32(b[:4])
	if int(4+hlen+4) > len(b) {
		return msgHeader{}, nil, errCorruptRecord
	}
	headerEnd := 4 + int(hlen)
	header := b[4:headerEnd]
	body := b[headerEnd : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, body)
	if crc != expect {
		return msgHeader{}, nil, errCorruptRecord
	}
	var h msgHeader
	if err := json.Unmarshal(header, &h); err != nil {
		return msgHeader{}, nil, errCorruptRecord
	}
	return h, append([]byte(nil), body...), nil
}
