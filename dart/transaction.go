package dart

import "fmt"

// Transaction is one TRANS/LNG/DATA unit, the smallest addressable piece of
// a DART frame. Several can be packed into a single frame.
type Transaction struct {
	Trans byte
	Data  []byte
}

// Lng is the wire length byte for this transaction's data.
func (t Transaction) Lng() (byte, error) {
	if len(t.Data) > 0xFF {
		return 0, fmt.Errorf("%w: transaction %d data too long (%d bytes)", ErrInvalidArgument, t.Trans, len(t.Data))
	}
	return byte(len(t.Data)), nil
}

// appendWire appends this transaction's TRANS, LNG and DATA bytes to buf.
func (t Transaction) appendWire(buf []byte) ([]byte, error) {
	lng, err := t.Lng()
	if err != nil {
		return nil, err
	}
	buf = append(buf, t.Trans, lng)
	buf = append(buf, t.Data...)
	return buf, nil
}
