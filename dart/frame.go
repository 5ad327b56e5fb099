package dart

// ParsedFrame is the result of walking a complete, delimited frame into its
// address, control byte and transaction stream.
type ParsedFrame struct {
	Addr         byte
	Ctrl         byte
	Transactions []Transaction
	CRC1, CRC2   byte // captured, never validated against the frame
}

// BuildFrame serializes address, control and transactions into a complete
// wire frame, computing the egress CRC over ADR‖CTRL‖transactions.
func BuildFrame(address, control byte, transactions []Transaction) ([]byte, error) {
	if !ValidAddress(address) {
		return nil, ErrInvalidAddress
	}
	if len(transactions) == 0 {
		return nil, ErrNoTransactions
	}

	buf := make([]byte, 0, MinFrameLen+8*len(transactions))
	buf = append(buf, address, control)
	for _, t := range transactions {
		var err error
		buf, err = t.appendWire(buf)
		if err != nil {
			return nil, err
		}
	}

	crc1, crc2 := splitCRC(crc16CCITT(buf))
	buf = append(buf, crc1, crc2, ETX, SF)
	return buf, nil
}

// ParseFrame decodes a single, already-delimited frame (as produced by
// ExtractFrames) into its address, control byte and transaction stream.
// The CRC bytes are captured but never checked; see crc16CCITT for why
// ingress does not validate them.
func ParseFrame(frame []byte) (ParsedFrame, error) {
	if len(frame) < MinFrameLen {
		return ParsedFrame{}, ErrMalformedFrame
	}
	n := len(frame)
	if frame[n-2] != ETX || frame[n-1] != SF {
		return ParsedFrame{}, ErrMalformedFrame
	}
	addr := frame[0]
	if !ValidAddress(addr) {
		return ParsedFrame{}, ErrMalformedFrame
	}

	end := n - 4 // transactions occupy [2:end); CRC1,CRC2,ETX,SF follow
	var txs []Transaction
	for i := 2; i < end; {
		if i+2 > end {
			break // header itself would spill past the trailer
		}
		trans := frame[i]
		lng := int(frame[i+1])
		dataStart := i + 2
		dataEnd := dataStart + lng
		if dataEnd > end {
			break // out-of-bounds LNG
		}
		data := make([]byte, lng)
		copy(data, frame[dataStart:dataEnd])
		txs = append(txs, Transaction{Trans: trans, Data: data})

		if dataEnd == i {
			break // zero-progress guard
		}
		i = dataEnd
	}

	return ParsedFrame{
		Addr:         addr,
		Ctrl:         frame[1],
		Transactions: txs,
		CRC1:         frame[n-4],
		CRC2:         frame[n-3],
	}, nil
}

// overflowCap and overflowKeep bound the memory held by an ingress buffer
// that never completes a frame, e.g. under line noise.
const (
	overflowCap  = 1000
	overflowKeep = 500
)

// ExtractFrames scans buf from the start, filtering out wrapper blocks from
// line-sharing hardware and splitting on the ETX,SF terminator. It returns
// every complete frame found, in order, plus whatever trailing bytes did not
// yet complete a frame (the remainder the caller must prepend to the next
// read).
func ExtractFrames(buf []byte) (frames [][]byte, remainder []byte) {
	var candidate []byte

	for i := 0; i < len(buf); {
		if i+3 <= len(buf) && (buf[i] == 0x50 || buf[i] == 0x51) && buf[i+2] == SF {
			i += 3
			continue
		}

		candidate = append(candidate, buf[i])
		i++

		if n := len(candidate); n >= 2 && candidate[n-2] == ETX && candidate[n-1] == SF {
			frames = append(frames, candidate)
			candidate = nil
		}
	}

	remainder = candidate
	if len(remainder) > overflowCap {
		remainder = append([]byte(nil), remainder[len(remainder)-overflowKeep:]...)
	}
	return frames, remainder
}

// Cleanup bounds the memory held by a stateful ingress buffer between
// extraction batches. It discards everything up to and including the last
// complete frame terminator, or, if none is present and the buffer has
// grown past overflowCap, keeps only the trailing overflowKeep bytes.
func Cleanup(buf []byte) []byte {
	for i := len(buf) - 2; i >= 0; i-- {
		if buf[i] == ETX && buf[i+1] == SF {
			return append([]byte(nil), buf[i+2:]...)
		}
	}
	if len(buf) > overflowCap {
		return append([]byte(nil), buf[len(buf)-overflowKeep:]...)
	}
	return buf
}
