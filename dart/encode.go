package dart

import "fmt"

// Command is a tagged variant of every supervisor-to-pump request this
// package can encode. Kind selects which fields apply; Encode rejects a
// Command whose fields don't validate for its Kind before any byte is
// produced, per the encode-side error policy (no partial frame is ever
// emitted).
type Command struct {
	Kind byte // one of the CD* constants

	Cmd         byte      // CD1
	Nozzles     []byte    // CD2
	Volume      float64   // CD3
	Amount      float64   // CD4
	Prices      []float64 // CD5
	Function    byte      // CD7
	OutputCmd   byte      // CD7
	Params      PumpParams // CD9
	FillingType byte      // CD13
	Nozzle      byte      // CD14, CD15
	Counter     byte      // CD101
}

// PumpParams is the CD9 payload. Fields not provided default to zero, which
// is also the wire representation of "unset" in the reserved regions.
type PumpParams struct {
	DpVol     byte
	DpAmo     byte
	DpUnp     byte
	MaxAmount float64
}

// recognizedCD1 lists the CD1 command bytes the encoder accepts.
var recognizedCD1 = map[byte]bool{
	0x00: true, 0x02: true, 0x03: true, 0x04: true, 0x05: true, 0x06: true,
	0x08: true, 0x0A: true, 0x0D: true, 0x0E: true, 0x0F: true,
}

// Encode turns a Command into its wire transaction.
func (c Command) Encode() (Transaction, error) {
	switch c.Kind {
	case CD1:
		if !recognizedCD1[c.Cmd] {
			return Transaction{}, fmt.Errorf("%w: unrecognized CD1 command 0x%02X", ErrInvalidArgument, c.Cmd)
		}
		return Transaction{Trans: CD1, Data: []byte{c.Cmd}}, nil

	case CD2:
		if len(c.Nozzles) == 0 {
			return Transaction{}, fmt.Errorf("%w: CD2 needs at least one nozzle", ErrInvalidArgument)
		}
		for _, n := range c.Nozzles {
			if n < 1 || n > 15 {
				return Transaction{}, fmt.Errorf("%w: nozzle %d out of [1,15]", ErrInvalidArgument, n)
			}
		}
		return Transaction{Trans: CD2, Data: append([]byte(nil), c.Nozzles...)}, nil

	case CD3:
		data, err := EncodeVolOrAmount(c.Volume)
		if err != nil {
			return Transaction{}, err
		}
		return Transaction{Trans: CD3, Data: data}, nil

	case CD4:
		data, err := EncodeVolOrAmount(c.Amount)
		if err != nil {
			return Transaction{}, err
		}
		return Transaction{Trans: CD4, Data: data}, nil

	case CD5:
		if len(c.Prices) == 0 {
			return Transaction{}, fmt.Errorf("%w: CD5 needs at least one price", ErrInvalidArgument)
		}
		data := make([]byte, 0, 3*len(c.Prices))
		for _, p := range c.Prices {
			enc, err := EncodePrice(p)
			if err != nil {
				return Transaction{}, err
			}
			data = append(data, enc...)
		}
		return Transaction{Trans: CD5, Data: data}, nil

	case CD7:
		return Transaction{Trans: CD7, Data: []byte{c.Function, c.OutputCmd}}, nil

	case CD9:
		data, err := encodeCD9(c.Params)
		if err != nil {
			return Transaction{}, err
		}
		return Transaction{Trans: CD9, Data: data}, nil

	case CD13:
		if c.FillingType != 0 && c.FillingType != 1 {
			return Transaction{}, fmt.Errorf("%w: filling type %d not in {0,1}", ErrInvalidArgument, c.FillingType)
		}
		return Transaction{Trans: CD13, Data: []byte{c.FillingType}}, nil

	case CD14, CD15:
		if c.Nozzle > 15 {
			return Transaction{}, fmt.Errorf("%w: nozzle %d out of [0,15]", ErrInvalidArgument, c.Nozzle)
		}
		return Transaction{Trans: c.Kind, Data: []byte{c.Nozzle}}, nil

	case CD101:
		if !validCounterID(c.Counter) {
			return Transaction{}, fmt.Errorf("%w: counter id 0x%02X not in [0x01,0x09]∪[0x11,0x19]", ErrInvalidArgument, c.Counter)
		}
		return Transaction{Trans: CD101, Data: []byte{c.Counter}}, nil

	default:
		return Transaction{}, fmt.Errorf("%w: unknown command kind %d", ErrInvalidArgument, c.Kind)
	}
}

func validCounterID(id byte) bool {
	return (id >= 0x01 && id <= 0x09) || (id >= 0x11 && id <= 0x19)
}

// cd9Layout mirrors the 51-byte CD9 wire layout: 22 reserved, dpVol, dpAmo,
// dpUnp, 5 reserved, 4-byte maxAmount, 17 reserved. The reserved-byte count
// is unconfirmed against the real pump firmware; this is the layout
// observed in the reference deployment.
const (
	cd9ReservedHead = 22
	cd9ReservedMid  = 5
	cd9ReservedTail = 17
	cd9Len          = cd9ReservedHead + 3 + cd9ReservedMid + 4 + cd9ReservedTail
)

func encodeCD9(p PumpParams) ([]byte, error) {
	data := make([]byte, cd9Len)
	i := cd9ReservedHead
	data[i] = p.DpVol
	data[i+1] = p.DpAmo
	data[i+2] = p.DpUnp
	i += 3 + cd9ReservedMid

	maxAmount, err := EncodeVolOrAmount(p.MaxAmount)
	if err != nil {
		return nil, err
	}
	copy(data[i:i+4], maxAmount)
	return data, nil
}
