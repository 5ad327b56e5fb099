package dart

import (
	"errors"
	"fmt"
)

// ErrUnknownTransaction signals a structurally valid TRANS/LNG/DATA triple
// whose TRANS code this package doesn't recognize. It is never fatal: the
// caller logs it and keeps decoding the rest of the frame.
var ErrUnknownTransaction = errors.New("dart: unknown transaction")

// ErrTransactionTooShort signals a recognized TRANS code with fewer DATA
// bytes than its minimum layout requires.
var ErrTransactionTooShort = errors.New("dart: transaction shorter than minimum length")

// ErrPriceOutOfRange signals a DC3 whose decoded price falls outside
// [MinPrice, MaxPrice]. The record is not returned, so the transaction is
// dropped; see the note on MinPrice and MaxPrice in dart.go.
var ErrPriceOutOfRange = errors.New("dart: price out of range")

// ErrStatusUnrecognized signals a DC1 whose status byte isn't one of the
// documented codes. The record is not returned; PumpState.Status must never
// hold a value RecognizedStatus rejects.
var ErrStatusUnrecognized = errors.New("dart: status unrecognized")

// RecordKind discriminates the payload carried by a Record.
type RecordKind int

const (
	RecStatus RecordKind = iota
	RecVolumeAmount
	RecNozzlePrice
	RecAlarm
	RecPumpParams
	RecIdentity
	RecSuspendResume
	RecCounters
	RecStandAloneMode
	RecUnitPriceTable
)

// DC7Params is the decoded subset of the CD9/DC7 pump-parameters layout
// this package cares about; the rest of the 50+ byte payload is reserved.
type DC7Params struct {
	DpVol     byte
	DpAmo     byte
	DpUnp     byte
	MaxAmount float64
	Grades    []byte
}

// CounterRecord is a decoded DC101 total-counters reply.
type CounterRecord struct {
	Counter byte
	TotVal  uint64
	TotM1   uint64
	TotM2   uint64
}

// StandAloneMode is a decoded DC102 IFSF stand-alone-mode reply.
type StandAloneMode struct {
	Mode    byte
	Pressed bool
}

// Record is a decoded pump response: a tagged variant with Kind selecting
// which of the payload fields are meaningful. Trans carries the original
// wire TRANS code so callers that want it (logging, event fan-out) don't
// need a reverse lookup from Kind.
type Record struct {
	Kind  RecordKind
	Trans byte

	Status byte // RecStatus

	Volume float64 // RecVolumeAmount
	Amount float64 // RecVolumeAmount

	Price     float64 // RecNozzlePrice
	Nozzle    byte    // RecNozzlePrice, RecSuspendResume
	NozzleOut bool    // RecNozzlePrice

	Alarm byte // RecAlarm

	Params DC7Params // RecPumpParams

	Identity string // RecIdentity

	Counter CounterRecord // RecCounters

	StandAlone StandAloneMode // RecStandAloneMode

	UnitPrices []float64 // RecUnitPriceTable
}

// Decode runs the structural decoder on a single transaction, as produced
// by ParseFrame. It returns ErrUnknownTransaction for a TRANS code outside
// the catalogue, ErrTransactionTooShort when DATA is shorter than the
// minimum for a recognized TRANS, ErrPriceOutOfRange for a DC3 whose price
// fails the range clamp, and ErrStatusUnrecognized for a DC1 whose status
// byte isn't one of the documented codes.
func Decode(t Transaction) (Record, error) {
	switch t.Trans {
	case DC1:
		if len(t.Data) < 1 {
			return Record{}, shortErr(t.Trans, 1, len(t.Data))
		}
		if !RecognizedStatus(t.Data[0]) {
			return Record{}, fmt.Errorf("%w: 0x%02X", ErrStatusUnrecognized, t.Data[0])
		}
		return Record{Kind: RecStatus, Trans: t.Trans, Status: t.Data[0]}, nil

	case DC2:
		if len(t.Data) < 8 {
			return Record{}, shortErr(t.Trans, 8, len(t.Data))
		}
		return Record{
			Kind:   RecVolumeAmount,
			Trans:  t.Trans,
			Volume: DecodeVolOrAmount(t.Data[0:4]),
			Amount: DecodeVolOrAmount(t.Data[4:8]),
		}, nil

	case DC3:
		if len(t.Data) < 4 {
			return Record{}, shortErr(t.Trans, 4, len(t.Data))
		}
		price := DecodePrice(t.Data[0:3])
		if price < MinPrice || price > MaxPrice {
			return Record{}, ErrPriceOutOfRange
		}
		return Record{
			Kind:      RecNozzlePrice,
			Trans:     t.Trans,
			Price:     price,
			Nozzle:    t.Data[3] & 0x0F,
			NozzleOut: t.Data[3]&0x10 != 0,
		}, nil

	case DC5:
		if len(t.Data) < 1 {
			return Record{}, shortErr(t.Trans, 1, len(t.Data))
		}
		return Record{Kind: RecAlarm, Trans: t.Trans, Alarm: t.Data[0]}, nil

	case DC7:
		if len(t.Data) < 50 {
			return Record{}, shortErr(t.Trans, 50, len(t.Data))
		}
		grades := make([]byte, 15)
		copy(grades, t.Data[35:50])
		return Record{
			Kind:  RecPumpParams,
			Trans: t.Trans,
			Params: DC7Params{
				DpVol:     t.Data[22],
				DpAmo:     t.Data[23],
				DpUnp:     t.Data[24],
				MaxAmount: DecodeVolOrAmount(t.Data[29:33]),
				Grades:    grades,
			},
		}, nil

	case DC9:
		if len(t.Data) < 5 {
			return Record{}, shortErr(t.Trans, 5, len(t.Data))
		}
		return Record{Kind: RecIdentity, Trans: t.Trans, Identity: DecodeIdentity(t.Data[0:5])}, nil

	case DC14, DC15:
		if len(t.Data) < 1 {
			return Record{}, shortErr(t.Trans, 1, len(t.Data))
		}
		return Record{Kind: RecSuspendResume, Trans: t.Trans, Nozzle: t.Data[0]}, nil

	case DC101:
		if len(t.Data) < 11 {
			return Record{}, shortErr(t.Trans, 11, len(t.Data))
		}
		rec := CounterRecord{
			Counter: t.Data[0],
			TotVal:  DecodeBCD(t.Data[1:6]),
			TotM1:   DecodeBCD(t.Data[6:11]),
		}
		if len(t.Data) >= 16 {
			rec.TotM2 = DecodeBCD(t.Data[11:16])
		}
		return Record{Kind: RecCounters, Trans: t.Trans, Counter: rec}, nil

	case DC102:
		if len(t.Data) < 2 {
			return Record{}, shortErr(t.Trans, 2, len(t.Data))
		}
		return Record{
			Kind:       RecStandAloneMode,
			Trans:      t.Trans,
			StandAlone: StandAloneMode{Mode: t.Data[0], Pressed: t.Data[1] != 0},
		}, nil

	case DC103:
		n := len(t.Data) / 3
		prices := make([]float64, n)
		for i := 0; i < n; i++ {
			prices[i] = DecodePrice(t.Data[3*i : 3*i+3])
		}
		return Record{Kind: RecUnitPriceTable, Trans: t.Trans, UnitPrices: prices}, nil

	default:
		return Record{}, fmt.Errorf("%w: trans %d", ErrUnknownTransaction, t.Trans)
	}
}

func shortErr(trans byte, want, got int) error {
	return fmt.Errorf("%w: trans %d wants >= %d bytes, got %d", ErrTransactionTooShort, trans, want, got)
}
