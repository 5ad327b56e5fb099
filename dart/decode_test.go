package dart

import (
	"errors"
	"testing"
)

func TestDecodeDC1(t *testing.T) {
	rec, err := Decode(Transaction{Trans: DC1, Data: []byte{5}})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kind != RecStatus || rec.Status != 5 {
		t.Fatalf("got %+v", rec)
	}
}

func TestDecodeDC1UnrecognizedStatusDropped(t *testing.T) {
	for _, status := range []byte{3, 9, 0xFF} {
		_, err := Decode(Transaction{Trans: DC1, Data: []byte{status}})
		if !errors.Is(err, ErrStatusUnrecognized) {
			t.Fatalf("status 0x%02X: got err %v, want ErrStatusUnrecognized", status, err)
		}
	}
}

func TestDecodeDC2(t *testing.T) {
	data, err := EncodeVolOrAmount(12.34)
	if err != nil {
		t.Fatal(err)
	}
	amt, err := EncodeVolOrAmount(56.78)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := Decode(Transaction{Trans: DC2, Data: append(data, amt...)})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Volume != 12.34 || rec.Amount != 56.78 {
		t.Fatalf("got %+v", rec)
	}
}

// TestDecodeDC3PriceClamp is property P6 / scenario S3 / S5: a DC3 whose
// decoded price falls outside [0.5, 10.0] is dropped, not surfaced.
func TestDecodeDC3PriceClamp(t *testing.T) {
	// bytes from scenario S3: "03 04 00 21" -> price = decode_bcd(03 04 00)/1000 = 30.4
	_, err := Decode(Transaction{Trans: DC3, Data: []byte{0x03, 0x04, 0x00, 0x21}})
	if !errors.Is(err, ErrPriceOutOfRange) {
		t.Fatalf("got %v, want ErrPriceOutOfRange", err)
	}
}

func TestDecodeDC3InRange(t *testing.T) {
	// DecodePrice divides by 1000: BCD 00 35 00 -> 3500 / 1000 = 3.5
	price, err := EncodeBCD(3500, 3)
	if err != nil {
		t.Fatal(err)
	}
	data := append(price, 0x11) // nozzle 1, nozzle-out set
	rec, err := Decode(Transaction{Trans: DC3, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Price != 3.5 || rec.Nozzle != 1 || !rec.NozzleOut {
		t.Fatalf("got %+v", rec)
	}
}

func TestDecodeUnknownTransaction(t *testing.T) {
	_, err := Decode(Transaction{Trans: 200, Data: []byte{1}})
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("got %v, want ErrUnknownTransaction", err)
	}
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode(Transaction{Trans: DC2, Data: []byte{1, 2, 3}})
	if !errors.Is(err, ErrTransactionTooShort) {
		t.Fatalf("got %v, want ErrTransactionTooShort", err)
	}
}

func TestDecodeDC7(t *testing.T) {
	data := make([]byte, 50)
	data[22] = 1
	data[23] = 2
	data[24] = 3
	maxAmt, err := EncodeVolOrAmount(999.99)
	if err != nil {
		t.Fatal(err)
	}
	copy(data[29:33], maxAmt)
	for i := range data[35:50] {
		data[35+i] = byte(i + 1)
	}

	rec, err := Decode(Transaction{Trans: DC7, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Params.DpVol != 1 || rec.Params.DpAmo != 2 || rec.Params.DpUnp != 3 {
		t.Fatalf("got %+v", rec.Params)
	}
	if rec.Params.MaxAmount != 999.99 {
		t.Fatalf("got maxAmount %v", rec.Params.MaxAmount)
	}
	if len(rec.Params.Grades) != 15 || rec.Params.Grades[0] != 1 {
		t.Fatalf("got grades %v", rec.Params.Grades)
	}
}

func TestDecodeDC9Identity(t *testing.T) {
	data, err := EncodeBCD(1234567890, 5)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := Decode(Transaction{Trans: DC9, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Identity != "1234567890" {
		t.Fatalf("got %q", rec.Identity)
	}
}

func TestDecodeDC101Counters(t *testing.T) {
	totVal, _ := EncodeBCD(12345, 5)
	totM1, _ := EncodeBCD(678, 5)
	totM2, _ := EncodeBCD(9, 5)
	data := append([]byte{0x05}, totVal...)
	data = append(data, totM1...)

	rec, err := Decode(Transaction{Trans: DC101, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Counter.Counter != 5 || rec.Counter.TotVal != 12345 || rec.Counter.TotM1 != 678 || rec.Counter.TotM2 != 0 {
		t.Fatalf("got %+v", rec.Counter)
	}

	dataWithM2 := append(data, totM2...)
	rec2, err := Decode(Transaction{Trans: DC101, Data: dataWithM2})
	if err != nil {
		t.Fatal(err)
	}
	if rec2.Counter.TotM2 != 9 {
		t.Fatalf("got TotM2 %d, want 9", rec2.Counter.TotM2)
	}
}

func TestDecodeDC102(t *testing.T) {
	rec, err := Decode(Transaction{Trans: DC102, Data: []byte{1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if rec.StandAlone.Mode != 1 || !rec.StandAlone.Pressed {
		t.Fatalf("got %+v", rec.StandAlone)
	}
}

func TestDecodeDC103(t *testing.T) {
	// DecodePrice divides by 1000: 2500 -> 2.5, 3000 -> 3.0
	p1, _ := EncodeBCD(2500, 3)
	p2, _ := EncodeBCD(3000, 3)
	data := append(append([]byte{}, p1...), p2...)

	rec, err := Decode(Transaction{Trans: DC103, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.UnitPrices) != 2 || rec.UnitPrices[0] != 2.5 || rec.UnitPrices[1] != 3.0 {
		t.Fatalf("got %+v", rec.UnitPrices)
	}
}
