package serial

import "testing"

func TestOpenRejectsUnsupportedBaud(t *testing.T) {
	tr := New(Config{Device: "/dev/null", Baud: 4800})
	err := tr.Open()
	if err == nil {
		t.Fatal("expected an error for an unsupported baud rate")
	}
}

func TestWriteFrameBeforeOpenFails(t *testing.T) {
	tr := New(Config{Device: "/dev/ttyDART0", Baud: 9600})
	if err := tr.WriteFrame([]byte{0x50, 0x00}); err != ErrNotOpen {
		t.Fatalf("got %v, want ErrNotOpen", err)
	}
}

func TestReadBeforeOpenFails(t *testing.T) {
	tr := New(Config{Device: "/dev/ttyDART0", Baud: 9600})
	buf := make([]byte, 16)
	if _, err := tr.Read(buf); err != ErrNotOpen {
		t.Fatalf("got %v, want ErrNotOpen", err)
	}
}

func TestCloseBeforeOpenIsNoop(t *testing.T) {
	tr := New(Config{Device: "/dev/ttyDART0", Baud: 9600})
	if err := tr.Close(); err != nil {
		t.Fatalf("close before open should be a no-op, got %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := Config{Device: "/dev/ttyDART0", Baud: 19200}
	tr := New(cfg)
	if got := tr.Config(); got != cfg {
		t.Fatalf("got %+v, want %+v", got, cfg)
	}
	if tr.IsOpen() {
		t.Fatal("a freshly constructed transport must not report open")
	}
}
