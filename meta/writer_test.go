package meta

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWriteRequest(t *testing.T) {
	tests := []struct {
		name     string
		req      *Request
		expected string
	}{
		{
			name:     "basic get",
			req:      NewRequest(CmdGet, "mykey", nil),
			expected: "mg mykey\r\n",
		},
		{
			name:     "get with flags",
			req:      NewRequest(CmdGet, "mykey", nil).AddReturnValue().AddReturnCAS().AddReturnTTL(),
			expected: "mg mykey v c t\r\n",
		},
		{
			name:     "get with opaque and recache",
			req:      NewRequest(CmdGet, "mykey", nil).AddReturnValue().AddOpaque("tok").AddRecache(30 * time.Second),
			expected: "mg mykey v Otok R30\r\n",
		},
		{
			name:     "set",
			req:      NewRequest(CmdSet, "mykey", []byte("hello")),
			expected: "ms mykey 5\r\nhello\r\n",
		},
		{
			name:     "set empty value",
			req:      NewRequest(CmdSet, "mykey", []byte{}),
			expected: "ms mykey 0\r\n\r\n",
		},
		{
			name:     "set with ttl mode and client flags",
			req:      NewRequest(CmdSet, "mykey", []byte("hi")).AddTTL(time.Minute).AddMode(ModeAdd).AddClientFlags(30),
			expected: "ms mykey 2 T60 ME F30\r\nhi\r\n",
		},
		{
			name:     "set value containing CRLF",
			req:      NewRequest(CmdSet, "mykey", []byte("a\r\nb")),
			expected: "ms mykey 4\r\na\r\nb\r\n",
		},
		{
			name:     "delete",
			req:      NewRequest(CmdDelete, "mykey", nil).AddQuiet(),
			expected: "md mykey q\r\n",
		},
		{
			name:     "arithmetic",
			req:      NewRequest(CmdArithmetic, "counter", nil).AddReturnValue().AddDelta(5).AddInitialValue(5).AddVivify(0),
			expected: "ma counter v D5 J5 N0\r\n",
		},
		{
			name:     "decrement",
			req:      NewRequest(CmdArithmetic, "counter", nil).AddMode(ModeDecrement).AddDelta(2),
			expected: "ma counter MD D2\r\n",
		},
		{
			name:     "debug",
			req:      NewRequest(CmdDebug, "mykey", nil),
			expected: "me mykey\r\n",
		},
		{
			name:     "noop ignores key",
			req:      NewRequest(CmdNoOp, "ignored", nil),
			expected: "mn\r\n",
		},
		{
			name:     "base64 key may contain anything",
			req:      NewRequest(CmdGet, "a b", nil).AddBase64Key(),
			expected: "mg a b b\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteRequest(&buf, tt.req); err != nil {
				t.Fatalf("WriteRequest failed: %v", err)
			}
			if got := buf.String(); got != tt.expected {
				t.Errorf("WriteRequest() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestWriteRequest_SingleWrite(t *testing.T) {
	w := &countingWriter{}
	req := NewRequest(CmdSet, "mykey", bytes.Repeat([]byte("x"), 10000)).AddTTL(time.Hour)

	if err := WriteRequest(w, req); err != nil {
		t.Fatalf("WriteRequest failed: %v", err)
	}
	if w.writes != 1 {
		t.Errorf("writes = %d, want 1", w.writes)
	}
}

func TestWriteRequest_InvalidKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("k", MaxKeyLength+1)},
		{"space", "my key"},
		{"newline", "my\nkey"},
		{"carriage return", "my\rkey"},
		{"tab", "my\tkey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := WriteRequest(&buf, NewRequest(CmdGet, tt.key, nil))

			var keyErr *InvalidKeyError
			if !errors.As(err, &keyErr) {
				t.Fatalf("WriteRequest() error = %v, want *InvalidKeyError", err)
			}
			if buf.Len() != 0 {
				t.Errorf("wrote %q on invalid key", buf.String())
			}
		})
	}
}

func TestValidateKey_MaxLength(t *testing.T) {
	if err := ValidateKey(strings.Repeat("k", MaxKeyLength), false); err != nil {
		t.Errorf("ValidateKey(250 bytes) = %v, want nil", err)
	}
}

func TestWriteRequests(t *testing.T) {
	w := &countingWriter{}
	err := WriteRequests(w,
		NewRequest(CmdGet, "k1", nil).AddReturnValue().AddQuiet(),
		NewRequest(CmdGet, "k2", nil).AddReturnValue().AddQuiet(),
		NewRequest(CmdNoOp, "", nil),
	)
	if err != nil {
		t.Fatalf("WriteRequests failed: %v", err)
	}

	want := "mg k1 v q\r\nmg k2 v q\r\nmn\r\n"
	if got := w.buf.String(); got != want {
		t.Errorf("WriteRequests() = %q, want %q", got, want)
	}
	if w.writes != 1 {
		t.Errorf("writes = %d, want 1", w.writes)
	}

	w = &countingWriter{}
	err = WriteRequests(w, NewRequest(CmdGet, "ok", nil), NewRequest(CmdGet, "not ok", nil))
	if err == nil {
		t.Fatal("WriteRequests() with an invalid key succeeded")
	}
	if w.writes != 0 {
		t.Errorf("writes = %d, want 0", w.writes)
	}
}

type countingWriter struct {
	buf    bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.buf.Write(p)
}
