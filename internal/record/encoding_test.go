package record

import "testing"

func TestRecord_Size(t *testing.T) {
	r := Record{Key: []byte("key"), Value: []byte("value")}
	if got, want := r.Size(), HeaderSize+3+5; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	r := Record{Timestamp: 1234567890, Key: []byte("k-1"), Value: []byte("hello lkstream")}
	buf := Marshal(&r)

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Timestamp != r.Timestamp {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, r.Timestamp)
	}
	if string(got.Key) != string(r.Key) {
		t.Errorf("Key = %q, want %q", got.Key, r.Key)
	}
	if string(got.Value) != string(r.Value) {
		t.Errorf("Value = %q, want %q", got.Value, r.Value)
	}
}

func TestMarshalUnmarshal_NilKey(t *testing.T) {
	r := Record{Timestamp: 1, Value: []byte("v")}
	buf := Marshal(&r)

	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Key) != 0 {
		t.Errorf("Key = %q, want empty", got.Key)
	}
}

func TestUnmarshal_CorruptCRC(t *testing.T) {
	r := Record{Timestamp: 1, Key: []byte("k"), Value: []byte("v")}
	buf := Marshal(&r)
	buf[len(buf)-1] ^= 0xFF

	if _, err := Unmarshal(buf); err == nil {
		t.Fatal("expected CRC mismatch to surface as an error")
	}
}

func TestUnmarshal_TruncatedBuffer(t *testing.T) {
	r := Record{Timestamp: 1, Key: []byte("k"), Value: []byte("v")}
	buf := Marshal(&r)

	if _, err := Unmarshal(buf[:HeaderSize-1]); err == nil {
		t.Fatal("expected a short header to be rejected")
	}
	if _, err := Unmarshal(buf[:len(buf)-1]); err == nil {
		t.Fatal("expected a truncated value to be rejected")
	}
}
