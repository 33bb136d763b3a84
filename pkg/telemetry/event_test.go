package telemetry

import "testing"

func TestEvent_ArrayRoundtrip(t *testing.T) {
	e := Event{
		ID:     42,
		Origin: OriginInstrumentation,
		Type:   string(KindJsError),
		Time:   1234.5,
		Data: map[string]any{
			"message": "boom",
			"source":  "f.js",
		},
	}

	arr := e.ToArray()
	got, err := EventFromArray(arr)
	if err != nil {
		t.Fatalf("EventFromArray: %v", err)
	}

	if got.ID != e.ID || got.Origin != e.Origin || got.Type != e.Type || got.Time != e.Time {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, e)
	}
	if len(got.Data) != len(e.Data) {
		t.Fatalf("data length: got %d, want %d", len(got.Data), len(e.Data))
	}
	for k, v := range e.Data {
		if got.Data[k] != v {
			t.Fatalf("data[%q]: got %v, want %v", k, got.Data[k], v)
		}
	}
}

func TestEvent_ArrayRoundtrip_EmptyData(t *testing.T) {
	e := Event{ID: 1, Origin: OriginLayout, Type: "Layout", Time: 0, Data: map[string]any{}}
	got, err := EventFromArray(e.ToArray())
	if err != nil {
		t.Fatalf("EventFromArray: %v", err)
	}
	if len(got.Data) != 0 {
		t.Fatalf("expected empty data, got %v", got.Data)
	}
}

func TestEventFromArray_WrongLength(t *testing.T) {
	_, err := EventFromArray([]any{1, "a", "b"})
	if err == nil {
		t.Fatal("expected error for wrong-length array")
	}
}
