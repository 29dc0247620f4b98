package kafka

import (
	"encoding/json"
	"testing"
)

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "run-1", Value: map[string]int{"records": 2}},
		{Key: "run-2", Value: "plain"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(msgs) != 2 || string(msgs[0].Key) != "run-1" {
		t.Fatalf("messages = %+v", msgs)
	}
	var v map[string]int
	if err := json.Unmarshal(msgs[0].Value, &v); err != nil || v["records"] != 2 {
		t.Errorf("value = %s, %v", msgs[0].Value, err)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := encode([]Event{{Key: "bad", Value: make(chan int)}}); err == nil {
		t.Error("encode accepted a channel value")
	}
}
