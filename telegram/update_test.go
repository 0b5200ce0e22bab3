package telegram

import (
	"testing"
)

func TestDecodeUpdate_Message(t *testing.T) {
	raw := []byte(`{
		"update_id": 900,
		"message": {
			"message_id": 10,
			"from": {"id": 555, "first_name": "Amal", "username": "amal"},
			"chat": {"id": 555},
			"text": "سكر"
		}
	}`)
	update, err := DecodeUpdate(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	projected, ok := update.Normalize()
	if !ok {
		t.Fatal("expected message update to normalize")
	}
	if projected.UpdateID != 900 || projected.ConversationID != 555 || projected.Text != "سكر" {
		t.Fatalf("unexpected projection %+v", projected)
	}
	if projected.Sender.FirstName != "Amal" || projected.Sender.Handle != "amal" {
		t.Fatalf("unexpected sender %+v", projected.Sender)
	}
}

func TestDecodeUpdate_ContactShare(t *testing.T) {
	raw := []byte(`{
		"update_id": 901,
		"message": {
			"chat": {"id": 555},
			"contact": {"phone_number": "+963911111111"}
		}
	}`)
	update, err := DecodeUpdate(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	projected, ok := update.Normalize()
	if !ok || projected.ContactPhone != "+963911111111" {
		t.Fatalf("unexpected projection %+v ok=%v", projected, ok)
	}
}

func TestDecodeUpdate_CallbackQuery(t *testing.T) {
	raw := []byte(`{
		"update_id": 902,
		"callback_query": {
			"id": "cb77",
			"from": {"id": 555, "first_name": "Amal"},
			"message": {"chat": {"id": 555}},
			"data": "order_42"
		}
	}`)
	update, err := DecodeUpdate(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	projected, ok := update.Normalize()
	if !ok {
		t.Fatal("expected callback update to normalize")
	}
	if projected.CallbackID != "cb77" || projected.CallbackData != "order_42" || projected.ConversationID != 555 {
		t.Fatalf("unexpected projection %+v", projected)
	}
}

func TestNormalize_UnhandledShapesDropped(t *testing.T) {
	for name, raw := range map[string]string{
		"empty envelope":        `{"update_id": 1}`,
		"callback without chat": `{"update_id": 2, "callback_query": {"id": "cb", "data": "order_1"}}`,
	} {
		update, err := DecodeUpdate([]byte(raw))
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if _, ok := update.Normalize(); ok {
			t.Fatalf("%s: expected drop", name)
		}
	}
}

func TestDecodeUpdate_MalformedBody(t *testing.T) {
	if _, err := DecodeUpdate([]byte(`{"update_id": `)); err == nil {
		t.Fatal("expected decode error")
	}
}
