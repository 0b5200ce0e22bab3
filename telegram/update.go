package telegram

import (
	"encoding/json"

	"github.com/goliatone/go-commercebot/core"
	"github.com/goliatone/go-commercebot/inbound"
)

// Update is the Bot API webhook envelope, narrowed to the fields the
// relay consumes.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	MessageID int64    `json:"message_id"`
	From      *User    `json:"from"`
	Chat      Chat     `json:"chat"`
	Text      string   `json:"text"`
	Contact   *Contact `json:"contact"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Contact struct {
	PhoneNumber string `json:"phone_number"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// DecodeUpdate parses a webhook request body.
func DecodeUpdate(body []byte) (Update, error) {
	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return Update{}, core.BadInputError{Reason: "malformed update payload"}
	}
	return update, nil
}

// Normalize projects the envelope onto the transport-neutral update the
// router classifies. ok is false for envelope shapes the relay does not
// handle (edits, channel posts, callbacks without an origin chat).
func (u Update) Normalize() (inbound.Update, bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat.ID == 0 {
			return inbound.Update{}, false
		}
		return inbound.Update{
			UpdateID:       u.UpdateID,
			ConversationID: cb.Message.Chat.ID,
			Sender:         senderProfile(cb.From),
			CallbackID:     cb.ID,
			CallbackData:   cb.Data,
		}, true
	}

	if msg := u.Message; msg != nil {
		if msg.Chat.ID == 0 {
			return inbound.Update{}, false
		}
		projected := inbound.Update{
			UpdateID:       u.UpdateID,
			ConversationID: msg.Chat.ID,
			Sender:         senderProfile(msg.From),
			Text:           msg.Text,
		}
		if msg.Contact != nil {
			projected.ContactPhone = msg.Contact.PhoneNumber
		}
		return projected, true
	}

	return inbound.Update{}, false
}

func senderProfile(user *User) core.SenderProfile {
	if user == nil {
		return core.SenderProfile{}
	}
	return core.SenderProfile{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Handle:    user.Username,
	}
}
