package protocol

import "encoding/json"

// Text is a chat text component. Login-phase packets carry it as JSON,
// later phases as NBT.
type Text struct {
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
	Bold  bool   `json:"bold,omitempty"`
}

// JSON returns the component encoded as JSON.
func (t Text) JSON() string {
	data, _ := json.Marshal(t)
	return string(data)
}

// NBT returns the component as an NBT compound.
func (t Text) NBT() Compound {
	c := Compound{"text": t.Text}
	if t.Color != "" {
		c["color"] = t.Color
	}
	if t.Bold {
		c["bold"] = int8(1)
	}
	return c
}

// TextFromNBT converts an NBT text value back into a Text. Plain string
// roots are accepted.
func TextFromNBT(v any) Text {
	switch x := v.(type) {
	case string:
		return Text{Text: x}
	case Compound:
		var t Text
		t.Text, _ = x["text"].(string)
		t.Color, _ = x["color"].(string)
		if b, ok := x["bold"].(int8); ok {
			t.Bold = b != 0
		}
		return t
	}
	return Text{}
}
