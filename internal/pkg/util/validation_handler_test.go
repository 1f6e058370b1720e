package util

import "testing"

type sample struct {
	ID    string `json:"messageId" validate:"required"`
	Emoji string `json:"emoji" validate:"max=4"`
	Note  string `validate:"omitempty,min=2"`
}

func TestValidateDTO(t *testing.T) {
	tests := []struct {
		name string
		dto  sample
		want string
	}{
		{"valid", sample{ID: "m1", Emoji: "👍"}, ""},
		{"missing id uses json name", sample{}, "field [messageId] failed rule [required]"},
		{"param is reported", sample{ID: "m1", Emoji: "too long"}, "field [emoji] failed rule [max=4]"},
		{"untagged field keeps go name", sample{ID: "m1", Note: "x"}, "field [Note] failed rule [min=2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDTO(&tt.dto)
			if tt.want == "" {
				if err != nil {
					t.Errorf("valid dto rejected: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.want {
				t.Errorf("err = %v, want %s", err, tt.want)
			}
		})
	}
}
