package consts

const (
	MimePrefixImage = "image"
	MimePrefixAudio = "audio"
)

const (
	// NudgeSound is the sound effect id played on a received nudge.
	NudgeSound = "nudge"
)

const (
	MaxMessageBytes = 4096
	MaxMessageRunes = 2000
)
