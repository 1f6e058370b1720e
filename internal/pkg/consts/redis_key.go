package consts

const (
	PresenceStatusKey       = "presence:status"
	PresenceOnDisconnectKey = "presence:ondisconnect"
	PresenceLeaseKey        = "presence:lease:"
	PresenceChangesChannel  = "presence:changes"
)
