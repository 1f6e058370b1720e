package handler

import (
	"Huddle/internal/api/dto"
	"Huddle/internal/pkg/util"
	"Huddle/internal/service"

	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
)

// dispatch runs one command against the viewer's session and returns the
// ack payload.
func dispatch(sess *service.Session, cmd dto.Command) (any, error) {
	if err := util.ValidateDTO(&cmd); err != nil {
		return nil, errors.Wrap(service.ErrParamInvalid, err.Error())
	}

	switch cmd.Type {
	case dto.CmdOpen:
		var p dto.OpenCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		return nil, sess.Open(p.ConversationID)

	case dto.CmdOpenDM:
		var p dto.OpenDMCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		if err := sess.OpenDM(p.PeerID); err != nil {
			return nil, err
		}
		return dto.DMKeyDTO{Key: sess.ConversationID()}, nil

	case dto.CmdLoadMore:
		return nil, sess.LoadMore()

	case dto.CmdFilter:
		var p dto.FilterCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		return nil, sess.SetFilter(p.Query)

	case dto.CmdKeystroke:
		return nil, sess.Keystroke()

	case dto.CmdSend:
		var p dto.SendCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		var req service.SendRequest
		if err := copier.CopyWithOption(&req, &p, copier.Option{DeepCopy: true}); err != nil {
			return nil, errors.Wrap(err, "copy send command")
		}
		msg, err := sess.Send(req)
		if err != nil {
			return nil, err
		}
		var out dto.SentMessageDTO
		if err := copier.Copy(&out, &msg); err != nil {
			return nil, errors.Wrap(err, "copy sent message")
		}
		return out, nil

	case dto.CmdNudge:
		return nil, sess.Nudge()

	case dto.CmdReact:
		var p dto.ReactCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		return nil, sess.React(p.MessageID, p.Emoji)

	case dto.CmdPin:
		var p dto.MessageRefCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		pinned, err := sess.Pin(p.MessageID)
		if err != nil {
			return nil, err
		}
		return dto.PinResultDTO{MessageID: p.MessageID, Pinned: pinned}, nil

	case dto.CmdEdit:
		var p dto.EditCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		return nil, sess.Edit(p.MessageID, p.Text)

	case dto.CmdDelete:
		var p dto.MessageRefCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		return nil, sess.Delete(p.MessageID)

	case dto.CmdVisibility:
		var p dto.VisibilityCmd
		if err := decode(cmd.Data, &p); err != nil {
			return nil, err
		}
		sess.SetVisibility(p.Visible)
		return nil, nil
	}
	return nil, errors.Wrap(service.ErrParamInvalid, "unknown command "+cmd.Type)
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrap(service.ErrParamInvalid, err.Error())
	}
	if err := util.ValidateDTO(dst); err != nil {
		return errors.Wrap(service.ErrParamInvalid, err.Error())
	}
	return nil
}
