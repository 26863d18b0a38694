package engine

import (
	"fmt"
	"github.com/Jbbrack03/Code-Server-Mobile-sub001/pkg/protocol"
	"go.uber.org/zap"
)

func (engine *Engine) dispatch(client *Client, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		client.logger.Debug("received a malformed message", zap.Error(err))
		replyError(client, protocol.CodeMalformed, err.Error())

		return
	}

	switch msg.Type {
	case protocol.TypeTerminalInput:
		engine.handleInput(client, msg)
	case protocol.TypeTerminalSelect:
		engine.handleSelect(client, msg)
	case protocol.TypeTerminalResize:
		engine.handleResize(client, msg)
	case protocol.TypeTerminalList:
		client.Send(protocol.MustNew(protocol.TypeTerminalList, engine.ListPayload()))
	case protocol.TypeConnectionPing:
		client.refreshLiveness(engine.now())
		client.Send(protocol.MustNew(protocol.TypeConnectionPong, nil))
	default:
		// Output, pong and error are only ever sent by the relay
		if msg.Type.Known() {
			replyError(client, protocol.CodeUnexpectedType,
				fmt.Sprintf("message type %q is only sent by the relay", msg.Type))

			return
		}

		replyError(client, protocol.CodeUnknownType, fmt.Sprintf("unsupported message type %q", msg.Type))
	}
}

func (engine *Engine) handleInput(client *Client, msg *protocol.Message) {
	var payload protocol.InputPayload
	if err := msg.DecodePayload(&payload); err != nil {
		replyError(client, protocol.CodeMalformed, err.Error())
		return
	}

	if client.limiter != nil && !client.limiter.Allow() {
		replyError(client, protocol.CodeRateLimited, "too much terminal input, slow down")
		return
	}

	// Unknown sessions are not worth bothering the client about
	if _, ok := engine.Input(payload.SessionID, payload.Data); !ok {
		client.logger.Debug("ignoring input for an unknown session", SessionField(payload.SessionID))
	}
}

func (engine *Engine) handleSelect(client *Client, msg *protocol.Message) {
	var payload protocol.SelectPayload
	if err := msg.DecodePayload(&payload); err != nil {
		replyError(client, protocol.CodeMalformed, err.Error())
		return
	}

	if !engine.Select(payload.SessionID) {
		replyError(client, protocol.CodeUnknownSession, fmt.Sprintf("session %q not found", payload.SessionID))
	}
}

func (engine *Engine) handleResize(client *Client, msg *protocol.Message) {
	var payload protocol.ResizePayload
	if err := msg.DecodePayload(&payload); err != nil {
		replyError(client, protocol.CodeMalformed, err.Error())
		return
	}

	cols, rows, err := protocol.ParseDimensions(payload.Cols, payload.Rows)
	if err != nil {
		replyError(client, protocol.CodeInvalidSize, err.Error())
		return
	}

	if !engine.Resize(payload.SessionID, cols, rows) {
		replyError(client, protocol.CodeUnknownSession, fmt.Sprintf("session %q not found", payload.SessionID))
	}
}

func replyError(client *Client, code, message string) {
	client.Send(protocol.MustNew(protocol.TypeError, protocol.ErrorPayload{
		Code:    code,
		Message: message,
	}))
}
