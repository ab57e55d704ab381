package modules

import (
	"context"

	"github.com/aukilabs/tilestream/messages"
	"github.com/aukilabs/tilestream/models"
	"github.com/aukilabs/tilestream/producer"
)

// Module is the interface that describes a module that extends the streaming
// server capabilities.
type Module interface {
	// Returns the module name.
	Name() string

	// Initializes the module for the session of the connected client.
	Init(*models.Session)

	// Handles a given message. Modules are free to decide whether they handle a
	// message.
	//
	// Returning an error typed messages.ErrTypeMsgSkip indicates that handling
	// a message was skipped.
	//
	// Any other returned errors causes the current WebSocket client to be
	// disconnected.
	HandleMsg(context.Context, messages.ResponseSender, messages.Msg) error

	// Handles a client disconnection.
	HandleDisconnect()
}

// ResultHandler is implemented by modules that produce tiles in the
// background.
type ResultHandler interface {
	Module

	// Returns the channel generation results are delivered on. A nil channel
	// means the module has nothing pending.
	Results() <-chan producer.Result

	// Applies a generation result. Errors follow the HandleMsg rules.
	HandleResult(context.Context, messages.ResponseSender, producer.Result) error
}
