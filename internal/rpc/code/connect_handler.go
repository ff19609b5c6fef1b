package code

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/patchpilot/patchpilot/internal/observability"
	"github.com/patchpilot/patchpilot/internal/rpc"
	"github.com/patchpilot/patchpilot/internal/rpc/connectjson"
	"github.com/patchpilot/patchpilot/internal/stream"
)

const ConnectCodeProcedure = "/connect.patchpilot.v1.CodeService/Code"

// NewConnectHandler builds a Connect bidi stream handler for coding
// sessions. The client sends one run message and may follow with a
// cancel message; the server streams progress events until terminal.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectCodeHandler{runner: runner, metrics: metrics}
	return ConnectCodeProcedure, connect.NewBidiStreamHandler(ConnectCodeProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectCodeHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectCodeHandler) handle(ctx context.Context, bidi *connect.BidiStream[rpc.CodeStreamRequest, stream.Event]) error {
	h.metrics.IncActiveSessions("connect")
	defer h.metrics.DecActiveSessions("connect")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := bidi.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Run == nil {
		h.metrics.RecordTransportError("connect", "missing_run")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include run payload"))
	}

	// Listen for cancellation messages from the client.
	go func() {
		for {
			msg, recvErr := bidi.Receive()
			if recvErr != nil {
				if !errors.Is(recvErr, context.Canceled) {
					h.metrics.RecordTransportError("connect", "receive_stream")
				}
				cancel()
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	events := h.runner.Run(ctx, *first.Run)
	for ev := range events {
		if err := bidi.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			for range events {
			}
			return err
		}
	}
	return nil
}
