package restyutil

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// AttachDebugOutput registers hooks that write each completed exchange
// to the output, numbered in request order. A nil output makes the
// function a no-op, so callers can pass their configured output through
// unconditionally.
func AttachDebugOutput(client *resty.Client, output Output) {
	if output == nil {
		return
	}

	var idcounter uint64

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		ctx := res.Request.Context()
		if !slog.Default().Enabled(ctx, slog.LevelDebug) {
			return nil
		}
		messageId := strconv.FormatUint(atomic.AddUint64(&idcounter, 1), 10)
		output.Write(messageId, FormatHttpMessage(res))
		slog.DebugContext(
			ctx, "dumped http exchange",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"message_id", messageId,
		)
		return nil
	})
}
