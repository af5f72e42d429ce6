package proxy

import (
	"context"
	"io"

	"go.uber.org/zap"
)

// relayBufferFrames bounds the number of in-flight upstream chunks. A full
// channel suspends the producer, which transitively applies backpressure to
// the upstream read instead of buffering the stream in memory.
const relayBufferFrames = 16

const relayReadSize = 32 * 1024

// relayFrames pulls chunks from the upstream body and hands them to the
// response loop through a bounded channel, preserving arrival order. The
// producer stops on upstream error (the client sees a truncated stream, no
// error frame is synthesized) and on context cancellation, which releases the
// upstream connection when the client disconnects.
func relayFrames(ctx context.Context, upstream io.Reader, logger *zap.Logger) <-chan []byte {
	frames := make(chan []byte, relayBufferFrames)

	go func() {
		defer close(frames)
		buf := make([]byte, relayReadSize)
		for {
			n, err := upstream.Read(buf)
			if n > 0 {
				frame := make([]byte, n)
				copy(frame, buf[:n])
				select {
				case frames <- frame:
				case <-ctx.Done():
					logger.Warn("client disconnected, abandoning upstream stream")
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					logger.Warn("error receiving upstream chunk", zap.Error(err))
				}
				return
			}
		}
	}()

	return frames
}
