package controller

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/schilltyler/capstone-0/internal/protocol"
	"github.com/schilltyler/capstone-0/internal/protocol/frame"
	"github.com/schilltyler/capstone-0/internal/protocol/stream"
)

// Transport is the frame connection a Client drives.
type Transport interface {
	ReadFrame(f *frame.Frame) error
	WriteFrame(f *frame.Frame) error
	Close() error
}

// Client issues commands to one connected agent. Calls are sequential;
// only Cancel may run concurrently with an in-flight Stream.
type Client struct {
	t    Transport
	resp frame.Frame

	wmu sync.Mutex
	req frame.Frame
}

func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// RemoteAddr returns the agent address when the transport exposes one.
func (c *Client) RemoteAddr() net.Addr {
	if ra, ok := c.t.(interface{ RemoteAddr() net.Addr }); ok {
		return ra.RemoteAddr()
	}
	return nil
}

func (c *Client) Close() error {
	return c.t.Close()
}

// Send writes one request frame.
func (c *Client) Send(cmd protocol.Command, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.req.Reset(byte(cmd))
	if err := c.req.SetPayload(payload); err != nil {
		return err
	}
	return c.t.WriteFrame(&c.req)
}

// ReadFrame reads the next response frame. The returned frame is reused by
// the next read.
func (c *Client) ReadFrame(f *frame.Frame) error {
	return c.t.ReadFrame(f)
}

// Call sends a single-response command and returns its payload. An error
// response is returned as stream.ErrRemoteError.
func (c *Client) Call(cmd protocol.Command, payload []byte) ([]byte, error) {
	if err := c.Send(cmd, payload); err != nil {
		return nil, err
	}
	return c.expect(protocol.StatusOK)
}

// Stream sends cmd and passes every chunk to fn until the terminal frame.
func (c *Client) Stream(cmd protocol.Command, payload []byte, fn func([]byte) error) error {
	if err := c.Send(cmd, payload); err != nil {
		return err
	}
	return stream.Collect(c.t, fn)
}

// Download copies the remote file at path into w.
func (c *Client) Download(path string, w io.Writer) (int64, error) {
	var n int64
	err := c.Stream(protocol.CmdDownload, []byte(path), func(p []byte) error {
		m, err := w.Write(p)
		n += int64(m)
		return err
	})
	return n, err
}

// Upload replaces the remote file at path with the contents of r and
// returns the agent's completion text.
func (c *Client) Upload(path string, r io.Reader) (string, error) {
	return c.transfer(protocol.CmdUpload, path, r)
}

// Append adds the contents of r to the remote file at path.
func (c *Client) Append(path string, r io.Reader) (string, error) {
	return c.transfer(protocol.CmdAppend, path, r)
}

// transfer runs the outbound exchange: request, ready ack, one frame per
// chunk with a more-data ack each, then an empty completion frame.
func (c *Client) transfer(cmd protocol.Command, path string, r io.Reader) (string, error) {
	if err := c.Send(cmd, []byte(path)); err != nil {
		return "", err
	}
	if _, err := c.expect(protocol.StatusOK); err != nil {
		return "", err
	}

	buf := make([]byte, frame.PayloadCapacity)
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if err := c.Send(cmd, buf[:n]); err != nil {
				return "", err
			}
			if _, err := c.expect(protocol.StatusMoreData); err != nil {
				return "", err
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			_ = c.Send(protocol.CmdCancel, nil)
			_, _ = c.expect(protocol.StatusOK)
			return "", rerr
		}
	}

	if err := c.Send(cmd, nil); err != nil {
		return "", err
	}
	done, err := c.expect(protocol.StatusOK)
	if err != nil {
		return "", err
	}
	return string(done), nil
}

// Cancel asks the agent to stop the running stream. The stream still ends
// with its own terminal frame, which the caller's Stream consumes.
func (c *Client) Cancel() error {
	return c.Send(protocol.CmdCancel, nil)
}

// Exit ends the session. The agent closes without a response.
func (c *Client) Exit() error {
	return c.Send(protocol.CmdExit, nil)
}

func (c *Client) expect(want protocol.Status) ([]byte, error) {
	if err := c.t.ReadFrame(&c.resp); err != nil {
		return nil, err
	}
	switch got := protocol.Status(c.resp.Kind); got {
	case want:
		return append([]byte(nil), c.resp.Payload()...), nil
	case protocol.StatusError:
		return nil, fmt.Errorf("%w: %s", stream.ErrRemoteError, c.resp.Payload())
	default:
		return nil, protocol.ProtocolError("expect", fmt.Errorf("%w: got %s want %s", protocol.ErrUnexpectedFrame, got, want))
	}
}
