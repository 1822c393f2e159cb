package tunnel

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// wsStream adapts a websocket connection carrying binary frames to the
// io.ReadWriteCloser the bridge works with. One frame is one write; a
// read drains frames in order.
type wsStream struct {
	conn *websocket.Conn
	rd   io.Reader
}

// NewWSStream wraps an upgraded connection. The stream owns the
// connection and closes it.
func NewWSStream(conn *websocket.Conn) io.ReadWriteCloser {
	return &wsStream{conn: conn}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.rd == nil {
			kind, rd, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			s.rd = rd
		}
		n, err := s.rd.Read(p)
		if err == io.EOF {
			// Frame drained; the next Read pulls the next frame.
			s.rd = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return 0, err
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
