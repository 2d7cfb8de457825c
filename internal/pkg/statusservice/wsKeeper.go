package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is interface for websocket handling in status service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// WSConnKeeper tracks open subscriptions by recording ID.
// A client sends the recording ID it wants to follow as a text message,
// sending another ID moves the connection over.
type WSConnKeeper struct {
	idConns map[string]map[WsConn]struct{}
	connIDs map[WsConn]string
	lock    *sync.Mutex
	timeOut time.Duration
}

// NewWSConnKeeper creates manager
func NewWSConnKeeper() *WSConnKeeper {
	res := &WSConnKeeper{}
	res.idConns = make(map[string]map[WsConn]struct{})
	res.connIDs = make(map[WsConn]string)
	res.lock = &sync.Mutex{}
	res.timeOut = time.Minute * 30 // drop connections older than this
	return res
}

// HandleConnection reads subscription IDs until the connection dies or times out
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.deleteConnection(conn)
	defer conn.Close()
	readCh := make(chan string)
	go func() {
		defer close(readCh)
		defer goapp.Log.Debug().Msg("read routine ended")
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Error().Err(err).Send()
				return
			}
			msg := strings.TrimSpace(string(message))
			goapp.Log.Debug().Str("msg", goapp.Sanitize(msg)).Msg("got msg")
			if msg != "" {
				readCh <- msg
			} else {
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	ta := time.After(kp.timeOut)
loop:
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeouted")
			break loop
		case msg, ok := <-readCh:
			if !ok {
				goapp.Log.Debug().Msg("conn read closed?")
				break loop
			}
			kp.saveConnection(conn, msg)
			ta = time.After(kp.timeOut)
		}
	}
	goapp.Log.Info().Msg("ws connection finished")
	return nil
}

func (kp *WSConnKeeper) deleteConnection(conn WsConn) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	kp.deleteConnectionNoSync(conn)
}

func (kp *WSConnKeeper) deleteConnectionNoSync(conn WsConn) {
	id, found := kp.connIDs[conn]
	if found {
		conns, found := kp.idConns[id]
		if found {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.idConns, id)
			}
		}
	}
	delete(kp.connIDs, conn)
	goapp.Log.Info().Int("active", len(kp.connIDs)).Msg("deleteConnection finish")
}

func (kp *WSConnKeeper) saveConnection(conn WsConn, id string) {
	goapp.Log.Info().Str("ID", id).Msg("saveConnection")
	kp.lock.Lock()
	defer kp.lock.Unlock()
	kp.deleteConnectionNoSync(conn)
	kp.connIDs[conn] = id
	conns, found := kp.idConns[id]
	if !found {
		conns = map[WsConn]struct{}{}
		kp.idConns[id] = conns
	}
	conns[conn] = struct{}{}
	goapp.Log.Info().Int("active", len(kp.connIDs)).Msg("saveConnection finish")
}

// GetConnections returns saved connections by provided id
func (kp *WSConnKeeper) GetConnections(id string) ([]WsConn, bool) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	cm, found := kp.idConns[id]
	if found {
		res := []WsConn{}
		for c := range cm {
			res = append(res, c)
		}
		return res, true
	}
	goapp.Log.Debug().Str("ID", id).Msgf("no ws connections")
	return nil, false
}
