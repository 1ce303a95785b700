package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/betting-loadtest/internal/session"
	"github.com/DoyleJ11/betting-loadtest/internal/wsconn"
)

// fakeService plays the wagering service: table 7 is the live table, table 9
// and player memberID+1000 are noise that every session must ignore.
type fakeService struct {
	nextMember atomic.Int64
	// idle stops after the login ack and never opens a betting window.
	idle bool
}

type inFrame struct {
	Protocol int             `json:"protocol"`
	Data     json.RawMessage `json:"data"`
}

func readFrame(ctx context.Context, c *websocket.Conn) (inFrame, error) {
	var in inFrame
	_, data, err := c.Read(ctx)
	if err != nil {
		return in, err
	}
	err = json.Unmarshal(data, &in)
	return in, err
}

func writeFrame(ctx context.Context, c *websocket.Conn, op int, data any) error {
	raw, err := json.Marshal(map[string]any{"protocol": op, "data": data})
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, raw)
}

func (f *fakeService) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/15109", f.auth)
	r.Get("/15101", f.game)
	return r
}

func (f *fakeService) auth(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()
	ctx := r.Context()

	in, err := readFrame(ctx, c)
	if err != nil || in.Protocol != 0 {
		return
	}
	var body struct {
		Account string `json:"account"`
	}
	_ = json.Unmarshal(in.Data, &body)
	if err := writeFrame(ctx, c, 0, map[string]any{"sid": "sid-" + body.Account, "bOk": true}); err != nil {
		return
	}
	_, _, _ = c.Read(ctx)
}

func (f *fakeService) game(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()
	ctx := r.Context()
	member := f.nextMember.Add(1)

	expect := func(op int) bool {
		in, err := readFrame(ctx, c)
		return err == nil && in.Protocol == op
	}

	if !expect(1) || writeFrame(ctx, c, 0, nil) != nil {
		return
	}
	if f.idle {
		_, _, _ = c.Read(ctx)
		return
	}

	if writeFrame(ctx, c, 38, map[string]any{"groupID": 7, "gameNo": 1, "gameNoRound": 1}) != nil {
		return
	}
	if !expect(10) || writeFrame(ctx, c, 10, map[string]any{"memberID": member}) != nil {
		return
	}
	if !expect(60) || writeFrame(ctx, c, 60, map[string]any{"memberID": member}) != nil {
		return
	}

	for round := 2; ; round++ {
		frames := []struct {
			op   int
			data map[string]any
		}{
			{25, map[string]any{"groupID": 7}},
			{31, map[string]any{"groupID": 7, "memberID": member + 1000}},
			{38, map[string]any{"groupID": 9, "gameNo": round, "gameNoRound": round}},
			{38, map[string]any{"groupID": 7, "gameNo": round, "gameNoRound": round}},
		}
		for _, fr := range frames {
			if writeFrame(ctx, c, fr.op, fr.data) != nil {
				return
			}
		}
		if !expect(22) {
			return
		}
		if writeFrame(ctx, c, 22, map[string]any{"groupID": 7}) != nil {
			return
		}
		if writeFrame(ctx, c, 31, map[string]any{"groupID": 7, "memberID": member}) != nil {
			return
		}
	}
}

func startFakeService(t *testing.T, f *fakeService) session.Endpoints {
	t.Helper()
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	return session.Endpoints{Auth: base + "/15109", Game: base + "/15101"}
}

func wsDial(ctx context.Context, url string) (session.Conn, error) {
	return wsconn.Dial(ctx, url, wsconn.Options{})
}
