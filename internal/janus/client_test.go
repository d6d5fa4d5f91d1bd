package janus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/log"
)

type ClientTestSuite struct {
	suite.Suite
	server *httptest.Server
	api    API

	mu       sync.Mutex
	requests []map[string]any
	rooms    map[float64]bool
	// reply overrides the answer to the next POST when set.
	reply *Response
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.requests = nil
	s.rooms = map[float64]bool{}
	s.reply = nil
	s.server = httptest.NewServer(http.HandlerFunc(s.serve))
	s.api = New(s.server.URL+"/", log.NewNop(), WithRequestTimeout(time.Second), WithKeepaliveInterval(10*time.Millisecond))
}

func (s *ClientTestSuite) TearDownTest() {
	s.server.Close()
}

func plugin(data map[string]any) *PluginData {
	raw, _ := json.Marshal(data)
	return &PluginData{Plugin: pluginAudioBridge, Data: raw}
}

func (s *ClientTestSuite) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		s.Equal("2", r.URL.Query().Get("maxev"))
		_ = json.NewEncoder(w).Encode([]Response{
			{Janus: "event", Plugindata: plugin(map[string]any{"audiobridge": "talking", "id": 7})},
		})
		return
	}

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if s.reply != nil {
		_ = json.NewEncoder(w).Encode(s.reply)
		s.reply = nil
		return
	}

	resp := Response{Janus: "success"}
	switch req["janus"] {
	case "create":
		resp.Data = &Data{ID: 11}
	case "attach":
		resp.Data = &Data{ID: 22}
	case "message":
		body := req["body"].(map[string]any)
		room, _ := body["room"].(float64)
		switch body["request"] {
		case "exists":
			resp.Plugindata = plugin(map[string]any{"audiobridge": "success", "exists": s.rooms[room]})
		case "create":
			if s.rooms[room] {
				resp.Plugindata = plugin(map[string]any{"audiobridge": "event", "error_code": codeRoomExists, "error": "exists"})
				break
			}
			s.rooms[room] = true
			resp.Plugindata = plugin(map[string]any{"audiobridge": "created"})
		default:
			resp.Janus = "ack"
		}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *ClientTestSuite) last() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func (s *ClientTestSuite) count(janus string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r["janus"] == janus {
			n++
		}
	}
	return n
}

func (s *ClientTestSuite) TestAttachAndJoin() {
	ctx := context.Background()
	anchor, err := s.api.Attach(ctx, "alice")
	s.Require().NoError(err)
	s.Equal(int64(11), anchor.SessionID())

	attach := s.requests[1]
	s.Equal(pluginAudioBridge, attach["plugin"])
	s.NotEqual(s.requests[0]["transaction"], attach["transaction"])

	s.Require().NoError(anchor.Join(ctx, JoinRequest{Room: 5, Display: "alice", Muted: true}, &JSEP{Type: "offer", SDP: "v=0"}))
	req := s.last()
	s.Equal(float64(22), req["handle_id"])
	s.Equal("join", req["body"].(map[string]any)["request"])
	s.Equal("offer", req["jsep"].(map[string]any)["type"])

	muted := false
	s.Require().NoError(anchor.Configure(ctx, ConfigureRequest{Muted: &muted}))
	body := s.last()["body"].(map[string]any)
	s.Equal("configure", body["request"])
	s.Equal(false, body["muted"])

	s.Require().NoError(anchor.Leave(ctx))
	s.Equal("leave", s.last()["body"].(map[string]any)["request"])

	s.Require().NoError(anchor.Destroy(ctx))
	s.Equal("destroy", s.last()["janus"])
}

func (s *ClientTestSuite) TestAdminRooms() {
	ctx := context.Background()
	admin, err := s.api.Admin(ctx, "secret")
	s.Require().NoError(err)

	exists, err := admin.RoomExists(ctx, 9)
	s.Require().NoError(err)
	s.False(exists)

	s.Require().NoError(admin.CreateRoom(ctx, CreateRoomRequest{Room: 9}))
	body := s.last()["body"].(map[string]any)
	s.Equal("secret", body["admin_key"])
	s.Equal(float64(16000), body["sampling_rate"])

	exists, err = admin.RoomExists(ctx, 9)
	s.Require().NoError(err)
	s.True(exists)

	err = admin.CreateRoom(ctx, CreateRoomRequest{Room: 9})
	s.True(errors.Is(err, ErrAlreadyExisted), "got %v", err)
}

func (s *ClientTestSuite) TestEvents() {
	anchor, err := s.api.Attach(context.Background(), "alice")
	s.Require().NoError(err)

	events, err := anchor.Events(context.Background(), 2)
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	var ev AudioBridgeEvent
	s.Require().NoError(events[0].DecodePluginData(&ev))
	s.Equal("talking", ev.AudioBridge)
	s.Equal(uint64(7), ev.ID)
}

func (s *ClientTestSuite) TestKeepaliveStopsOnDestroy() {
	anchor, err := s.api.Attach(context.Background(), "alice")
	s.Require().NoError(err)

	anchor.StartKeepalive()
	anchor.StartKeepalive()
	s.Eventually(func() bool { return s.count("keepalive") >= 2 }, time.Second, 5*time.Millisecond)

	s.Require().NoError(anchor.Destroy(context.Background()))
	n := s.count("keepalive")
	time.Sleep(50 * time.Millisecond)
	s.LessOrEqual(s.count("keepalive"), n+1, "at most one in-flight ping after destroy")
}

func (s *ClientTestSuite) TestErrorReplies() {
	ctx := context.Background()

	s.reply = &Response{Janus: "error", Reason: "no such session"}
	_, err := s.api.Attach(ctx, "alice")
	s.True(errors.Is(err, ErrRejected), "got %v", err)

	s.reply = &Response{Janus: "success"}
	_, err = s.api.Attach(ctx, "alice")
	s.True(errors.Is(err, ErrInvalidResponse), "create without data")

	s.reply = &Response{Janus: "timeout"}
	_, err = s.api.Attach(ctx, "alice")
	s.True(errors.Is(err, ErrInvalidResponse))

	s.server.Close()
	_, err = s.api.Attach(ctx, "alice")
	s.True(errors.Is(err, ErrFailedRequest))
}

func TestDecodeJSEP(t *testing.T) {
	raw := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	jsep, err := (&Response{JSEP: &raw}).DecodeJSEP()
	if err != nil || jsep.Type != "answer" || jsep.SDP != "v=0" {
		t.Fatalf("unexpected jsep %+v, %v", jsep, err)
	}

	jsep, err = (&Response{}).DecodeJSEP()
	if err != nil || jsep != nil {
		t.Fatalf("expected no jsep, got %+v, %v", jsep, err)
	}

	bad := json.RawMessage(`"nope"`)
	if _, err := (&Response{JSEP: &bad}).DecodeJSEP(); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected invalid response, got %v", err)
	}
}
