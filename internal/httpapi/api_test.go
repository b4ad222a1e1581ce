package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/spitfire-app/spitfire-backend/internal/battle"
	"github.com/spitfire-app/spitfire-backend/internal/identity"
	"github.com/spitfire-app/spitfire-backend/internal/msgcat"
	"github.com/spitfire-app/spitfire-backend/internal/notify"
	"github.com/spitfire-app/spitfire-backend/internal/queue"
	"github.com/spitfire-app/spitfire-backend/internal/voting"
	"github.com/spitfire-app/spitfire-backend/pkg/battledto"
)

const (
	tokA = "token-a"
	tokB = "token-b"
	tokC = "token-c"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	battles := battle.NewManager(rdb)
	queues := queue.NewManager(rdb)
	votes := voting.NewController(rdb, battles, 24*time.Hour, 20)
	idp := identity.NewStaticProvider(map[string]string{
		tokA: "userA",
		tokB: "userB",
		tokC: "userC",
	})
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}

	api := New(queues, battles, votes, idp, msgs, notify.NewPublisher(rdb))
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		// Callers reuse destination structs across requests; zero them so
		// fields omitted from this response do not retain stale values
		// decoded from an earlier one.
		if v := reflect.ValueOf(out); v.Kind() == reflect.Pointer && !v.IsNil() {
			v.Elem().Set(reflect.Zero(v.Elem().Type()))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	var ev battledto.ErrorView
	if code := doJSON(t, srv, http.MethodGet, "/api/battles", "", nil, &ev); code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", code)
	}
	if ev.Code != "unauthenticated" {
		t.Fatalf("error code = %q", ev.Code)
	}
	if code := doJSON(t, srv, http.MethodGet, "/api/battles", "bogus", nil, &ev); code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", code)
	}
}

func TestBadMode(t *testing.T) {
	srv := newTestServer(t)
	var ev battledto.ErrorView
	if code := doJSON(t, srv, http.MethodPost, "/api/queue/trapmode", tokA, nil, &ev); code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
	if ev.Code != "bad_mode" {
		t.Fatalf("error code = %q", ev.Code)
	}
}

func TestFullBattleFlow(t *testing.T) {
	srv := newTestServer(t)

	// A queues first and waits.
	var mv battledto.MatchView
	if code := doJSON(t, srv, http.MethodPost, "/api/queue/freestyle", tokA, nil, &mv); code != http.StatusOK {
		t.Fatalf("enqueue A: status = %d", code)
	}
	if mv.Matched {
		t.Fatalf("A should be waiting")
	}

	// B queues and matches A. A held the queue entry, so A is player1.
	if code := doJSON(t, srv, http.MethodPost, "/api/queue/freestyle", tokB, nil, &mv); code != http.StatusCreated {
		t.Fatalf("enqueue B: status = %d", code)
	}
	if !mv.Matched || mv.OpponentID != "userA" || mv.BattleID == "" {
		t.Fatalf("match view = %+v", mv)
	}
	base := "/api/battles/" + mv.BattleID

	var bv battledto.BattleView
	if code := doJSON(t, srv, http.MethodGet, base, tokA, nil, &bv); code != http.StatusOK {
		t.Fatalf("get battle: status = %d", code)
	}
	if bv.Player1.UserID != "userA" || bv.Player2.UserID != "userB" {
		t.Fatalf("player assignment = %+v", bv)
	}
	if bv.TurnOwnerID != "userA" {
		t.Fatalf("first turn owner = %q", bv.TurnOwnerID)
	}

	// B jumping the turn is rejected.
	var ev battledto.ErrorView
	if code := doJSON(t, srv, http.MethodPost, base+"/rounds", tokB, battledto.RoundRequest{Text: "me first"}, &ev); code != http.StatusConflict {
		t.Fatalf("out of turn: status = %d", code)
	}
	if ev.Code != "not_your_turn" {
		t.Fatalf("error code = %q", ev.Code)
	}

	// Blank verse is rejected.
	if code := doJSON(t, srv, http.MethodPost, base+"/rounds", tokA, battledto.RoundRequest{Text: "   "}, &ev); code != http.StatusBadRequest {
		t.Fatalf("empty verse: status = %d", code)
	}

	// Play all eight rounds alternating A, B.
	tokens := []string{tokA, tokB}
	for i := 0; i < battle.RoundCap; i++ {
		body := battledto.RoundRequest{Text: fmt.Sprintf("verse %d", i)}
		if code := doJSON(t, srv, http.MethodPost, base+"/rounds", tokens[i%2], body, &bv); code != http.StatusCreated {
			t.Fatalf("round %d: status = %d", i, code)
		}
	}
	if bv.Status != string(battle.StatusAwaitingVotes) || bv.EndedAt == nil {
		t.Fatalf("after cap: status=%s ended_at=%v", bv.Status, bv.EndedAt)
	}
	if bv.TurnOwnerID != "" {
		t.Fatalf("complete battle still reports a turn owner: %q", bv.TurnOwnerID)
	}

	if code := doJSON(t, srv, http.MethodPost, base+"/rounds", tokA, battledto.RoundRequest{Text: "encore"}, &ev); code != http.StatusConflict {
		t.Fatalf("past cap: status = %d", code)
	}
	if ev.Code != "battle_complete" {
		t.Fatalf("error code = %q", ev.Code)
	}

	// A spectator votes for player2.
	var tv battledto.TallyView
	if code := doJSON(t, srv, http.MethodPost, base+"/votes", tokC, battledto.VoteRequest{VotedFor: "player2"}, &tv); code != http.StatusOK {
		t.Fatalf("vote: status = %d", code)
	}
	if tv.Player2Votes != 1 || tv.YourVote != "player2" {
		t.Fatalf("tally view = %+v", tv)
	}

	if code := doJSON(t, srv, http.MethodGet, base+"/votes", tokC, nil, &tv); code != http.StatusOK {
		t.Fatalf("get votes: status = %d", code)
	}
	if !tv.Open || tv.Player2Votes != 1 {
		t.Fatalf("votes view = %+v", tv)
	}

	// The share card renders once the battle is over.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+base+"/sharecard.png", nil)
	req.Header.Set("Authorization", "Bearer "+tokC)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("sharecard: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sharecard status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("sharecard content type = %q", ct)
	}
}

func TestShareCardBeforeFinishConflicts(t *testing.T) {
	srv := newTestServer(t)

	var mv battledto.MatchView
	doJSON(t, srv, http.MethodPost, "/api/queue/longform", tokA, nil, &mv)
	if code := doJSON(t, srv, http.MethodPost, "/api/queue/longform", tokB, nil, &mv); code != http.StatusCreated {
		t.Fatalf("match: status = %d", code)
	}

	var ev battledto.ErrorView
	code := doJSON(t, srv, http.MethodGet, "/api/battles/"+mv.BattleID+"/sharecard.png", tokA, nil, &ev)
	if code != http.StatusConflict {
		t.Fatalf("status = %d", code)
	}
	if ev.Code != "battle_not_finished" {
		t.Fatalf("error code = %q", ev.Code)
	}
}

func TestHistoryWithoutArchive(t *testing.T) {
	srv := newTestServer(t)
	var views []battledto.ArchivedBattleView
	if code := doJSON(t, srv, http.MethodGet, "/api/battles/history", tokA, nil, &views); code != http.StatusOK {
		t.Fatalf("history: status = %d", code)
	}
	if len(views) != 0 {
		t.Fatalf("history without an archive = %+v", views)
	}
}

func TestCancelQueue(t *testing.T) {
	srv := newTestServer(t)

	var mv battledto.MatchView
	doJSON(t, srv, http.MethodPost, "/api/queue/freestyle", tokA, nil, &mv)
	if code := doJSON(t, srv, http.MethodDelete, "/api/queue/freestyle", tokA, nil, nil); code != http.StatusOK {
		t.Fatalf("cancel: status = %d", code)
	}

	// After A cancelled, B queues fresh and waits.
	if code := doJSON(t, srv, http.MethodPost, "/api/queue/freestyle", tokB, nil, &mv); code != http.StatusOK {
		t.Fatalf("enqueue B: status = %d", code)
	}
	if mv.Matched {
		t.Fatalf("B matched a cancelled entry")
	}
}
