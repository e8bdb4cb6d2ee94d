package agents

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/deployhub/internal/storage"
	"evalgo.org/deployhub/models"
)

func TestForwardWrapsAgentResponse(t *testing.T) {
	var gotUser, gotAuth, gotBody, gotPath, gotMethod string
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(UserHeader)
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.RequestURI()
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":200,"status":"success","msg":null,"data":[1,2]}`))
	}))
	defer agent.Close()

	r := newRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "a", ServiceURL: agent.URL + "/"})
	require.NoError(t, err)

	f := NewForwarder(r, 5*time.Second, zerolog.Nop())
	header := http.Header{}
	header.Set("Authorization", "Bearer abc")
	header.Set(UserHeader, `{"id":666}`)

	res, err := f.Forward(context.Background(), Call{
		AgentID:  a.ID,
		APIPath:  "/api/deploy-agent/project/list?x=1",
		Method:   "post",
		Header:   header,
		Body:     strings.NewReader(`{"k":"v"}`),
		Operator: &models.UserProfile{ID: 3, Username: "alice"},
	})
	require.NoError(t, err)

	assert.Equal(t, 200, res.Code)
	assert.Equal(t, models.ResultSuccess, res.Status)
	assert.Equal(t, "Agent API call succeeded", res.Msg)
	inner, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "success", inner["status"])

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/deploy-agent/project/list?x=1", gotPath)
	assert.Equal(t, `{"k":"v"}`, gotBody)
	assert.Equal(t, "Bearer abc", gotAuth)

	var profile models.UserProfile
	require.NoError(t, json.Unmarshal([]byte(gotUser), &profile))
	assert.Equal(t, 3, profile.ID, "a client supplied X-User is replaced")
	assert.Equal(t, "alice", profile.Username)
}

func TestForwardFailures(t *testing.T) {
	agent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/boom":
			http.Error(w, "kaput", http.StatusBadGateway)
		case "/text":
			_, _ = w.Write([]byte("plain"))
		}
	}))
	defer agent.Close()

	r := newRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "a", ServiceURL: agent.URL})
	require.NoError(t, err)
	dead, err := r.Register(RegisterRequest{Name: "dead", ServiceURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	f := NewForwarder(r, 2*time.Second, zerolog.Nop())
	ctx := context.Background()

	res, err := f.Forward(ctx, Call{AgentID: a.ID, APIPath: "/boom", Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, 500, res.Code)
	assert.Equal(t, models.ResultFailed, res.Status)
	assert.Contains(t, res.Msg, "kaput")

	res, err = f.Forward(ctx, Call{AgentID: a.ID, APIPath: "/text", Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, 500, res.Code)

	res, err = f.Forward(ctx, Call{AgentID: dead.ID, APIPath: "/x", Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, 500, res.Code)
	assert.Contains(t, res.Msg, "Request error")

	_, err = f.Forward(ctx, Call{AgentID: 42, APIPath: "/x", Method: "GET"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.Forward(ctx, Call{AgentID: a.ID, APIPath: "x", Method: "GET"})
	assert.ErrorIs(t, err, ErrInvalidCall)

	_, err = f.Forward(ctx, Call{AgentID: a.ID, APIPath: "/x", Method: "TRACE"})
	assert.ErrorIs(t, err, ErrInvalidCall)
}
