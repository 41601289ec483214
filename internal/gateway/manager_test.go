package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ruleBody is the shape the rules-for-user endpoint expects on PUT.
type ruleBody struct {
	Username string    `json:"username"`
	Rules    []ACLRule `json:"rules"`
}

// fakeEMQX is a minimal in-memory stand-in for the EMQX admin API, enough
// to exercise Manager without a live broker. Rule PUT bodies are captured
// per user so tests can assert their shape.
func fakeEMQX(t *testing.T) (*httptest.Server, map[string]string, map[string]ruleBody) {
	t.Helper()
	users := map[string]string{}
	ruleBodies := map[string]ruleBody{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/authentication/password_based:built_in_database/users", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			type entry struct {
				UserID string `json:"user_id"`
			}
			data := make([]entry, 0, len(users))
			for id := range users {
				data = append(data, entry{UserID: id})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		case http.MethodPost:
			var body struct {
				UserID   string `json:"user_id"`
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if _, exists := users[body.UserID]; exists {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"ALREADY_EXISTS"}`))
				return
			}
			users[body.UserID] = body.Password
			w.WriteHeader(http.StatusCreated)
		}
	})
	mux.HandleFunc("/api/v5/authentication/password_based:built_in_database/users/", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Path[len("/api/v5/authentication/password_based:built_in_database/users/"):]
		switch r.Method {
		case http.MethodDelete:
			delete(users, userID)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPut:
			var body struct {
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			users[userID] = body.Password
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("/api/v5/authorization/sources/built_in_database/rules/users/", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Path[len("/api/v5/authorization/sources/built_in_database/rules/users/"):]
		if r.Method == http.MethodPut {
			var body ruleBody
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			ruleBodies[userID] = body
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return httptest.NewServer(mux), users, ruleBodies
}

func TestCreateGateway(t *testing.T) {
	srv, users, ruleBodies := fakeEMQX(t)
	defer srv.Close()

	mgr := NewManager(NewEMQXClient(srv.URL, "key", "secret"), "egr/home/2/e/#")

	rec, password, err := mgr.CreateGateway(context.Background(), "1a2b3c4d", 12345)
	require.NoError(t, err)
	assert.Equal(t, "12345-1a2b3c4d", rec.UserString())
	assert.Len(t, password, passwordLength)
	assert.Contains(t, users, "12345-1a2b3c4d")

	body := ruleBodies["12345-1a2b3c4d"]
	assert.Equal(t, "12345-1a2b3c4d", body.Username)
	require.Len(t, body.Rules, 1)
	assert.Equal(t, ACLRule{Action: "all", Topic: "egr/home/2/e/+/!1a2b3c4d", Permission: "allow"}, body.Rules[0])
}

func TestCreateGatewayConflict(t *testing.T) {
	srv, _, _ := fakeEMQX(t)
	defer srv.Close()

	mgr := NewManager(NewEMQXClient(srv.URL, "key", "secret"), "egr/home/2/e")

	_, _, err := mgr.CreateGateway(context.Background(), "1a2b3c4d", 12345)
	require.NoError(t, err)

	_, _, err = mgr.CreateGateway(context.Background(), "1a2b3c4d", 99999)
	require.Error(t, err)
	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "99999-1a2b3c4d", gwErr.Record.UserString())
}

func TestListGatewaysFiltersNonGatewayUsers(t *testing.T) {
	srv, users, _ := fakeEMQX(t)
	defer srv.Close()
	users["12345-1a2b3c4d"] = "x"
	users["operator"] = "x"
	users["abcd1234"] = "x"

	mgr := NewManager(NewEMQXClient(srv.URL, "key", "secret"), "egr/home/2/e")
	gateways, err := mgr.ListGateways(context.Background())
	require.NoError(t, err)
	require.Len(t, gateways, 1)
	assert.Equal(t, "12345-1a2b3c4d", gateways[0].UserString())
}

func TestACLTopicStripsTrailingWildcard(t *testing.T) {
	mgr := NewManager(NewEMQXClient("http://unused", "k", "s"), "egr/home/2/e/#")
	rule := mgr.aclRuleFor(0x1a2b3c4d)
	assert.Equal(t, ACLRule{Action: "all", Topic: "egr/home/2/e/+/!1a2b3c4d", Permission: "allow"}, rule)
}
