package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/kymoh/elimu/core/user"
)

func TestUserApi(t *testing.T) {
	app := setup(t)

	var (
		admin    = createUser(t, app.usrRepo, "Admin", "admin", "admin@test.elimu", "Sup3rS3cret", []string{user.RoleAdmin}, true)
		student  = createUser(t, app.usrRepo, "Ada Lovelace", "ada", "ada@test.elimu", "Sup3rS3cret", []string{user.RoleStudent}, true)
		teacher  = createUser(t, app.usrRepo, "Grace Hopper", "grace", "grace@test.elimu", "Sup3rS3cret", []string{user.RoleTeacher}, true)
		inactive = createUser(t, app.usrRepo, "Idle Ivy", "ivy", "ivy@test.elimu", "Sup3rS3cret", []string{user.RoleTeacher}, false)
		disposa1 = createUser(t, app.usrRepo, "Bin One", "bin1", "bin1@test.elimu", "", nil, true)
		disposa2 = createUser(t, app.usrRepo, "Bin Two", "bin2", "bin2@test.elimu", "", nil, true)
	)

	var (
		adminToken   = getToken(t, app.conf, admin)
		studentToken = getToken(t, app.conf, student)
	)

	var (
		forbiddenResp  = marchallObj(t, httpErr{Error: "permission denied"})
		notFoundResp   = marchallObj(t, httpErr{Error: "not found"})
		authFailedResp = marchallObj(t, httpErr{Error: "authentication failed"})
		missingCreds   = marchallObj(t, map[string]string{
			"username": "this field is required",
			"password": "this field is required",
		})
		allUsers    = marchallObj(t, []user.User{admin, student, teacher, inactive, disposa1, disposa2})
		activeOnly  = marchallObj(t, []user.User{admin, student, teacher, disposa1, disposa2})
		studentResp = marchallObj(t, student)
		rolesResp   = marchallObj(t, user.Roles)
	)

	tests := []httpTest{
		{name: "login, empty credentials", method: http.MethodPost, path: "/v1/users/login", body: []byte("{}"),
			wantCode: http.StatusBadRequest, wantData: missingCreds},
		{name: "login, unknown user", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username": "ghost", "password": "Sup3rS3cret"}`),
			wantCode: http.StatusBadRequest, wantData: authFailedResp},
		{name: "login, wrong password", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username": "ada", "password": "nope"}`),
			wantCode: http.StatusBadRequest, wantData: authFailedResp},
		{name: "login, deactivated account", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte(`{"username": "ivy", "password": "Sup3rS3cret"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},

		{name: "users, anonymous", method: http.MethodGet, path: "/v1/users",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "users, non-admin", method: http.MethodGet, path: "/v1/users", token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "users, admin", method: http.MethodGet, path: "/v1/users", token: adminToken,
			wantCode: http.StatusOK, wantData: allUsers},
		{name: "users, search filter", method: http.MethodGet, path: "/v1/users?search=ada", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []user.User{student})},
		{name: "users, is_active filter", method: http.MethodGet, path: "/v1/users?is_active=true", token: adminToken,
			wantCode: http.StatusOK, wantData: activeOnly},
		{name: "users, role filter", method: http.MethodGet, path: "/v1/users?role=teacher:", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, []user.User{teacher, inactive})},

		{name: "roles, non-admin", method: http.MethodGet, path: "/v1/users/roles", token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "roles, admin", method: http.MethodGet, path: "/v1/users/roles", token: adminToken,
			wantCode: http.StatusOK, wantData: rolesResp},

		{name: "user detail, self", method: http.MethodGet, path: fmt.Sprintf("/v1/users/%d", student.ID), token: studentToken,
			wantCode: http.StatusOK, wantData: studentResp},
		{name: "user detail, non-admin on other", method: http.MethodGet, path: fmt.Sprintf("/v1/users/%d", admin.ID), token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "user detail, admin on other", method: http.MethodGet, path: fmt.Sprintf("/v1/users/%d", student.ID), token: adminToken,
			wantCode: http.StatusOK, wantData: studentResp},
		{name: "user detail, malformed id", method: http.MethodGet, path: "/v1/users/abc", token: adminToken,
			wantCode: http.StatusNotFound, wantData: notFoundResp},
		{name: "user detail, unknown id", method: http.MethodGet, path: "/v1/users/999", token: adminToken,
			wantCode: http.StatusNotFound, wantData: notFoundResp},

		{name: "user update, non-admin sets roles", method: http.MethodPut, path: fmt.Sprintf("/v1/users/%d", student.ID), token: studentToken,
			body: []byte(`{"roles": ["teacher:"]}`), wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "user update, non-admin deactivates", method: http.MethodPut, path: fmt.Sprintf("/v1/users/%d", student.ID), token: studentToken,
			body: []byte(`{"is_active": false}`), wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "user update, self rename", method: http.MethodPut, path: fmt.Sprintf("/v1/users/%d", student.ID), token: studentToken,
			body: []byte(`{"name": "Ada King"}`), wantCode: http.StatusOK},
		{name: "user update, admin grants higher role", method: http.MethodPut, path: fmt.Sprintf("/v1/users/%d", teacher.ID), token: adminToken,
			body:     []byte(`{"roles": ["admin:owner"]}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": errNoPermsToSetRoles})},

		{name: "register, non-admin", method: http.MethodPost, path: "/v1/users/register", token: studentToken,
			body: []byte(`{"username": "newbie", "password": "Sup3rS3cret"}`), wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "register, duplicate username", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body:     []byte(`{"username": "ada", "password": "Sup3rS3cret"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"username": "a user with this username already exists"})},
		{name: "register, admin ok", method: http.MethodPost, path: "/v1/users/register", token: adminToken,
			body: []byte(`{"username": "newbie", "password": "Sup3rS3cret", "roles": ["student:"]}`), wantCode: http.StatusCreated},

		{name: "notes, non-admin", method: http.MethodGet, path: fmt.Sprintf("/v1/users/%d/notes", student.ID), token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "notes, admin creates", method: http.MethodPost, path: fmt.Sprintf("/v1/users/%d/notes", student.ID), token: adminToken,
			body: []byte(`{"body": "chased up by phone"}`), wantCode: http.StatusCreated},
		{name: "notes, empty body", method: http.MethodPost, path: fmt.Sprintf("/v1/users/%d/notes", student.ID), token: adminToken,
			body: []byte(`{"body": ""}`), wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"body": "this field is required"})},

		{name: "delete, non-admin", method: http.MethodDelete, path: fmt.Sprintf("/v1/users/%d", disposa1.ID), token: studentToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "delete, admin self", method: http.MethodDelete, path: fmt.Sprintf("/v1/users/%d", admin.ID), token: adminToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "delete, admin ok", method: http.MethodDelete, path: fmt.Sprintf("/v1/users/%d", disposa1.ID), token: adminToken,
			wantCode: http.StatusNoContent},
		{name: "delete multiple, includes self", method: http.MethodDelete,
			path: fmt.Sprintf("/v1/users?id=%d&id=%d", admin.ID, disposa2.ID), token: adminToken,
			wantCode: http.StatusForbidden, wantData: forbiddenResp},
		{name: "delete multiple, admin ok", method: http.MethodDelete,
			path: fmt.Sprintf("/v1/users?id=%d", disposa2.ID), token: adminToken,
			wantCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("login ok", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", []byte(`{"username": "ada", "password": "Sup3rS3cret"}`))
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("login failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var resp LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling LoginResponse failed: %v", err)
		}
		if resp.Token == "" {
			t.Error("login returned an empty token")
		}
	})

	t.Run("token refresh", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", studentToken)
		app.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("refresh failed! code = %v; body = %v", rec.Code, rec.Body.String())
		}
		var resp LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling LoginResponse failed: %v", err)
		}
		if resp.Token == "" {
			t.Error("refresh returned an empty token")
		}
	})
}
