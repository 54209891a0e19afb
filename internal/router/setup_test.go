package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ideabox/internal/auth"
	"ideabox/internal/config"
	"ideabox/internal/db"
	"ideabox/internal/services"
	"ideabox/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testAdminMail     = "admin@ideabox.test"
	testAdminPassword = "admin-secret"
	testOrphanMail    = "former-member@ideabox.test"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
}

// setupTestEnvironment builds the full route tree over a private in-memory SQLite
// database. loginPerMin 0 disables the login throttle.
func setupTestEnvironment(t *testing.T, loginPerMin int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open(config.DialectSQLite, dsn, false)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, db.Seed(gdb, db.SeedOptions{
		OrphanOwnerEmail: testOrphanMail,
		AdminEmail:       testAdminMail,
		AdminPassword:    testAdminPassword,
	}))
	orphanID, err := db.OrphanOwnerID(gdb, testOrphanMail)
	require.NoError(t, err)

	store, err := session.NewMemoryStore(100)
	require.NoError(t, err)
	cache, err := services.NewLocalAggregateCache(100, time.Minute)
	require.NoError(t, err)
	media, err := services.NewMediaStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	broker := services.NewAggregateBroker(cache)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go broker.Run(ctx)

	r := gin.New()
	RegisterRoutes(r, Deps{
		Sessions:    session.NewManager(auth.NewIssuer("test-secret-0123456789", time.Hour), store),
		Broker:      broker,
		Votes:       services.NewVoteService(gdb, services.NewLocalLocker(), broker),
		Users:       services.NewUserService(gdb, broker, media, orphanID),
		Ideas:       services.NewIdeaService(gdb, broker, orphanID),
		Comments:    services.NewCommentService(gdb, orphanID),
		Media:       services.NewMediaService(gdb, media),
		Decisions:   services.NewDecisionService(gdb, broker, media),
		Lookups:     services.NewLookupService(gdb),
		Stats:       services.NewStatisticsService(gdb),
		CORSOrigins: []string{"*"},
		UploadDir:   media.Dir(),
		LoginPerMin: loginPerMin,
	})
	return &testEnv{router: r, db: gdb}
}

// do sends a JSON request with an optional bearer token.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type loggedIn struct {
	ID    uint
	Token string
}

func (e *testEnv) login(t *testing.T, mail, password string) loggedIn {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/users/login", "", gin.H{"mail": mail, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return loggedIn{ID: resp.User.ID, Token: resp.Token}
}

// member registers an account and logs it in.
func (e *testEnv) member(t *testing.T, name string) loggedIn {
	t.Helper()
	mail := name + "@ideabox.test"
	w := e.do(t, http.MethodPost, "/api/users", "", gin.H{
		"firstname": name,
		"lastname":  "Tester",
		"mail":      mail,
		"password":  "password",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return e.login(t, mail, "password")
}

func (e *testEnv) admin(t *testing.T) loggedIn {
	return e.login(t, testAdminMail, testAdminPassword)
}

// createIdea posts an idea open for three days in the first seeded category.
func (e *testEnv) createIdea(t *testing.T, who loggedIn, participants ...uint) uint {
	t.Helper()
	if participants == nil {
		participants = []uint{}
	}
	w := e.do(t, http.MethodPost, "/api/ideas", who.Token, gin.H{
		"title":        "Bike racks",
		"description":  "Install bike racks in the courtyard.",
		"deadline":     time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"categories":   []uint{1},
		"participants": participants,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var idea struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &idea))
	return idea.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
