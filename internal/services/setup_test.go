package services

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"testing"
	"time"

	"ideabox/internal/config"
	"ideabox/internal/db"
	"ideabox/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOrphanMail = "former-member@ideabox.test"

// openTestDB returns a private in-memory SQLite database, migrated and seeded.
// A single connection keeps every query on the same memory database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open(config.DialectSQLite, dsn, false)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, db.Seed(gdb, db.SeedOptions{OrphanOwnerEmail: testOrphanMail}))
	return gdb
}

type fixture struct {
	db       *gorm.DB
	orphanID uint
	broker   *AggregateBroker
	media    *MediaStore

	votes     *VoteService
	ideas     *IdeaService
	comments  *CommentService
	decisions *DecisionService
	users     *UserService
	uploads   *MediaService
	lookups   *LookupService
	stats     *StatisticsService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, NewLocalLocker(), nil)
}

// newFixtureWith builds the services around the given locker and cache; a nil cache
// means the in-process one.
func newFixtureWith(t *testing.T, locker Locker, cache AggregateCache) *fixture {
	t.Helper()

	gdb := openTestDB(t)
	orphanID, err := db.OrphanOwnerID(gdb, testOrphanMail)
	require.NoError(t, err)

	if cache == nil {
		cache, err = NewLocalAggregateCache(128, time.Minute)
		require.NoError(t, err)
	}
	store, err := NewMediaStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	broker := NewAggregateBroker(cache)
	f := &fixture{
		db:       gdb,
		orphanID: orphanID,
		broker:   broker,
		media:    store,
	}
	f.votes = NewVoteService(gdb, locker, broker)
	f.ideas = NewIdeaService(gdb, broker, orphanID)
	f.comments = NewCommentService(gdb, orphanID)
	f.decisions = NewDecisionService(gdb, broker, store)
	f.users = NewUserService(gdb, broker, store, orphanID)
	f.uploads = NewMediaService(gdb, store)
	f.lookups = NewLookupService(gdb)
	f.stats = NewStatisticsService(gdb)
	return f
}

func (f *fixture) user(t *testing.T, firstname string, admin bool) models.User {
	t.Helper()
	u := models.User{
		Firstname: firstname,
		Lastname:  "Test",
		Mail:      fmt.Sprintf("%s-%s@ideabox.test", firstname, uuid.NewString()[:8]),
		Password:  "x",
		IsAdmin:   admin,
	}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

// idea inserts an idea directly so tests control its dates.
func (f *fixture) idea(t *testing.T, creatorID uint, created, deadline time.Time) models.Idea {
	t.Helper()
	idea := models.Idea{
		Title:       "Shared bikes",
		Description: "<p>Bikes for the whole campus</p>",
		Deadline:    deadline,
		StatusID:    models.StatusPending,
		CreatedAt:   created,
	}
	require.NoError(t, f.db.Create(&idea).Error)
	require.NoError(t, f.db.Create(&models.UserIdea{UserID: creatorID, IdeaID: idea.ID, IsCreator: true}).Error)
	return idea
}

// openIdea is an idea in its comment phase.
func (f *fixture) openIdea(t *testing.T, creatorID uint) models.Idea {
	now := time.Now()
	return f.idea(t, creatorID, now.Add(-time.Hour), now.Add(72*time.Hour))
}

func (f *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func fileHeader(t *testing.T, name string, data []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("files", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"][0]
}

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
)
