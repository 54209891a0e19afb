package db

import (
	"errors"
	"fmt"
	"log"

	"ideabox/internal/config"
	"ideabox/internal/models"
	"ideabox/internal/utils"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the configured database, migrates it and seeds lookup tables.
func Init(cfg config.Config) {
	var err error
	DB, err = Open(cfg.DBDialect, cfg.DBDsn, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connection established")

	if err := Migrate(DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed")

	if err := Seed(DB, SeedOptions{
		OrphanOwnerEmail: cfg.OrphanOwnerEmail,
		AdminEmail:       cfg.AdminEmail,
		AdminPassword:    cfg.AdminPassword,
	}); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
}

// Open connects with the driver matching dialect. TranslateError is always on so
// services can match gorm.ErrDuplicatedKey regardless of the backend.
func Open(dialect, dsn string, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect {
	case config.DialectPostgres:
		dialector = postgres.Open(dsn)
	case config.DialectMySQL:
		dialector = mysql.Open(dsn)
	case config.DialectSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", dialect)
	}

	level := logger.Warn
	if debug {
		level = logger.Info
	}
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Service{},
		&models.Status{},
		&models.Category{},
		&models.User{},
		&models.Idea{},
		&models.UserIdea{},
		&models.CategoryIdea{},
		&models.Vote{},
		&models.Comment{},
		&models.Media{},
	)
}

type SeedOptions struct {
	OrphanOwnerEmail string
	AdminEmail       string
	AdminPassword    string
}

// Seed inserts the fixed lookup rows and the placeholder owner that inherits the
// ideas and comments of deleted accounts. It is safe to run on every start.
func Seed(db *gorm.DB, opts SeedOptions) error {
	statuses := []models.Status{
		{ID: models.StatusPending, Code: "pending", Label: "En attente"},
		{ID: models.StatusValidated, Code: "validated", Label: "Validée"},
		{ID: models.StatusRejected, Code: "rejected", Label: "Refusée"},
	}
	for _, s := range statuses {
		if err := db.Where(models.Status{ID: s.ID}).FirstOrCreate(&s).Error; err != nil {
			return fmt.Errorf("seed status %s: %w", s.Code, err)
		}
	}

	if err := seedNamed(db, &models.Category{}, []string{"Technology", "Environment", "Workplace", "Human resources", "Finance"}, func(name string) any {
		return &models.Category{Name: name}
	}); err != nil {
		return err
	}
	if err := seedNamed(db, &models.Service{}, []string{"IT", "HR", "Finance", "Marketing", "Operations"}, func(name string) any {
		return &models.Service{Name: name}
	}); err != nil {
		return err
	}

	if opts.OrphanOwnerEmail != "" {
		if _, err := ensureUser(db, models.User{
			Firstname: "Former",
			Lastname:  "member",
			Mail:      opts.OrphanOwnerEmail,
		}, ""); err != nil {
			return fmt.Errorf("seed orphan owner: %w", err)
		}
	}

	if opts.AdminEmail != "" && opts.AdminPassword != "" {
		if _, err := ensureUser(db, models.User{
			Firstname: "Admin",
			Lastname:  "Ideabox",
			Mail:      opts.AdminEmail,
			IsAdmin:   true,
		}, opts.AdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}
	return nil
}

// seedNamed fills an empty lookup table; a table that already has rows is left alone.
func seedNamed(db *gorm.DB, model any, names []string, build func(string) any) error {
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, name := range names {
		if err := db.Create(build(name)).Error; err != nil {
			log.Printf("Failed to seed %s: %v", name, err)
		}
	}
	return nil
}

func ensureUser(db *gorm.DB, u models.User, password string) (*models.User, error) {
	var existing models.User
	err := db.Where("mail = ?", u.Mail).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 占位用户没有可用密码, 随机哈希使其无法登录
	if password == "" {
		password = utils.RandomSecret()
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.Password = hash
	if err := db.Create(&u).Error; err != nil {
		return nil, err
	}
	log.Printf("Seeded user %s", u.Mail)
	return &u, nil
}

// OrphanOwnerID resolves the placeholder owner seeded by Seed.
func OrphanOwnerID(db *gorm.DB, mail string) (uint, error) {
	var u models.User
	if err := db.Select("id").Where("mail = ?", mail).First(&u).Error; err != nil {
		return 0, fmt.Errorf("orphan owner %s: %w", mail, err)
	}
	return u.ID, nil
}
