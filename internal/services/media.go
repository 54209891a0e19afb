package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"ideabox/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const UploadURLPrefix = "/uploads/"

var (
	// 想法附件允许的类型及扩展名
	attachmentTypes = map[string]string{
		"application/pdf": ".pdf",
		"image/jpeg":      ".jpg",
		"image/png":       ".png",
	}
	pictureTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
	}
)

// StoredFile 上传结果
type StoredFile struct {
	URL  string
	Name string
	Type string
	Size int64
}

// MediaStore writes uploads to a local directory served under /uploads/.
// The content type is sniffed from the bytes, never taken from the client.
type MediaStore struct {
	dir     string
	maxSize int64
}

func NewMediaStore(dir string, maxSize int64) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &MediaStore{dir: dir, maxSize: maxSize}, nil
}

func (m *MediaStore) Dir() string {
	return m.dir
}

// check reads the upload and returns its bytes and detected type.
func (m *MediaStore) check(fh *multipart.FileHeader, allowed map[string]string) ([]byte, string, error) {
	if fh.Size > m.maxSize {
		return nil, "", fmt.Errorf("%s exceeds %d bytes", fh.Filename, m.maxSize)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, m.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if int64(len(data)) > m.maxSize {
		return nil, "", fmt.Errorf("%s exceeds %d bytes", fh.Filename, m.maxSize)
	}

	mtype := mimetype.Detect(data)
	for t := range allowed {
		if mtype.Is(t) {
			return data, t, nil
		}
	}
	return nil, "", fmt.Errorf("%s has unsupported type %s", fh.Filename, mtype.String())
}

func (m *MediaStore) write(data []byte, ext string) (string, error) {
	name := uuid.NewString() + ext
	dst, err := os.OpenFile(filepath.Join(m.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(dst, bytes.NewReader(data)); err != nil {
		dst.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return name, nil
}

// SaveAll validates every file before writing any of them.
func (m *MediaStore) SaveAll(files []*multipart.FileHeader, allowed map[string]string) ([]StoredFile, error) {
	type checked struct {
		fh   *multipart.FileHeader
		data []byte
		typ  string
	}
	verr := &ValidationError{}
	ok := make([]checked, 0, len(files))
	for _, fh := range files {
		data, typ, err := m.check(fh, allowed)
		if err != nil {
			verr.Add("files", err.Error())
			continue
		}
		ok = append(ok, checked{fh: fh, data: data, typ: typ})
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	stored := make([]StoredFile, 0, len(ok))
	for _, c := range ok {
		name, err := m.write(c.data, allowed[c.typ])
		if err != nil {
			m.removeStored(stored)
			return nil, err
		}
		stored = append(stored, StoredFile{
			URL:  UploadURLPrefix + name,
			Name: filepath.Base(c.fh.Filename),
			Type: c.typ,
			Size: int64(len(c.data)),
		})
	}
	return stored, nil
}

func (m *MediaStore) removeStored(files []StoredFile) {
	for _, f := range files {
		m.Remove(f.URL)
	}
}

// Remove deletes the file behind an /uploads/ URL. Unknown URLs are ignored.
func (m *MediaStore) Remove(url string) {
	if !strings.HasPrefix(url, UploadURLPrefix) {
		return
	}
	name := filepath.Base(strings.TrimPrefix(url, UploadURLPrefix))
	if err := os.Remove(filepath.Join(m.dir, name)); err != nil && !os.IsNotExist(err) {
		log.Printf("remove upload %s: %v", name, err)
	}
}

type MediaService struct {
	db    *gorm.DB
	store *MediaStore
}

func NewMediaService(db *gorm.DB, store *MediaStore) *MediaService {
	return &MediaService{db: db, store: store}
}

// Upload attaches files to an idea. Only the creator or an administrator may do so.
func (s *MediaService) Upload(ctx context.Context, actor Actor, ideaID uint, files []*multipart.FileHeader) ([]models.Media, error) {
	if len(files) == 0 {
		return nil, invalid("files", "at least one file is required")
	}
	if _, err := findIdea(s.db.WithContext(ctx), ideaID); err != nil {
		return nil, err
	}
	if !actor.IsAdmin {
		creator, err := creatorID(s.db.WithContext(ctx), ideaID)
		if err != nil {
			return nil, err
		}
		if creator != actor.UserID {
			return nil, ErrForbidden
		}
	}

	stored, err := s.store.SaveAll(files, attachmentTypes)
	if err != nil {
		return nil, err
	}

	media := make([]models.Media, 0, len(stored))
	for _, f := range stored {
		media = append(media, models.Media{IdeaID: ideaID, URL: f.URL, Name: f.Name, Type: f.Type, Size: f.Size})
	}
	if err := s.db.WithContext(ctx).Create(&media).Error; err != nil {
		s.store.removeStored(stored)
		return nil, err
	}
	return media, nil
}

func (s *MediaService) List(ctx context.Context, ideaID uint) ([]models.Media, error) {
	if _, err := findIdea(s.db.WithContext(ctx), ideaID); err != nil {
		return nil, err
	}
	media := []models.Media{}
	err := s.db.WithContext(ctx).Where("idea_id = ?", ideaID).Order("id").Find(&media).Error
	return media, err
}

func creatorID(db *gorm.DB, ideaID uint) (uint, error) {
	var link models.UserIdea
	err := db.Where("idea_id = ? AND is_creator = ?", ideaID, true).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return link.UserID, nil
}
