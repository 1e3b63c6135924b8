package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/jackzampolin/promptlab/internal/fields"
)

// SQL dialects accepted by OpenSQL.
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Base holds the columns every table shares.
type Base struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `gorm:"index"`
	Seq       int64     `gorm:"index"` // insertion order among equal created_at
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now()
	}
	if b.Seq == 0 {
		b.Seq = nextSeq()
	}
	return nil
}

// longText is a string column sized for whole documents. MySQL's TEXT stops
// at 64 KiB, so it gets LONGTEXT there.
type longText string

func (longText) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == DialectMySQL {
		return "longtext"
	}
	return "text"
}

type bookInputModel struct {
	Base
	Label             string  `gorm:"size:255;not null"`
	OCRMarkdown       longText `gorm:"column:ocr_markdown"`
	ReferenceMarkdown longText
	CorrectFieldsID   *string `gorm:"type:char(36)"`
}

func (bookInputModel) TableName() string { return "book_inputs" }

type promptModel struct {
	Base
	Label       string `gorm:"size:255;not null"`
	Text        longText
	Temperature float64
}

func (promptModel) TableName() string { return "prompts" }

type runModel struct {
	Base
	PromptID           string `gorm:"type:char(36);index"`
	BookInputID        string `gorm:"type:char(36);index"`
	Model              string `gorm:"size:255"`
	Temperature        float64
	Output             longText
	Status             string `gorm:"size:16;index"`
	FinishReason       string `gorm:"size:32"`
	PromptTokens       int
	CompletionTokens   int
	TotalTokens        int
	DiscoveredFieldsID *string `gorm:"type:char(36)"`
	Starred            bool
	Notes              string `gorm:"type:text"`
	Error              string `gorm:"type:text"`
	LatencyMs          int64
}

func (runModel) TableName() string { return "runs" }

// fieldSetModel has one nullable column per field definition. Column order
// follows the definition table.
type fieldSetModel struct {
	Base
	TitleL1            fields.Value `gorm:"column:title_l1;type:text"`
	TitleL2            fields.Value `gorm:"column:title_l2;type:text"`
	Subtitle           fields.Value `gorm:"column:subtitle;type:text"`
	Author             fields.Value `gorm:"column:author;type:text"`
	Illustrator        fields.Value `gorm:"column:illustrator;type:text"`
	Translator         fields.Value `gorm:"column:translator;type:text"`
	Publisher          fields.Value `gorm:"column:publisher;type:text"`
	PublicationYear    fields.Value `gorm:"column:publication_year;type:text"`
	Edition            fields.Value `gorm:"column:edition;type:text"`
	ISBN               fields.Value `gorm:"column:isbn;type:text"`
	Series             fields.Value `gorm:"column:series;type:text"`
	Copyright          fields.Value `gorm:"column:copyright;type:text"`
	LicenseURL         fields.Value `gorm:"column:license_url;type:text"`
	LicenseDescription fields.Value `gorm:"column:license_description;type:text"`
	Language           fields.Value `gorm:"column:language;type:text"`
}

func (fieldSetModel) TableName() string { return "field_sets" }

// columns pairs each field key with its struct slot.
func (m *fieldSetModel) columns() map[string]*fields.Value {
	return map[string]*fields.Value{
		"title_l1":            &m.TitleL1,
		"title_l2":            &m.TitleL2,
		"subtitle":            &m.Subtitle,
		"author":              &m.Author,
		"illustrator":         &m.Illustrator,
		"translator":          &m.Translator,
		"publisher":           &m.Publisher,
		"publication_year":    &m.PublicationYear,
		"edition":             &m.Edition,
		"isbn":                &m.ISBN,
		"series":              &m.Series,
		"copyright":           &m.Copyright,
		"license_url":         &m.LicenseURL,
		"license_description": &m.LicenseDescription,
		"language":            &m.Language,
	}
}

func (m *fieldSetModel) fromSet(s fields.Set) error {
	cols := m.columns()
	var missing []string
	s.Each(func(d fields.Definition, v fields.Value) {
		col, ok := cols[d.Key]
		if !ok {
			missing = append(missing, d.Key)
			return
		}
		*col = v
	})
	if len(missing) > 0 {
		return fmt.Errorf("field_sets has no column for %v", missing)
	}
	return nil
}

func (m *fieldSetModel) toSet() fields.Set {
	s := fields.NewSet()
	for key, v := range m.columns() {
		_ = s.Put(key, *v)
	}
	return s
}

// SQLStore is a Store on a relational database through gorm.
type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

// OpenSQL connects to dsn with the given dialect and creates missing tables.
func OpenSQL(dialect, dsn string, logLevel logger.LogLevel) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectMySQL:
		dialector = mysql.New(mysql.Config{DSN: dsn, DefaultStringSize: 191})
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	case DialectSQLite, "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&bookInputModel{},
		&promptModel{},
		&runModel{},
		&fieldSetModel{},
	)
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", kind, id, err)
}

func nullable(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// updateByID saves model over an existing row, keeping its created_at and
// seq. It returns ErrNotFound when the row does not exist.
func (s *SQLStore) updateByID(ctx context.Context, kind string, model any, id string) error {
	res := s.db.WithContext(ctx).Model(model).Where("id = ?", id).
		Select("*").Omit("id", "created_at", "seq").Updates(model)
	if res.Error != nil {
		return fmt.Errorf("update %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("update %s %s: %w", kind, id, err)
		}
		if n == 0 {
			return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
		}
	}
	return nil
}

func toBookInputModel(in *BookInput) *bookInputModel {
	return &bookInputModel{
		Base:              Base{ID: in.ID, CreatedAt: in.CreatedAt},
		Label:             in.Label,
		OCRMarkdown:       longText(in.OCRMarkdown),
		ReferenceMarkdown: longText(in.ReferenceMarkdown),
		CorrectFieldsID:   nullable(in.CorrectFieldsID),
	}
}

func (m *bookInputModel) record() BookInput {
	return BookInput{
		ID:                m.ID,
		Label:             m.Label,
		OCRMarkdown:       string(m.OCRMarkdown),
		ReferenceMarkdown: string(m.ReferenceMarkdown),
		CorrectFieldsID:   deref(m.CorrectFieldsID),
		CreatedAt:         m.CreatedAt.UTC(),
	}
}

func (s *SQLStore) CreateBookInput(ctx context.Context, in *BookInput) error {
	m := toBookInputModel(in)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create book input: %w", err)
	}
	in.ID, in.CreatedAt = m.ID, m.CreatedAt
	return nil
}

func (s *SQLStore) GetBookInput(ctx context.Context, id string) (*BookInput, error) {
	var m bookInputModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "book input", id)
	}
	r := m.record()
	return &r, nil
}

func (s *SQLStore) ListBookInputs(ctx context.Context) ([]BookInput, error) {
	var ms []bookInputModel
	if err := s.db.WithContext(ctx).Order("created_at DESC, seq DESC").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list book inputs: %w", err)
	}
	out := make([]BookInput, len(ms))
	for i := range ms {
		out[i] = ms[i].record()
	}
	return out, nil
}

func (s *SQLStore) UpdateBookInput(ctx context.Context, in *BookInput) error {
	return s.updateByID(ctx, "book input", toBookInputModel(in), in.ID)
}

func toPromptModel(p *Prompt) *promptModel {
	return &promptModel{
		Base:        Base{ID: p.ID, CreatedAt: p.CreatedAt},
		Label:       p.Label,
		Text:        longText(p.Text),
		Temperature: p.Temperature,
	}
}

func (m *promptModel) record() Prompt {
	return Prompt{
		ID:          m.ID,
		Label:       m.Label,
		Text:        string(m.Text),
		Temperature: m.Temperature,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

func (s *SQLStore) CreatePrompt(ctx context.Context, p *Prompt) error {
	m := toPromptModel(p)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create prompt: %w", err)
	}
	p.ID, p.CreatedAt = m.ID, m.CreatedAt
	return nil
}

func (s *SQLStore) GetPrompt(ctx context.Context, id string) (*Prompt, error) {
	var m promptModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "prompt", id)
	}
	r := m.record()
	return &r, nil
}

func (s *SQLStore) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var ms []promptModel
	if err := s.db.WithContext(ctx).Order("created_at DESC, seq DESC").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	out := make([]Prompt, len(ms))
	for i := range ms {
		out[i] = ms[i].record()
	}
	return out, nil
}

func (s *SQLStore) UpdatePrompt(ctx context.Context, p *Prompt) error {
	return s.updateByID(ctx, "prompt", toPromptModel(p), p.ID)
}

func toRunModel(r *Run) *runModel {
	return &runModel{
		Base:               Base{ID: r.ID, CreatedAt: r.CreatedAt},
		PromptID:           r.PromptID,
		BookInputID:        r.BookInputID,
		Model:              r.Model,
		Temperature:        r.Temperature,
		Output:             longText(r.Output),
		Status:             string(r.Status),
		FinishReason:       r.FinishReason,
		PromptTokens:       r.PromptTokens,
		CompletionTokens:   r.CompletionTokens,
		TotalTokens:        r.TotalTokens,
		DiscoveredFieldsID: nullable(r.DiscoveredFieldsID),
		Starred:            r.Starred,
		Notes:              r.Notes,
		Error:              r.Error,
		LatencyMs:          r.LatencyMs,
	}
}

func (m *runModel) record() Run {
	return Run{
		ID:                 m.ID,
		PromptID:           m.PromptID,
		BookInputID:        m.BookInputID,
		Model:              m.Model,
		Temperature:        m.Temperature,
		Output:             string(m.Output),
		Status:             RunStatus(m.Status),
		FinishReason:       m.FinishReason,
		PromptTokens:       m.PromptTokens,
		CompletionTokens:   m.CompletionTokens,
		TotalTokens:        m.TotalTokens,
		DiscoveredFieldsID: deref(m.DiscoveredFieldsID),
		Starred:            m.Starred,
		Notes:              m.Notes,
		Error:              m.Error,
		LatencyMs:          m.LatencyMs,
		CreatedAt:          m.CreatedAt.UTC(),
	}
}

func (s *SQLStore) CreateRun(ctx context.Context, r *Run) error {
	m := toRunModel(r)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	r.ID, r.CreatedAt = m.ID, m.CreatedAt
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var m runModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "run", id)
	}
	r := m.record()
	return &r, nil
}

func (s *SQLStore) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	q := s.db.WithContext(ctx).Model(&runModel{})
	if f.BookInputID != "" {
		q = q.Where("book_input_id = ?", f.BookInputID)
	}
	if f.PromptID != "" {
		q = q.Where("prompt_id = ?", f.PromptID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.StarredOnly {
		q = q.Where("starred = ?", true)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var ms []runModel
	if err := q.Order("created_at DESC, seq DESC").Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]Run, len(ms))
	for i := range ms {
		out[i] = ms[i].record()
	}
	return out, nil
}

func (s *SQLStore) UpdateRun(ctx context.Context, r *Run) error {
	return s.updateByID(ctx, "run", toRunModel(r), r.ID)
}

func (s *SQLStore) LatestRun(ctx context.Context, bookInputID string) (*Run, error) {
	runs, err := s.ListRuns(ctx, RunFilter{BookInputID: bookInputID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("runs for book input %s: %w", bookInputID, ErrNotFound)
	}
	return &runs[0], nil
}

func (s *SQLStore) CreateFieldSet(ctx context.Context, set fields.Set) (string, error) {
	var m fieldSetModel
	if err := m.fromSet(set); err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", fmt.Errorf("create field set: %w", err)
	}
	return m.ID, nil
}

func (s *SQLStore) GetFieldSet(ctx context.Context, id string) (fields.Set, error) {
	var m fieldSetModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return fields.Set{}, notFound(err, "field set", id)
	}
	return m.toSet(), nil
}

func (s *SQLStore) UpdateFieldSet(ctx context.Context, id string, set fields.Set) error {
	m := fieldSetModel{Base: Base{ID: id}}
	if err := m.fromSet(set); err != nil {
		return err
	}
	return s.updateByID(ctx, "field set", &m, id)
}
