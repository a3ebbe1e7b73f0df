// Package repository persists brands, prompts, competitors, provider responses
// and blog scores in SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/azure/brand-visibility-bot/internal/models"
	"github.com/google/uuid"
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Brands

// CreateBrand inserts a brand with its categories, prompts and initial
// competitors. Missing ids are generated.
func (r *Repository) CreateBrand(ctx context.Context, brand *models.Brand) error {
	if strings.TrimSpace(brand.Name) == "" {
		return fmt.Errorf("%w: brand name is required", models.ErrInvalidInput)
	}
	if brand.ID == "" {
		brand.ID = uuid.NewString()
	}
	if brand.CreatedAt.IsZero() {
		brand.CreatedAt = r.now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO brands (id, name, domain, created_at) VALUES (?, ?, ?, ?)`,
		brand.ID, brand.Name, nullString(brand.Domain), formatTime(brand.CreatedAt)); err != nil {
		return fmt.Errorf("failed to insert brand: %w", err)
	}

	for i := range brand.Categories {
		cat := &brand.Categories[i]
		if cat.ID == "" {
			cat.ID = uuid.NewString()
		}
		cat.BrandID = brand.ID
		if _, err := tx.ExecContext(ctx, `INSERT INTO categories (id, brand_id, name, position) VALUES (?, ?, ?, ?)`,
			cat.ID, brand.ID, cat.Name, i); err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}

		for j := range cat.Prompts {
			p := &cat.Prompts[j]
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			p.CategoryID = cat.ID
			p.BrandID = brand.ID
			if _, err := tx.ExecContext(ctx, `INSERT INTO prompts (id, category_id, brand_id, text, position) VALUES (?, ?, ?, ?, ?)`,
				p.ID, cat.ID, brand.ID, p.Text, j); err != nil {
				return fmt.Errorf("failed to insert prompt: %w", err)
			}
		}
	}

	for i := range brand.Competitors {
		c := &brand.Competitors[i]
		if c.AddedAt.IsZero() {
			c.AddedAt = brand.CreatedAt
		}
		if err := insertCompetitor(ctx, tx, brand.ID, *c); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetBrand(ctx context.Context, id string) (*models.Brand, error) {
	var b models.Brand
	var domain sql.NullString
	var createdAt string
	err := r.db.QueryRowContext(ctx, `SELECT id, name, domain, created_at FROM brands WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &domain, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrBrandNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	b.Domain = domain.String
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	if err := r.loadCategories(ctx, &b); err != nil {
		return nil, err
	}
	if b.Competitors, err = r.getCompetitors(ctx, b.ID); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) ListBrands(ctx context.Context) ([]*models.Brand, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM brands ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	brands := make([]*models.Brand, 0, len(ids))
	for _, id := range ids {
		b, err := r.GetBrand(ctx, id)
		if err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	return brands, nil
}

// Categories and prompts

func (r *Repository) loadCategories(ctx context.Context, b *models.Brand) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories WHERE brand_id = ? ORDER BY position`, b.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		c := models.Category{BrandID: b.ID}
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			rows.Close()
			return err
		}
		b.Categories = append(b.Categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	prompts, err := r.GetPromptsForBrand(ctx, b.ID)
	if err != nil {
		return err
	}
	for i := range b.Categories {
		for _, p := range prompts {
			if p.CategoryID == b.Categories[i].ID {
				b.Categories[i].Prompts = append(b.Categories[i].Prompts, p)
			}
		}
	}
	return nil
}

// GetPromptsForBrand returns every prompt of the brand, category by category
func (r *Repository) GetPromptsForBrand(ctx context.Context, brandID string) ([]models.Prompt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.category_id, p.brand_id, p.text
		FROM prompts p
		JOIN categories c ON p.category_id = c.id
		WHERE p.brand_id = ?
		ORDER BY c.position, p.position
	`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.BrandID, &p.Text); err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// Competitors

func (r *Repository) getCompetitors(ctx context.Context, brandID string) ([]models.CompetitorEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, added_at, removed_at FROM competitors WHERE brand_id = ? ORDER BY id`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var competitors []models.CompetitorEntry
	for rows.Next() {
		var c models.CompetitorEntry
		var addedAt string
		var removedAt sql.NullString
		if err := rows.Scan(&c.Name, &addedAt, &removedAt); err != nil {
			return nil, err
		}
		if c.AddedAt, err = parseTime(addedAt); err != nil {
			return nil, err
		}
		if removedAt.Valid {
			t, err := parseTime(removedAt.String)
			if err != nil {
				return nil, err
			}
			c.RemovedAt = &t
		}
		competitors = append(competitors, c)
	}
	return competitors, rows.Err()
}

func insertCompetitor(ctx context.Context, tx *sql.Tx, brandID string, c models.CompetitorEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO competitors (brand_id, name, added_at) VALUES (?, ?, ?)`,
		brandID, c.Name, formatTime(c.AddedAt))
	if err != nil {
		return fmt.Errorf("failed to insert competitor: %w", err)
	}
	return nil
}

// AddCompetitor appends a competitor entry. The insert is committed only if
// commit returns nil, so callers can make the change depend on a follow-up
// write. commit may be nil and must not use the repository.
func (r *Repository) AddCompetitor(ctx context.Context, brandID string, entry models.CompetitorEntry, commit func() error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertCompetitor(ctx, tx, brandID, entry); err != nil {
		return err
	}
	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RemoveCompetitor soft-deletes the active entry matching name
// case-insensitively. Like AddCompetitor, the change is kept only if commit
// succeeds.
func (r *Repository) RemoveCompetitor(ctx context.Context, brandID, name string, at time.Time, commit func() error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE competitors SET removed_at = ?
		WHERE brand_id = ? AND name = ? COLLATE NOCASE AND removed_at IS NULL
	`, formatTime(at), brandID, name)
	if err != nil {
		return fmt.Errorf("failed to remove competitor: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrCompetitorNotFound, name)
	}

	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Responses

// SaveResponse stores the latest answer for a prompt, replacing any earlier one
func (r *Repository) SaveResponse(ctx context.Context, response *models.AIResponse) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_responses (prompt_id, brand_id, provider, text, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(prompt_id) DO UPDATE SET
			provider = excluded.provider,
			text = excluded.text,
			latency_ms = excluded.latency_ms,
			created_at = excluded.created_at
	`, response.PromptID, response.BrandID, response.Provider, response.Text, response.LatencyMs, formatTime(response.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save response: %w", err)
	}
	return nil
}

// ListResponses returns the stored answer of every prompt that has one
func (r *Repository) ListResponses(ctx context.Context, brandID string) ([]*models.AIResponse, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT prompt_id, brand_id, provider, text, latency_ms, created_at
		FROM ai_responses WHERE brand_id = ?
		ORDER BY prompt_id
	`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*models.AIResponse
	for rows.Next() {
		resp := &models.AIResponse{Success: true}
		var createdAt string
		if err := rows.Scan(&resp.PromptID, &resp.BrandID, &resp.Provider, &resp.Text, &resp.LatencyMs, &createdAt); err != nil {
			return nil, err
		}
		if resp.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// Blog scores

// UpsertBlogScore overwrites the score stored for (brand, url)
func (r *Repository) UpsertBlogScore(ctx context.Context, rec *models.BlogScoreRecord) error {
	factors, err := json.Marshal(rec.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}
	recs := rec.Recommendations
	if recs == nil {
		recs = []string{}
	}
	recommendations, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO blog_scores (brand_id, url, overall_score, readiness, factors, recommendations, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(brand_id, url) DO UPDATE SET
			overall_score = excluded.overall_score,
			readiness = excluded.readiness,
			factors = excluded.factors,
			recommendations = excluded.recommendations,
			scored_at = excluded.scored_at
	`, rec.BrandID, rec.URL, rec.OverallScore, string(rec.Readiness), string(factors), string(recommendations), formatTime(rec.ScoredAt))
	if err != nil {
		return fmt.Errorf("failed to save blog score: %w", err)
	}
	return nil
}

func (r *Repository) ListBlogScores(ctx context.Context, brandID string) ([]*models.BlogScoreRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT brand_id, url, overall_score, readiness, factors, recommendations, scored_at
		FROM blog_scores WHERE brand_id = ?
		ORDER BY url
	`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.BlogScoreRecord
	for rows.Next() {
		var rec models.BlogScoreRecord
		var readiness, factors, recommendations, scoredAt string
		if err := rows.Scan(&rec.BrandID, &rec.URL, &rec.OverallScore, &readiness, &factors, &recommendations, &scoredAt); err != nil {
			return nil, err
		}
		rec.Readiness = models.Readiness(readiness)
		if err := json.Unmarshal([]byte(factors), &rec.Factors); err != nil {
			return nil, fmt.Errorf("failed to decode factors: %w", err)
		}
		if err := json.Unmarshal([]byte(recommendations), &rec.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to decode recommendations: %w", err)
		}
		if rec.ScoredAt, err = parseTime(scoredAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Helpers

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
