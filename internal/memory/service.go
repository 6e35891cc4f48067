// internal/memory/service.go
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"fragcoach/internal/decision"
	"fragcoach/internal/gamestate"
	"fragcoach/internal/output"
)

const profileCacheTTL = 5 * time.Minute

func profileCacheKey(steamID string) string {
	return "coach:profile:" + steamID
}

// Service is the memory collaborator: player profiles and coaching archives
// in the relational store, contextual memories in the vector store, hot
// profile reads through Redis. Vector and cache layers are optional; the
// service degrades to relational-only when either is absent.
type Service struct {
	db      *gorm.DB
	vectors *VectorStore
	embed   *Embedder
	cache   *redis.Client

	minScore float64
}

// NewService wires the storage layers. vectors, embed and cache may be nil.
func NewService(db *gorm.DB, vectors *VectorStore, embed *Embedder, cache *redis.Client) *Service {
	return &Service{
		db:       db,
		vectors:  vectors,
		embed:    embed,
		cache:    cache,
		minScore: 0.35,
	}
}

// GetPlayerProfile fetches one profile, creating it on first sight so
// callers never handle not-found.
func (s *Service) GetPlayerProfile(ctx context.Context, steamID, name string) (*PlayerProfile, error) {
	if steamID == "" {
		return nil, errors.New("steam id required")
	}

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, profileCacheKey(steamID)).Result(); err == nil {
			var p PlayerProfile
			if json.Unmarshal([]byte(raw), &p) == nil {
				return &p, nil
			}
		}
	}

	var p PlayerProfile
	err := s.db.WithContext(ctx).Where("steam_id = ?", steamID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = PlayerProfile{SteamID: steamID, Name: name, Preferences: datatypes.JSON([]byte("{}"))}
		if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	s.cacheProfile(ctx, &p)
	return &p, nil
}

// UpdatePreferences overwrites the profile's preference blob.
func (s *Service) UpdatePreferences(ctx context.Context, steamID string, prefs map[string]interface{}) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&PlayerProfile{}).
		Where("steam_id = ?", steamID).
		Update("preferences", datatypes.JSON(raw))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no profile for %s", steamID)
	}
	s.invalidateProfile(ctx, steamID)
	return nil
}

// ContextualMemories recalls advice relevant to the current situation. With
// a vector store it is a semantic search; without one it falls back to the
// player's most recent coaching records.
func (s *Service) ContextualMemories(ctx context.Context, steamID, situation string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}

	if s.vectors != nil && s.embed != nil {
		embedding, err := s.embed.Embed(ctx, situation)
		if err != nil {
			log.Printf("[Memory] Embedding failed, falling back to recent records: %v", err)
		} else {
			return s.vectors.Search(ctx, steamID, embedding, limit, s.minScore)
		}
	}

	var records []CoachingRecord
	err := s.db.WithContext(ctx).
		Where("steam_id = ?", steamID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load coaching records: %w", err)
	}
	texts := make([]string, 0, len(records))
	for _, r := range records {
		texts = append(texts, r.Message)
	}
	return texts, nil
}

// RecordCoaching archives a delivered output and, when the vector layer is
// up, stores it as a contextual memory for future recall.
func (s *Service) RecordCoaching(ctx context.Context, steamID string, out *output.CoachingOutput, d *decision.AIDecision) error {
	items, err := json.Marshal(out.ActionItems)
	if err != nil {
		items = []byte("[]")
	}
	rec := CoachingRecord{
		SteamID:     steamID,
		OutputID:    out.ID,
		DecisionID:  out.DecisionID,
		Type:        string(out.Type),
		Priority:    string(out.Priority),
		Personality: out.Personalization,
		Message:     out.Message,
		ActionItems: datatypes.JSON(items),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to store coaching record: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&PlayerProfile{}).
		Where("steam_id = ?", steamID).
		UpdateColumn("suggestion_count", gorm.Expr("suggestion_count + 1")).Error; err != nil {
		log.Printf("[Memory] WARNING: failed to bump suggestion count: %v", err)
	}
	s.invalidateProfile(ctx, steamID)

	if s.vectors != nil && s.embed != nil {
		text := d.Rationale + ": " + out.Message
		embedding, err := s.embed.Embed(ctx, text)
		if err != nil {
			log.Printf("[Memory] WARNING: embedding for coaching memory failed: %v", err)
			return nil
		}
		gameContext := ""
		if v, ok := d.Metadata["context"].(string); ok {
			gameContext = v
		}
		if err := s.vectors.Store(ctx, steamID, gameContext, text, embedding); err != nil {
			log.Printf("[Memory] WARNING: vector store failed: %v", err)
		}
	}
	return nil
}

// RecentCoaching returns the player's latest archived outputs.
func (s *Service) RecentCoaching(ctx context.Context, steamID string, limit int) ([]CoachingRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []CoachingRecord
	err := s.db.WithContext(ctx).
		Where("steam_id = ?", steamID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// PersistSnapshot implements the state-history persistence hook.
func (s *Service) PersistSnapshot(ctx context.Context, matchID string, snap *gamestate.GameStateSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	rec := SnapshotRecord{
		MatchID:    matchID,
		SequenceID: snap.SequenceID,
		Context:    string(snap.Context),
		Payload:    datatypes.JSON(payload),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *Service) cacheProfile(ctx context.Context, p *PlayerProfile) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, profileCacheKey(p.SteamID), raw, profileCacheTTL).Err(); err != nil {
		log.Printf("[Memory] WARNING: profile cache write failed: %v", err)
	}
}

func (s *Service) invalidateProfile(ctx context.Context, steamID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, profileCacheKey(steamID)).Err(); err != nil {
		log.Printf("[Memory] WARNING: profile cache invalidation failed: %v", err)
	}
}
