package progression

import (
	"context"
	"fmt"

	"github.com/framecraft/engagement/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const leaderboardPrefix = "leaderboard:"

// LeaderboardKey is the cache sorted set holding an organization's ranking.
func LeaderboardKey(orgID string) string { return leaderboardPrefix + orgID }

// RankEntry is one leaderboard row.
type RankEntry struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"user_id"`
	LifetimeXP int64  `json:"lifetime_xp"`
}

// Leaderboard is an organization's top list plus the caller's position.
type Leaderboard struct {
	Entries []RankEntry `json:"entries"`
	MyRank  int64       `json:"my_rank"` // 0 when unranked
}

func (s *Service) updateRanking(ctx context.Context, id Identity, lifetimeXP int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ZAdd(ctx, LeaderboardKey(id.OrgID), float64(lifetimeXP), id.UserID); err != nil {
		s.logger.Warn("leaderboard update failed", zap.String("user_id", id.UserID), zap.Error(err))
	}
}

// Leaderboard returns the top limit users of the caller's organization by
// lifetime XP. A sorted set shorter than limit is read from the database
// instead and topped up.
func (s *Service) Leaderboard(ctx context.Context, id Identity, limit int) (*Leaderboard, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	key := LeaderboardKey(id.OrgID)
	board := &Leaderboard{}

	var members []string
	var scores []float64
	if s.cache != nil {
		var err error
		members, scores, err = s.cache.ZTop(ctx, key, int64(limit))
		if err != nil {
			s.logger.Warn("leaderboard cache read failed", zap.String("org_id", id.OrgID), zap.Error(err))
			members = nil
		}
	}

	// A short set is a small organization or a set that was flushed and is
	// refilling. Both read the database, which costs one query bounded by
	// limit for orgs smaller than the page.
	if len(members) < limit {
		var rows []model.Profile
		if err := s.db.WithContext(ctx).Select("user_id, lifetime_xp").
			Where("org_id = ?", id.OrgID).
			Order("lifetime_xp DESC, user_id DESC").Limit(limit).
			Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("progression: leaderboard: %w", err)
		}
		for i, r := range rows {
			board.Entries = append(board.Entries, RankEntry{Rank: i + 1, UserID: r.UserID, LifetimeXP: r.LifetimeXP})
			if s.cache != nil {
				_ = s.cache.ZAdd(ctx, key, float64(r.LifetimeXP), r.UserID)
			}
		}
	} else {
		for i, m := range members {
			board.Entries = append(board.Entries, RankEntry{Rank: i + 1, UserID: m, LifetimeXP: int64(scores[i])})
		}
	}

	for _, e := range board.Entries {
		if e.UserID == id.UserID {
			board.MyRank = int64(e.Rank)
		}
	}
	if board.MyRank == 0 && s.cache != nil {
		if r, err := s.cache.ZRevRank(ctx, key, id.UserID); err == nil && r >= 0 {
			board.MyRank = r + 1
		}
	}
	if board.Entries == nil {
		board.Entries = []RankEntry{}
	}
	return board, nil
}

// RebuildLeaderboard reloads every organization's sorted set from the
// database. It returns the number of profiles written.
func (s *Service) RebuildLeaderboard(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	var orgs []string
	if err := s.db.WithContext(ctx).Model(&model.Profile{}).Distinct("org_id").Pluck("org_id", &orgs).Error; err != nil {
		return 0, fmt.Errorf("progression: rebuild leaderboard: %w", err)
	}
	for _, org := range orgs {
		if err := s.cache.Del(ctx, LeaderboardKey(org)); err != nil {
			return 0, fmt.Errorf("progression: clear leaderboard %s: %w", org, err)
		}
	}

	n := 0
	var batch []model.Profile
	res := s.db.WithContext(ctx).Select("id, org_id, user_id, lifetime_xp").
		FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
			for _, p := range batch {
				if err := s.cache.ZAdd(ctx, LeaderboardKey(p.OrgID), float64(p.LifetimeXP), p.UserID); err != nil {
					return err
				}
				n++
			}
			return nil
		})
	if res.Error != nil {
		return n, fmt.Errorf("progression: rebuild leaderboard: %w", res.Error)
	}
	s.logger.Info("leaderboard rebuilt", zap.Int("orgs", len(orgs)), zap.Int("profiles", n))
	return n, nil
}
