package progression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/framecraft/engagement/game/quest"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestUpdate is the result of a quest action.
type QuestUpdate struct {
	Quest     quest.View `json:"quest"`
	Completed bool       `json:"completed"`
	Reward    *Award     `json:"reward,omitempty"`
}

// questBook is every persisted quest row for one profile.
type questBook struct {
	rows      map[string]*model.QuestProgress
	completed map[string]bool
	active    string
}

func loadQuestBook(tx *gorm.DB, profileID int64) (*questBook, error) {
	var rows []*model.QuestProgress
	if profileID != 0 {
		if err := tx.Where("profile_id = ?", profileID).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("progression: load quests: %w", err)
		}
	}
	b := &questBook{
		rows:      make(map[string]*model.QuestProgress, len(rows)),
		completed: make(map[string]bool),
	}
	for _, r := range rows {
		b.rows[r.QuestID] = r
		if r.Completions > 0 {
			b.completed[r.QuestID] = true
		}
		if r.Status == string(quest.StatusInProgress) {
			b.active = r.QuestID
		}
	}
	return b, nil
}

// instance returns the stored instance for def, or a fresh locked one,
// with the lazy transitions applied.
func (b *questBook) instance(def *quest.Definition, lvl int, now time.Time) (*model.QuestProgress, *quest.Instance, error) {
	row := b.rows[def.ID]
	inst := quest.NewInstance(def)
	if row != nil {
		var err error
		if inst, err = instanceFromRow(row); err != nil {
			return nil, nil, err
		}
	} else {
		row = &model.QuestProgress{QuestID: def.ID}
	}
	quest.Unlock(def, inst, lvl, b.completed)
	quest.Rearm(def, inst, now)
	return row, inst, nil
}

func instanceFromRow(row *model.QuestProgress) (*quest.Instance, error) {
	inst := &quest.Instance{
		QuestID:     row.QuestID,
		Status:      quest.Status(row.Status),
		Progress:    map[string]int64{},
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		AvailableAt: row.AvailableAt,
		Completions: row.Completions,
	}
	if len(row.Progress) > 0 {
		if err := json.Unmarshal(row.Progress, &inst.Progress); err != nil {
			return nil, fmt.Errorf("progression: decode quest %s progress: %w", row.QuestID, err)
		}
	}
	return inst, nil
}

func applyInstance(row *model.QuestProgress, inst *quest.Instance) error {
	raw, err := json.Marshal(inst.Progress)
	if err != nil {
		return fmt.Errorf("progression: encode quest progress: %w", err)
	}
	row.Status = string(inst.Status)
	row.Progress = datatypes.JSON(raw)
	row.StartedAt = inst.StartedAt
	row.CompletedAt = inst.CompletedAt
	row.AvailableAt = inst.AvailableAt
	row.Completions = inst.Completions
	return nil
}

func (t *txn) saveQuest(row *model.QuestProgress, inst *quest.Instance) error {
	if err := applyInstance(row, inst); err != nil {
		return err
	}
	row.ProfileID = t.p.ID
	if err := t.tx.Save(row).Error; err != nil {
		return fmt.Errorf("progression: save quest %s: %w", row.QuestID, err)
	}
	return nil
}

func (t *txn) activeQuest() (*model.QuestProgress, error) {
	var row model.QuestProgress
	err := t.tx.Where("profile_id = ? AND status = ?", t.p.ID, string(quest.StatusInProgress)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progression: load active quest: %w", err)
	}
	return &row, nil
}

// completeQuest pays the quest reward and announces the completion.
func (t *txn) completeQuest(def *quest.Definition, res quest.Result) (*Award, error) {
	var a *Award
	if res.RewardXP > 0 {
		var err error
		if a, err = t.credit(res.RewardXP, model.XPSourceQuest, def.ID); err != nil {
			return nil, err
		}
	}
	t.emit(hook.OnQuestCompleted, map[string]interface{}{
		"quest_id": def.ID, "title": def.Title, "reward_xp": res.RewardXP,
	})
	return a, nil
}

// ListQuests returns every catalog quest with the user's state. Level and
// cooldown transitions are evaluated on read and persisted on the next write.
func (s *Service) ListQuests(ctx context.Context, id Identity) ([]quest.View, error) {
	p, err := s.readProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	book, err := loadQuestBook(s.db.WithContext(ctx), p.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	lvl := s.opts.Curve.Level(p.CycleXP)
	defs := s.opts.Catalog.Quests.All()
	out := make([]quest.View, 0, len(defs))
	for _, def := range defs {
		_, inst, err := book.instance(def, lvl, now)
		if err != nil {
			return nil, err
		}
		out = append(out, quest.NewView(def, inst))
	}
	return out, nil
}

// StartQuest moves an available quest to in progress.
func (s *Service) StartQuest(ctx context.Context, id Identity, questID string) (*QuestUpdate, error) {
	def, err := s.opts.Catalog.Quests.Get(questID)
	if err != nil {
		return nil, err
	}
	var out *QuestUpdate
	err = s.mutate(ctx, id, func(t *txn) error {
		book, err := loadQuestBook(t.tx, t.p.ID)
		if err != nil {
			return err
		}
		row, inst, err := book.instance(def, s.opts.Curve.Level(t.p.CycleXP), t.now)
		if err != nil {
			return err
		}
		if err := quest.Start(def, inst, book.active, book.completed, t.now); err != nil {
			return err
		}
		if err := t.saveQuest(row, inst); err != nil {
			return err
		}
		t.emit(hook.OnQuestStarted, map[string]interface{}{"quest_id": def.ID, "title": def.Title})
		out = &QuestUpdate{Quest: quest.NewView(def, inst)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProgressQuest adds delta to one objective of the user's quest.
func (s *Service) ProgressQuest(ctx context.Context, id Identity, questID, objectiveID string, delta int64) (*QuestUpdate, error) {
	def, err := s.opts.Catalog.Quests.Get(questID)
	if err != nil {
		return nil, err
	}
	var out *QuestUpdate
	err = s.mutate(ctx, id, func(t *txn) error {
		row, inst, err := t.questRow(def)
		if err != nil {
			return err
		}
		res, err := quest.Advance(def, inst, objectiveID, delta, t.now)
		if err != nil {
			return err
		}
		if err := t.saveQuest(row, inst); err != nil {
			return err
		}
		out = &QuestUpdate{Completed: res.Completed}
		if res.Completed {
			if out.Reward, err = t.completeQuest(def, res); err != nil {
				return err
			}
		}
		out.Quest = quest.NewView(def, inst)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AbandonQuest stops the in-progress quest and discards its progress.
func (s *Service) AbandonQuest(ctx context.Context, id Identity, questID string) (*QuestUpdate, error) {
	return s.questTransition(ctx, id, questID, func(def *quest.Definition, inst *quest.Instance, t *txn) error {
		if err := quest.Abandon(def, inst); err != nil {
			return err
		}
		t.emit(hook.OnQuestAbandoned, map[string]interface{}{"quest_id": def.ID})
		return nil
	})
}

// RetryQuest makes an abandoned quest available again.
func (s *Service) RetryQuest(ctx context.Context, id Identity, questID string) (*QuestUpdate, error) {
	return s.questTransition(ctx, id, questID, func(def *quest.Definition, inst *quest.Instance, _ *txn) error {
		return quest.Retry(def, inst)
	})
}

func (s *Service) questTransition(ctx context.Context, id Identity, questID string,
	fn func(def *quest.Definition, inst *quest.Instance, t *txn) error) (*QuestUpdate, error) {
	def, err := s.opts.Catalog.Quests.Get(questID)
	if err != nil {
		return nil, err
	}
	var out *QuestUpdate
	err = s.mutate(ctx, id, func(t *txn) error {
		row, inst, err := t.questRow(def)
		if err != nil {
			return err
		}
		if err := fn(def, inst, t); err != nil {
			return err
		}
		if err := t.saveQuest(row, inst); err != nil {
			return err
		}
		out = &QuestUpdate{Quest: quest.NewView(def, inst)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// questRow loads the stored row for def. A quest never touched has no
// row and behaves as locked.
func (t *txn) questRow(def *quest.Definition) (*model.QuestProgress, *quest.Instance, error) {
	var row model.QuestProgress
	err := t.tx.Where("profile_id = ? AND quest_id = ?", t.p.ID, def.ID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.QuestProgress{QuestID: def.ID}, quest.NewInstance(def), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("progression: load quest %s: %w", def.ID, err)
	}
	inst, err := instanceFromRow(&row)
	if err != nil {
		return nil, nil, err
	}
	return &row, inst, nil
}

// RearmSweep returns every completed repeatable quest whose cooldown has
// elapsed to available. It returns how many quests were re-armed.
func (s *Service) RearmSweep(ctx context.Context) (int, error) {
	now := s.now()
	var rows []*model.QuestProgress
	if err := s.db.WithContext(ctx).
		Where("status = ? AND available_at IS NOT NULL AND available_at <= ?", string(quest.StatusCompleted), now).
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("progression: rearm scan: %w", err)
	}
	n := 0
	for _, row := range rows {
		def, err := s.opts.Catalog.Quests.Get(row.QuestID)
		if err != nil {
			continue
		}
		inst, err := instanceFromRow(row)
		if err != nil {
			s.logger.Warn("rearm: bad quest row", zap.Int64("id", row.ID), zap.Error(err))
			continue
		}
		if !quest.Rearm(def, inst, now) {
			continue
		}
		if err := applyInstance(row, inst); err != nil {
			return n, err
		}
		res := s.db.WithContext(ctx).Model(&model.QuestProgress{}).
			Where("id = ? AND status = ?", row.ID, string(quest.StatusCompleted)).
			Updates(map[string]interface{}{
				"status":       row.Status,
				"progress":     row.Progress,
				"available_at": nil,
			})
		if res.Error != nil {
			return n, fmt.Errorf("progression: rearm quest %s: %w", row.QuestID, res.Error)
		}
		n += int(res.RowsAffected)
	}
	return n, nil
}
