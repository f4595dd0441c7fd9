package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recipe-curator/internal/infrastructure/storage"
	"recipe-curator/internal/pkg/common"
)

// Store 審核草稿的持久層。
// 寫入一律帶上呼叫端讀到的版本；版本過期的寫入不落地，回傳衝突。
type Store struct {
	db *storage.DB
}

// NewStore 創建審核持久層
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Create 建立新草稿，版本從 1 開始
func (s *Store) Create(ctx context.Context, pending *PendingReview) error {
	payload, err := common.ToJSON(pending)
	if err != nil {
		return fmt.Errorf("encode review payload: %w", err)
	}

	_, err = s.db.ExecWithRetry(ctx,
		`INSERT INTO pending_reviews (draft_id, version, state, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		pending.DraftID, pending.Version, string(pending.State), payload,
		pending.CreatedAt, pending.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create pending review %s: %w", pending.DraftID, err)
	}
	return nil
}

// Get 依草稿 id 讀出審核，不存在回傳 ErrReviewNotFound
func (s *Store) Get(ctx context.Context, draftID string) (*PendingReview, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload, version, state FROM pending_reviews WHERE draft_id = ?`, draftID)

	var (
		payload string
		version int64
		state   string
	)
	if err := row.Scan(&payload, &version, &state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrReviewNotFound
		}
		return nil, fmt.Errorf("load pending review %s: %w", draftID, err)
	}

	var pending PendingReview
	if err := common.ParseJSON(payload, &pending); err != nil {
		return nil, fmt.Errorf("decode pending review %s: %w", draftID, err)
	}
	// 以欄位值為準，防止 payload 與欄位漂移
	pending.Version = version
	pending.State = State(state)
	return &pending, nil
}

// Update 條件寫入：只有版本吻合才落地，成功後版本遞增。
// 版本過期回傳 ErrReviewConflict，該寫入對持久狀態毫無影響。
func (s *Store) Update(ctx context.Context, pending *PendingReview, expectedVersion int64) error {
	next := *pending
	next.Version = expectedVersion + 1

	payload, err := common.ToJSON(&next)
	if err != nil {
		return fmt.Errorf("encode review payload: %w", err)
	}

	res, err := s.db.ExecWithRetry(ctx,
		`UPDATE pending_reviews
		 SET version = ?, state = ?, payload = ?, updated_at = ?
		 WHERE draft_id = ? AND version = ?`,
		next.Version, string(next.State), payload, next.UpdatedAt,
		next.DraftID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update pending review %s: %w", next.DraftID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pending review %s: %w", next.DraftID, err)
	}
	if affected == 0 {
		// 分辨「不存在」與「版本過期」，兩者的下一步不同
		row := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM pending_reviews WHERE draft_id = ?`, next.DraftID)
		var count int
		if scanErr := row.Scan(&count); scanErr == nil && count == 0 {
			return common.ErrReviewNotFound
		}
		return common.ErrReviewConflict
	}

	pending.Version = next.Version
	return nil
}

// UpdateTx 交易內版本，提交服務把「審核標記完成」收進提交交易
func UpdateTx(ctx context.Context, tx *sql.Tx, pending *PendingReview, expectedVersion int64) error {
	next := *pending
	next.Version = expectedVersion + 1

	payload, err := common.ToJSON(&next)
	if err != nil {
		return fmt.Errorf("encode review payload: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE pending_reviews
		 SET version = ?, state = ?, payload = ?, updated_at = ?
		 WHERE draft_id = ? AND version = ?`,
		next.Version, string(next.State), payload, next.UpdatedAt,
		next.DraftID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update pending review %s: %w", next.DraftID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update pending review %s: %w", next.DraftID, err)
	}
	if affected == 0 {
		return common.ErrReviewConflict
	}

	pending.Version = next.Version
	return nil
}

// SweepExpired 清掉用完的審核：超過 TTL 的 AwaitingUser、所有 Discarded、
// 以及超過 TTL 且已被提交消耗（payload 帶 recipe_id）的 Confirmed。
// 尚未提交的 Confirmed 不清，提交意圖不能丟。
func (s *Store) SweepExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	res, err := s.db.ExecWithRetry(ctx,
		`DELETE FROM pending_reviews
		 WHERE (state = ? AND updated_at < ?)
		    OR state = ?
		    OR (state = ? AND updated_at < ? AND json_extract(payload, '$.recipe_id') IS NOT NULL)`,
		string(StateAwaitingUser), cutoff, string(StateDiscarded),
		string(StateConfirmed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep expired reviews: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		common.LogInfo("已清掃過期審核草稿", zap.Int64("count", affected))
	}
	return affected, nil
}

// StartSweeper 背景清掃迴圈，ctx 取消即停
func (s *Store) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.SweepExpired(ctx, ttl); err != nil {
					common.LogWarn("review sweep failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
