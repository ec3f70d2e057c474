package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

// Redis key layout for presence. One key per vendor so writers only ever
// touch their own row; the online set is the fast-lookup index.
const (
	presenceKeyPrefix = "vendor:presence:"
	onlineSetKey      = "vendors:online"
)

func presenceKey(vendorID string) string {
	return presenceKeyPrefix + vendorID
}

// PutPresence writes the vendor's presence record and keeps the online
// set in sync with the record's flag.
func (s *HybridStore) PutPresence(ctx context.Context, p model.VendorPresence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, presenceKey(p.VendorID), data, 0)
	if p.IsOnline {
		pipe.SAdd(ctx, onlineSetKey, p.VendorID)
	} else {
		pipe.SRem(ctx, onlineSetKey, p.VendorID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("store.presence.put_failed",
			zap.String("vendor_id", p.VendorID), zap.Error(err))
		return err
	}
	return nil
}

// GetPresence returns the vendor's presence record, or nil if the vendor
// has never been seen.
func (s *HybridStore) GetPresence(ctx context.Context, vendorID string) (*model.VendorPresence, error) {
	data, err := s.redis.Get(ctx, presenceKey(vendorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var p model.VendorPresence
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// OnlineVendorIDs returns the members of the online set, sorted so
// callers iterate deterministically.
func (s *HybridStore) OnlineVendorIDs(ctx context.Context) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// TimeoutPresence flips the vendor offline only if their heartbeat is
// still older than cutoff at commit time. The key is WATCHed so a
// heartbeat racing the sweep aborts the transaction and wins.
func (s *HybridStore) TimeoutPresence(ctx context.Context, vendorID string, cutoff time.Time) (*model.VendorPresence, bool, error) {
	var flipped *model.VendorPresence

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, presenceKey(vendorID)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		} else if err != nil {
			return err
		}

		var p model.VendorPresence
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if !p.IsOnline || p.LastHeartbeat.After(cutoff) {
			return nil
		}

		p.IsOnline = false
		p.SessionToken = ""
		updated, err := json.Marshal(p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, presenceKey(vendorID), updated, 0)
			pipe.SRem(ctx, onlineSetKey, vendorID)
			return nil
		})
		if err != nil {
			return err
		}
		flipped = &p
		return nil
	}, presenceKey(vendorID))

	if errors.Is(err, redis.TxFailedErr) {
		// A heartbeat arrived mid-sweep; the vendor stays online.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return flipped, flipped != nil, nil
}
